package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the gateway configuration read from config.yaml.
type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`
	// EndpointPath is where the MCP endpoint is served.
	EndpointPath string `yaml:"endpointPath"`
	// ProxyID identifies the proxy serving the configured targets.
	ProxyID string `yaml:"proxyID"`

	TargetTimeout      time.Duration `yaml:"targetTimeout"`
	ConnectConcurrency int           `yaml:"connectConcurrency"`

	// SessionIdleTTL evicts sessions without requests for that long.
	// Zero disables eviction.
	SessionIdleTTL time.Duration `yaml:"sessionIdleTTL"`
	MaxSessions    int           `yaml:"maxSessions"`

	OAuth       OAuthConfig   `yaml:"oauth"`
	Auth        AuthConfig    `yaml:"auth"`
	CatalogFile string        `yaml:"catalogFile,omitempty"`
	CORSOrigins []string      `yaml:"corsOrigins,omitempty"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// OAuthConfig configures authorization against protected targets.
type OAuthConfig struct {
	// CallbackBaseURL is the externally reachable URL of the callback
	// router. Defaults to http://<listen>/oauth/callback.
	CallbackBaseURL string   `yaml:"callbackBaseURL,omitempty"`
	FactoryID       string   `yaml:"factoryID"`
	ClientName      string   `yaml:"clientName,omitempty"`
	ClientID        string   `yaml:"clientID,omitempty"`
	Scopes          []string `yaml:"scopes,omitempty"`

	Store         string `yaml:"store"`
	StoreDir      string `yaml:"storeDir,omitempty"`
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDB,omitempty"`
	// RedisPrefix namespaces credential keys in a shared Redis.
	RedisPrefix string `yaml:"redisPrefix,omitempty"`
}

// AuthConfig configures how callback requests are tied to a user.
type AuthConfig struct {
	// UserHeader carries the authenticated user, set by a fronting proxy.
	UserHeader string `yaml:"userHeader"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// CallbackPath is the path prefix the OAuth callback router is mounted at.
const CallbackPath = "/oauth/callback"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:             "localhost:8090",
		EndpointPath:       "/mcp",
		ProxyID:            "default",
		TargetTimeout:      30 * time.Second,
		ConnectConcurrency: 4,
		SessionIdleTTL:     30 * time.Minute,
		MaxSessions:        10000,
		OAuth: OAuthConfig{
			FactoryID:   "mcpgate",
			Store:       StoreFile,
			RedisPrefix: "mcpgate:oauth:",
		},
		Auth:    AuthConfig{UserHeader: "X-Forwarded-User"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// CallbackBaseURL returns the configured callback base or the one derived
// from the listen address.
func (c Config) CallbackBaseURL() string {
	if c.OAuth.CallbackBaseURL != "" {
		return strings.TrimSuffix(c.OAuth.CallbackBaseURL, "/")
	}
	host := c.Listen
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + CallbackPath
}

// Validate checks the gateway configuration.
func (c Config) Validate() error {
	var errs ValidationErrors
	errs.Check("listen", notEmpty(c.Listen))
	if !strings.HasPrefix(c.EndpointPath, "/") {
		errs.Add("endpointPath", fmt.Sprintf("%q must start with /", c.EndpointPath))
	}
	errs.Check("proxyID", validName(c.ProxyID))
	if c.TargetTimeout < 0 {
		errs.Add("targetTimeout", "must not be negative")
	}
	if c.SessionIdleTTL < 0 {
		errs.Add("sessionIdleTTL", "must not be negative")
	}
	if c.MaxSessions < 0 {
		errs.Add("maxSessions", "must not be negative")
	}
	errs.Check("oauth.store", oneOf(c.OAuth.Store, StoreMemory, StoreFile, StoreRedis))
	if c.OAuth.Store == StoreRedis {
		errs.Check("oauth.redisAddr", notEmpty(c.OAuth.RedisAddr))
	}
	errs.Check("oauth.factoryID", validName(c.OAuth.FactoryID))
	if c.OAuth.CallbackBaseURL != "" {
		u, err := url.Parse(c.OAuth.CallbackBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.Add("oauth.callbackBaseURL", "must be an absolute http(s) url")
		}
	}
	return errs.errOrNil()
}
