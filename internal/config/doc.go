// Package config loads the gateway configuration and keeps the proxy's
// targets in sync with the configuration directory.
//
// # Configuration Directory
//
// The default directory is ~/.config/mcpgate; commands accept
// --config-path to use another one. It contains:
//   - config.yaml (gateway settings, see Config)
//   - targets/ with one YAML file per target (see TargetConfig)
//
// # Configuration Structure
//
//	listen: localhost:8090
//	endpointPath: /mcp
//	proxyID: default
//	targetTimeout: 30s
//	sessionIdleTTL: 30m
//	catalogFile: catalog.yaml
//	oauth:
//	  store: file          # memory, file or redis
//	  redisAddr: localhost:6379
//	auth:
//	  userHeader: X-Forwarded-User
//	metrics:
//	  enabled: true
//
// # Templates
//
// The url, headers, command, args and env fields of a target may use
// templates such as {{ requiredEnv "TOKEN" }}, rendered from the process
// environment when the file is loaded. See package template.
//
// # Reloading
//
// A Watcher observes targets/ and, after a debounce, the caller reloads the
// files with LoadTargets and hands them to a Reconciler, which applies the
// difference to the proxy through AddTarget, UpdateTarget and RemoveTarget.
// Files that fail to parse or validate are reported and skipped, leaving
// the rest of the set in effect.
package config
