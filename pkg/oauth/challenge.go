package oauth

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// authParam matches one auth-param of RFC 9110 section 11.2, either
// key="quoted" or key=token.
var authParam = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)\s*=\s*(?:"((?:[^"\\]|\\.)*)"|([^\s,"]+))`)

var errEmptyChallenge = errors.New("empty WWW-Authenticate header")

// ParseChallenge parses a WWW-Authenticate header such as
//
//	Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource", scope="read"
//
// Parameter names are matched case-insensitively. A realm that is an http(s)
// URL also becomes the challenge's Issuer.
func ParseChallenge(header string) (*AuthChallenge, error) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(header), " ")
	if scheme == "" {
		return nil, errEmptyChallenge
	}

	params := map[string]string{}
	for _, m := range authParam.FindAllStringSubmatch(rest, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		params[strings.ToLower(m[1])] = strings.ReplaceAll(v, `\"`, `"`)
	}

	c := &AuthChallenge{
		Scheme:              scheme,
		Realm:               params["realm"],
		ResourceMetadataURL: params["resource_metadata"],
		Scope:               params["scope"],
		Error:               params["error"],
		ErrorDescription:    params["error_description"],
	}
	c.Issuer = (&AuthChallenge{Realm: c.Realm}).IssuerURL()
	return c, nil
}

// ChallengeFromResponse returns the challenge carried by a 401 response, or
// nil for any other status. A 401 without a parseable header is treated as a
// bare Bearer challenge.
func ChallengeFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	if c, err := ParseChallenge(resp.Header.Get("WWW-Authenticate")); err == nil {
		return c
	}
	return &AuthChallenge{Scheme: "Bearer"}
}

// LooksUnauthorized guesses from an error's text whether a transport that
// does not expose the response saw a 401.
func LooksUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"status 401", "status code: 401", "unauthorized"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
