package target

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrNotConnected is returned by transport operations on a target
	// without a live session.
	ErrNotConnected = errors.New("target not connected")

	// ErrNotSupported is returned when the backend does not implement the
	// requested capability family.
	ErrNotSupported = errors.New("not supported by target")
)

// IsNotSupported reports whether err means the backend lacks the method:
// ErrNotSupported, JSON-RPC -32601, or a "method not found" message.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotSupported) || errors.Is(err, mcp.ErrMethodNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "method not found")
}

// isRefused reports whether err is a dial-level failure: refused
// connection, DNS failure or unreachable host.
func isRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"host is unreachable",
		"no route to host",
		"dial tcp",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
