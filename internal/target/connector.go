package target

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/pkg/logging"
)

// Kind names a transport variant.
type Kind string

const (
	KindHTTP      Kind = "http"
	KindStdio     Kind = "stdio"
	KindInProcess Kind = "inprocess"
)

// ClientName and ClientVersion identify the gateway in initialize requests.
var (
	ClientName    = "mcpgate"
	ClientVersion = "dev"
)

// dialParams carries everything a connector needs for one attempt.
type dialParams struct {
	// ctx bounds the handshake.
	ctx context.Context
	// life bounds the session; cancelled on Close.
	life context.Context
	auth Authenticator
}

// connector is implemented by exactly three types: httpConnector,
// stdioConnector and inProcessConnector.
type connector interface {
	kind() Kind
	endpoint() string

	// dial opens and initializes a session. A failure caused by an
	// authorization challenge is returned as *authRequiredError.
	dial(p dialParams) (*client.Client, error)

	// describe turns a non-authorization dial failure into the message
	// stored as the target's last error.
	describe(err error) string

	snapshot() TransportSnapshot
}

// initialize performs the protocol handshake on a started client and closes
// it on failure.
func initialize(ctx context.Context, cl *client.Client, subsystem, endpoint string) error {
	result, err := cl.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: ClientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		if closeErr := cl.Close(); closeErr != nil {
			logging.Debug(subsystem, "Error closing failed client for %s: %v", endpoint, closeErr)
		}
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	logging.Debug(subsystem, "Initialized %s. Server: %s, Version: %s",
		endpoint, result.ServerInfo.Name, result.ServerInfo.Version)
	return nil
}
