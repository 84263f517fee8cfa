package target

import (
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/server"

	"mcpgate/internal/api"
)

// InProcessConfig wraps an MCP server living in the gateway process.
type InProcessConfig struct {
	Server *server.MCPServer
}

type inProcessConnector struct {
	cfg InProcessConfig
}

// NewInProcess creates a target backed by an in-process server. Apart from
// being disabled it has no failure modes.
func NewInProcess(name string, cfg InProcessConfig, opts ...Option) (*Client, error) {
	if cfg.Server == nil {
		return nil, api.New(api.KindBadRequest, "in-process target %q has no server", name)
	}
	return newClient(name, &inProcessConnector{cfg: cfg}, opts...)
}

func (i *inProcessConnector) kind() Kind { return KindInProcess }

func (i *inProcessConnector) endpoint() string { return "inprocess://" }

func (i *inProcessConnector) dial(p dialParams) (*client.Client, error) {
	cl, err := client.NewInProcessClient(i.cfg.Server)
	if err != nil {
		return nil, err
	}
	if err := cl.Start(p.life); err != nil {
		return nil, err
	}
	if err := initialize(p.ctx, cl, "InProcessTarget", i.endpoint()); err != nil {
		return nil, err
	}
	return cl, nil
}

func (i *inProcessConnector) describe(err error) string {
	return fmt.Sprintf("failed to connect in-process server: %v", err)
}

func (i *inProcessConnector) snapshot() TransportSnapshot {
	return TransportSnapshot{}
}
