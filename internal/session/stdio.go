package session

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"mcpgate/internal/proxy"
	"mcpgate/pkg/logging"
)

// ServeStdio exposes p as a single MCP session over in and out until ctx is
// cancelled or in reaches EOF. List changes of p are forwarded to the
// client while serving; p must not be served by a Multiplexer at the same
// time.
func ServeStdio(ctx context.Context, p *proxy.Server, in io.Reader, out io.Writer) error {
	b := newBridge(p)
	p.SetListChangeListener(b.forward)
	defer p.SetListChangeListener(nil)

	stdio := server.NewStdioServer(b.server)
	stdio.SetErrorLogger(slog.NewLogLogger(logging.Logger("Stdio").Handler(), slog.LevelError))

	logging.Info("Session", "Serving proxy %s over stdio", p.ID())
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
