package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcpgate/internal/session"
	"mcpgate/pkg/logging"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// runHTTPMode serves the gateway until ctx is cancelled or the process
// receives SIGINT or SIGTERM. SIGHUP reloads the targets and retries
// their connections.
func runHTTPMode(ctx context.Context, services *Services) error {
	ln, err := net.Listen("tcp", services.Gateway.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", services.Gateway.Listen, err)
	}
	return serveHTTP(ctx, services, ln)
}

func serveHTTP(ctx context.Context, services *Services, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Handler:           services.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ConnContext:       services.Multiplexer.ConnContext,
		ConnState:         services.Multiplexer.ConnState,
	}

	if services.Watcher != nil {
		if err := services.Watcher.Start(); err != nil {
			logging.Warn("CLI", "Target watcher not started: %v", err)
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logging.Info("CLI", "SIGHUP received, reconnecting targets")
				services.Reconnect(ctx)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logging.Info("CLI", "Serving MCP on http://%s%s", ln.Addr(), services.Gateway.EndpointPath)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("CLI", "--- Shutting down ---")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Sessions hold long-lived SSE streams, so close them before waiting
	// for the server's idle connections.
	if err := services.Multiplexer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("CLI", "Session shutdown: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("CLI", "HTTP shutdown: %v", err)
		_ = srv.Close()
	}
	return nil
}

// runStdioMode serves the proxy to a single client over in and out.
func runStdioMode(ctx context.Context, services *Services, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return session.ServeStdio(ctx, services.Proxy, in, out)
}
