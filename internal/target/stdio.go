package target

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"sort"

	"github.com/mark3labs/mcp-go/client"

	"mcpgate/internal/api"
	"mcpgate/pkg/logging"
)

// StdioConfig describes a subprocess target. Env is added on top of the
// gateway's own environment.
type StdioConfig struct {
	Command string
	Args    []string
	Env     map[string]string
}

type stdioConnector struct {
	cfg StdioConfig
}

// NewStdio creates a target that spawns cfg.Command and speaks the protocol
// over its stdin and stdout.
func NewStdio(name string, cfg StdioConfig, opts ...Option) (*Client, error) {
	if cfg.Command == "" {
		return nil, api.New(api.KindBadRequest, "stdio target %q has no command", name)
	}
	cfg.Args = append([]string{}, cfg.Args...)
	env := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		env[k] = v
	}
	cfg.Env = env
	return newClient(name, &stdioConnector{cfg: cfg}, opts...)
}

func (s *stdioConnector) kind() Kind { return KindStdio }

func (s *stdioConnector) endpoint() string { return s.cfg.Command }

func (s *stdioConnector) dial(p dialParams) (*client.Client, error) {
	logging.Debug("StdioTarget", "Starting %s %v", s.cfg.Command, s.cfg.Args)

	cl, err := client.NewStdioMCPClientWithOptions(s.cfg.Command, s.envList(), s.cfg.Args)
	if err != nil {
		return nil, err
	}
	if stderr, ok := client.GetStderr(cl); ok {
		go func() {
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				logging.Debug("StdioTarget", "[%s] %s", s.cfg.Command, scanner.Text())
			}
		}()
	}

	if err := initialize(p.ctx, cl, "StdioTarget", s.cfg.Command); err != nil {
		return nil, err
	}
	return cl, nil
}

func (s *stdioConnector) envList() []string {
	keys := make([]string, 0, len(s.cfg.Env))
	for k := range s.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, s.cfg.Env[k]))
	}
	return env
}

func (s *stdioConnector) describe(err error) string {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return "command not found: " + s.cfg.Command
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("failed to start %s: no handshake before timeout", s.cfg.Command)
	}
	return fmt.Sprintf("failed to start %s: %v", s.cfg.Command, err)
}

func (s *stdioConnector) snapshot() TransportSnapshot {
	return TransportSnapshot{
		Command: s.cfg.Command,
		Args:    append([]string{}, s.cfg.Args...),
		Env:     redact(s.cfg.Env),
	}
}
