package target

import (
	"fmt"
	"os"
	"testing"

	"mcpgate/internal/testing/mock"
)

const stdioHelperEnv = "MCPGATE_STDIO_HELPER"

// TestMain doubles the test binary as a stdio upstream. With
// MCPGATE_STDIO_HELPER=1 it serves a fixed mock server on stdin/stdout
// instead of running tests; any other value is read as the path of a mock
// server YAML file.
func TestMain(m *testing.M) {
	switch v := os.Getenv(stdioHelperEnv); v {
	case "":
		os.Exit(m.Run())
	case "1":
		serveHelper(mock.NewServer(mock.ServerConfig{
			Name:    "stdio",
			Tools:   mock.Tools("echo"),
			Prompts: mock.Prompts("greet"),
		}), nil)
	default:
		serveHelper(mock.NewServerFromFile(v))
	}
}

func serveHelper(srv *mock.Server, err error) {
	if err == nil {
		err = srv.ServeStdio()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
