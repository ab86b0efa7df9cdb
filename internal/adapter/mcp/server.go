package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/trellisviz/trellis/internal/core/port"
	"github.com/trellisviz/trellis/internal/core/service"
)

// NewServer creates an MCPServer exposing one exploration session, with
// logging hooks and tool metrics.
func NewServer(version string, session *service.Session, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, session, logger)

	return s
}
