package main

import (
	"context"
	"log/slog"
	"os"

	"diagram-go/internal/config"
	"diagram-go/internal/diagram"
	"diagram-go/internal/dispatch"
	"diagram-go/internal/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var version = "dev"

// renderer is the part of the dispatcher the tool needs.
type renderer interface {
	Render(ctx context.Context, req diagram.Request) (diagram.Result, error)
}

func main() {
	// stdout carries the protocol, so logs go to stderr.
	logger := logging.NewLoggerTo(os.Stderr, "info", "text", "diagram-mcp")
	slog.SetDefault(logger)

	configPath := os.Getenv("DIAGRAM_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	d, closeBackends, err := dispatch.FromConfig(context.Background(), cfg, logger)
	if err != nil {
		slog.Error("failed to initialize backends", "err", err)
		os.Exit(1)
	}
	defer closeBackends()

	slog.Info("starting MCP server on stdio", "version", version)
	if err := server.ServeStdio(newServer(d)); err != nil {
		slog.Error("mcp server stopped", "err", err)
		os.Exit(1)
	}
}

func newServer(r renderer) *server.MCPServer {
	s := server.NewMCPServer("diagram-go", version, server.WithToolCapabilities(false))
	s.AddTool(generateDiagramTool(), generateDiagramHandler(r))
	return s
}

func generateDiagramTool() mcp.Tool {
	return mcp.NewTool("generate_diagram",
		mcp.WithDescription("Turn PlantUML, Mermaid or D2 source into a link to the rendered diagram."),
		mcp.WithString("lang",
			mcp.Required(),
			mcp.Description("Diagram language"),
			mcp.Enum("plantuml", "mermaid", "d2"),
		),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Diagram source"),
		),
		mcp.WithString("type",
			mcp.Description("Diagram type, e.g. sequence or class"),
		),
		mcp.WithString("theme",
			mcp.Description("Mermaid theme or D2 theme name"),
		),
		mcp.WithString("layout",
			mcp.Description("D2 layout engine, e.g. dagre or elk"),
		),
		mcp.WithBoolean("sketch",
			mcp.Description("D2 hand-drawn mode"),
		),
	)
}

// generateDiagramHandler reports failures as tool errors so the model sees
// the diagnostic and can fix its diagram.
func generateDiagramHandler(r renderer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tag, err := request.RequireString("lang")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		lang, err := diagram.ParseLanguage(tag)
		if err != nil {
			return mcp.NewToolResultError(diagram.PublicMessage(err)), nil
		}

		res, err := r.Render(ctx, diagram.Request{
			Language:    lang,
			DiagramType: request.GetString("type", ""),
			Source:      code,
			Options: diagram.Options{
				Theme:  request.GetString("theme", ""),
				Layout: request.GetString("layout", ""),
				Sketch: request.GetBool("sketch", false),
			},
		})
		if err != nil {
			logging.FromContext(ctx).Warn("generate_diagram failed", "lang", lang.String(), "err", err)
			return mcp.NewToolResultError(diagram.PublicMessage(err)), nil
		}
		return mcp.NewToolResultText(res.URL), nil
	}
}
