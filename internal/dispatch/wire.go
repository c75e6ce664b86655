package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"diagram-go/internal/browser"
	"diagram-go/internal/cache"
	"diagram-go/internal/config"
	"diagram-go/internal/d2"
	"diagram-go/internal/mermaid"
	"diagram-go/internal/plantuml"
)

// FromConfig builds a dispatcher and its backends from cfg. The returned
// close function releases the script cache connection, if one was opened.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dispatcher, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	closeFn := func() error { return nil }

	client := plantuml.NewClient(plantuml.ClientConfig{
		ServerURL:  cfg.PlantUML.ServerURL,
		Format:     cfg.PlantUML.Format,
		Timeout:    cfg.PlantUML.Timeout,
		MaxRetries: cfg.PlantUML.MaxRetries,
		RateLimit:  cfg.PlantUML.RateLimit,
	}, nil, logger)

	var scriptCache cache.ScriptCache
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open script cache: %w", err)
		}
		scriptCache = rc
		closeFn = rc.Close
		logger.Info("d2 script cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
	}

	var compiler d2.Compiler
	switch cfg.D2.Compiler {
	case config.CompilerLocal:
		compiler = d2.LocalCompiler{}
	default:
		compiler = d2.NewBrowserCompiler(
			browser.RodLauncher{BinPath: cfg.D2.BrowserPath, Headless: cfg.D2.Headless},
			cfg.D2.PlaygroundURL,
			cfg.D2.MaxSessions,
		)
	}

	pipeline := d2.NewPipeline(d2.PipelineConfig{
		RenderURL: cfg.D2.RenderURL,
		Timeout:   cfg.D2.Timeout,
		Themes:    cfg.D2.Themes,
	}, compiler, scriptCache, logger)

	b := Backends{
		PlantUML:     client.Encoder(),
		Mermaid:      mermaid.NewEncoder(cfg.Mermaid.InkURL, cfg.Mermaid.LiveURL),
		MermaidTheme: cfg.Mermaid.Theme,
		D2:           pipeline,
	}
	if cfg.PlantUML.Verify {
		b.PlantUMLClient = client
	}

	return New(b, logger), closeFn, nil
}
