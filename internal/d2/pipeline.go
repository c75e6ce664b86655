// Package d2 turns D2 source into a link to D2's SVG render API, compiling
// the script in a headless browser running the playground.
package d2

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"diagram-go/internal/cache"
	"diagram-go/internal/diagram"
	"diagram-go/internal/metrics"
)

const (
	backend = "d2"

	DefaultRenderURL     = "https://api.d2lang.com/render/svg"
	DefaultPlaygroundURL = "https://play.d2lang.com"
	DefaultLayout        = "dagre"
	DefaultTimeout       = 45 * time.Second
)

// Request is one D2 render.
type Request struct {
	Source string
	Layout string
	Theme  string
	Sketch bool
}

// Pipeline compiles D2 source and builds render API URLs.
type Pipeline struct {
	compiler  Compiler
	cache     cache.ScriptCache
	themes    Themes
	renderURL string
	timeout   time.Duration
	logger    *slog.Logger
}

// PipelineConfig holds configuration for the Pipeline.
type PipelineConfig struct {
	RenderURL string
	Timeout   time.Duration
	Themes    map[string]int
}

// NewPipeline creates a pipeline. scriptCache may be nil.
func NewPipeline(cfg PipelineConfig, compiler Compiler, scriptCache cache.ScriptCache, logger *slog.Logger) *Pipeline {
	if cfg.RenderURL == "" {
		cfg.RenderURL = DefaultRenderURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		compiler:  compiler,
		cache:     scriptCache,
		themes:    NewThemes(cfg.Themes),
		renderURL: cfg.RenderURL,
		timeout:   cfg.Timeout,
		logger:    logger.With("component", "d2"),
	}
}

// Render compiles req within the pipeline's timeout and returns the render
// URL together with req.Source, unchanged.
func (p *Pipeline) Render(ctx context.Context, req Request) (diagram.Result, error) {
	if req.Source == "" {
		return diagram.Result{}, diagram.Validation("code must not be empty")
	}
	layout := req.Layout
	if layout == "" {
		layout = DefaultLayout
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	creq := CompileRequest{
		Source:  req.Source,
		Layout:  layout,
		Theme:   req.Theme,
		ThemeID: p.themes.ID(req.Theme),
	}
	script, err := p.script(ctx, creq)
	if err != nil {
		return diagram.Result{}, err
	}
	if script == "" {
		return diagram.Result{}, diagram.Render(backend, "the diagram did not compile")
	}
	p.logger.Debug("d2 script ready", "layout", layout, "theme", req.Theme, "theme_id", creq.ThemeID, "script_len", len(script))

	return diagram.Result{
		URL:          p.buildURL(layout, creq.ThemeID, req.Sketch, script),
		EchoedSource: req.Source,
	}, nil
}

// script consults the cache before compiling. Cache failures only cost a
// recompile.
func (p *Pipeline) script(ctx context.Context, req CompileRequest) (string, error) {
	if p.cache == nil {
		return p.compiler.Compile(ctx, req)
	}

	key := cache.Key(req.Source, req.Layout, strconv.Itoa(req.ThemeID))
	script, ok, err := p.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.ScriptCacheTotal.WithLabelValues("error").Inc()
		p.logger.Warn("script cache read failed", "err", err)
	case ok:
		metrics.ScriptCacheTotal.WithLabelValues("hit").Inc()
		return script, nil
	default:
		metrics.ScriptCacheTotal.WithLabelValues("miss").Inc()
	}

	script, err = p.compiler.Compile(ctx, req)
	if err != nil || script == "" {
		return script, err
	}
	if err := p.cache.Set(ctx, key, script); err != nil {
		p.logger.Warn("script cache write failed", "err", err)
	}
	return script, nil
}

func (p *Pipeline) buildURL(layout string, themeID int, sketch bool, script string) string {
	q := url.Values{}
	q.Set("layout", layout)
	q.Set("theme", strconv.Itoa(themeID))
	q.Set("sketch", "0")
	if sketch {
		q.Set("sketch", "1")
	}
	q.Set("script", script)
	return p.renderURL + "?" + q.Encode()
}
