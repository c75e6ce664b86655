// Package dispatch validates diagram requests and routes them to the
// backend for their language.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"diagram-go/internal/d2"
	"diagram-go/internal/diagram"
	"diagram-go/internal/logging"
	"diagram-go/internal/mermaid"
	"diagram-go/internal/metrics"
	"diagram-go/internal/plantuml"
	"diagram-go/internal/tracing"

	"golang.org/x/sync/errgroup"
)

// D2Renderer renders D2 requests.
type D2Renderer interface {
	Render(ctx context.Context, req d2.Request) (diagram.Result, error)
}

// Dispatcher holds one backend per language. It keeps no per-request state
// and is safe for concurrent use.
type Dispatcher struct {
	plantUML     plantuml.Encoder
	plantUMLHTTP *plantuml.Client
	mermaid      mermaid.Encoder
	mermaidTheme string
	d2           D2Renderer
	logger       *slog.Logger
}

// Backends are the collaborators a Dispatcher routes to.
type Backends struct {
	PlantUML plantuml.Encoder
	// PlantUMLClient, when set, fetches each PlantUML render before its URL is
	// returned so syntax errors surface as render errors.
	PlantUMLClient *plantuml.Client
	Mermaid        mermaid.Encoder
	// MermaidTheme is used when a request does not name a theme.
	MermaidTheme string
	D2           D2Renderer
}

// New creates a dispatcher over b.
func New(b Backends, logger *slog.Logger) *Dispatcher {
	if b.PlantUML.ServerURL == "" {
		b.PlantUML = plantuml.NewEncoder("", "")
	}
	if b.Mermaid.InkURL == "" {
		b.Mermaid = mermaid.NewEncoder("", "")
	}
	if b.MermaidTheme == "" {
		b.MermaidTheme = mermaid.DefaultTheme
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		plantUML:     b.PlantUML,
		plantUMLHTTP: b.PlantUMLClient,
		mermaid:      b.Mermaid,
		mermaidTheme: b.MermaidTheme,
		d2:           b.D2,
		logger:       logger.With("component", "dispatch"),
	}
}

// Render validates req, runs the backend for its language and returns the
// shareable URL. It does not retry; backends own their retry policy.
func (d *Dispatcher) Render(ctx context.Context, req diagram.Request) (res diagram.Result, err error) {
	if err := req.Validate(); err != nil {
		metrics.RequestsTotal.WithLabelValues("invalid", diagram.KindValidation.String()).Inc()
		return diagram.Result{}, err
	}

	lang := req.Language.String()
	ctx, span := tracing.RenderSpan(ctx, lang, req.DiagramType)
	start := time.Now()
	defer func() {
		tracing.End(span, err)
		metrics.EncodeDurationSeconds.WithLabelValues(lang).Observe(time.Since(start).Seconds())
		d.record(ctx, req, err, time.Since(start))
	}()

	switch req.Language {
	case diagram.PlantUML:
		return d.renderPlantUML(ctx, req)
	case diagram.Mermaid:
		return d.renderMermaid(req)
	case diagram.D2:
		return d.renderD2(ctx, req)
	default:
		return diagram.Result{}, diagram.Validation(fmt.Sprintf("unsupported lang %q", lang))
	}
}

func (d *Dispatcher) record(ctx context.Context, req diagram.Request, err error, elapsed time.Duration) {
	lang := req.Language.String()
	logger := logging.FromContext(ctx)
	if err == nil {
		metrics.RequestsTotal.WithLabelValues(lang, "ok").Inc()
		logger.Debug("diagram rendered", "component", "dispatch", "lang", lang, "type", req.DiagramType, "duration", elapsed)
		return
	}

	kind := diagram.KindOf(err)
	metrics.RequestsTotal.WithLabelValues(lang, kind.String()).Inc()
	level := slog.LevelWarn
	if kind == diagram.KindValidation || kind == diagram.KindRender {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "diagram request failed",
		"component", "dispatch", "lang", lang, "type", req.DiagramType, "kind", kind.String(), "err", err)
}

func (d *Dispatcher) renderPlantUML(ctx context.Context, req diagram.Request) (diagram.Result, error) {
	if d.plantUMLHTTP != nil {
		url, _, err := d.plantUMLHTTP.FetchRender(ctx, req.Source)
		if err != nil {
			return diagram.Result{}, err
		}
		return diagram.Result{URL: url, EchoedSource: req.Source}, nil
	}

	url, err := d.plantUML.URL(req.Source)
	if err != nil {
		return diagram.Result{}, fmt.Errorf("failed to encode plantuml source: %w", err)
	}
	return diagram.Result{URL: url, EchoedSource: req.Source}, nil
}

func (d *Dispatcher) renderMermaid(req diagram.Request) (diagram.Result, error) {
	theme := req.Options.Theme
	if theme == "" {
		theme = d.mermaidTheme
	}
	url, code, err := d.mermaid.BuildLiveEditorURL(mermaid.BuildState(req.Source, theme))
	if err != nil {
		return diagram.Result{}, fmt.Errorf("failed to encode mermaid state: %w", err)
	}
	return diagram.Result{URL: url, EchoedSource: code}, nil
}

func (d *Dispatcher) renderD2(ctx context.Context, req diagram.Request) (diagram.Result, error) {
	if d.d2 == nil {
		return diagram.Result{}, diagram.Environment("d2", fmt.Errorf("d2 backend is not configured"))
	}
	return d.d2.Render(ctx, d2.Request{
		Source: req.Source,
		Layout: req.Options.Layout,
		Theme:  req.Options.Theme,
		Sketch: req.Options.Sketch,
	})
}

// RenderAll renders reqs concurrently. Results are in the order of reqs; on
// failure the first error is returned and the remaining renders are
// cancelled.
func (d *Dispatcher) RenderAll(ctx context.Context, reqs []diagram.Request) ([]diagram.Result, error) {
	results := make([]diagram.Result, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := d.Render(ctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
