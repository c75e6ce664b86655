package d2

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"diagram-go/internal/browser"
	"diagram-go/internal/codec"
	"diagram-go/internal/diagram"
	"diagram-go/internal/logging"
	"diagram-go/internal/metrics"
	"diagram-go/internal/tracing"

	"golang.org/x/sync/semaphore"
)

// CompileRequest is what a compiler turns into a script.
type CompileRequest struct {
	Source  string
	Layout  string
	Theme   string
	ThemeID int
}

// Compiler produces the compiled script the render API takes.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (string, error)
}

// LocalCompiler encodes the source the way the playground encodes its
// script parameter: raw deflate at best compression, then URL-safe base64.
type LocalCompiler struct{}

func (LocalCompiler) Compile(_ context.Context, req CompileRequest) (string, error) {
	compressed, err := codec.NewRaw().Compress(req.Source)
	if err != nil {
		return "", fmt.Errorf("failed to encode d2 script: %w", err)
	}
	return base64.URLEncoding.EncodeToString(compressed), nil
}

// DecodeScript reverses LocalCompiler's encoding.
func DecodeScript(script string) (string, error) {
	compressed, err := base64.URLEncoding.DecodeString(script)
	if err != nil {
		return "", fmt.Errorf("failed to decode d2 script: %w", err)
	}
	return codec.NewRaw().Decompress(compressed)
}

// Page hooks the browser compiler relies on. The playground mirrors the
// compiled diagram into its address bar once layout has finished.
const (
	DefaultEditorSelector = "textarea"

	scriptReadyJS = `() => {
		const s = new URL(window.location.href).searchParams.get("script");
		return s !== null && s !== "";
	}`
	scriptValueJS = `() => new URL(window.location.href).searchParams.get("script") || ""`
)

// BrowserCompiler runs D2's client-side compiler in the playground page.
// Each Compile launches its own browser and always tears it down.
type BrowserCompiler struct {
	launcher       browser.Launcher
	playgroundURL  string
	editorSelector string
	sessions       *semaphore.Weighted
}

// NewBrowserCompiler creates a compiler allowing at most maxSessions browsers
// at once.
func NewBrowserCompiler(launcher browser.Launcher, playgroundURL string, maxSessions int) *BrowserCompiler {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	metrics.BrowserSessionsLimit.Set(float64(maxSessions))
	return &BrowserCompiler{
		launcher:       launcher,
		playgroundURL:  strings.TrimRight(playgroundURL, "/"),
		editorSelector: DefaultEditorSelector,
		sessions:       semaphore.NewWeighted(int64(maxSessions)),
	}
}

// pageURL preselects layout and theme through the playground's query string.
func (c *BrowserCompiler) pageURL(req CompileRequest) string {
	q := url.Values{}
	q.Set("layout", req.Layout)
	q.Set("theme", strconv.Itoa(req.ThemeID))
	return c.playgroundURL + "/?" + q.Encode()
}

func (c *BrowserCompiler) Compile(ctx context.Context, req CompileRequest) (_ string, err error) {
	ctx, span := tracing.BrowserSpan(ctx, req.Layout, req.Theme)
	defer func() { tracing.End(span, err) }()

	if err := c.sessions.Acquire(ctx, 1); err != nil {
		return "", diagram.Timeout(backend, fmt.Errorf("waiting for a browser slot: %w", err))
	}
	defer c.sessions.Release(1)

	session, err := c.launcher.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", diagram.Timeout(backend, err)
		}
		return "", diagram.Environment(backend, err)
	}
	metrics.BrowserSessionsActive.Inc()
	defer func() {
		metrics.BrowserSessionsActive.Dec()
		if closeErr := session.Close(); closeErr != nil {
			logging.FromContext(ctx).Warn("failed to close browser session", "component", "d2", "err", closeErr)
		}
	}()

	script, err := c.run(session, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", diagram.Timeout(backend, err)
		}
		return "", diagram.Transport(backend, err)
	}
	return script, nil
}

func (c *BrowserCompiler) run(session browser.Session, req CompileRequest) (string, error) {
	if err := session.Navigate(c.pageURL(req)); err != nil {
		return "", err
	}
	if err := session.Input(c.editorSelector, req.Source); err != nil {
		return "", err
	}
	if err := session.WaitFor(scriptReadyJS); err != nil {
		return "", err
	}
	script, err := session.Eval(scriptValueJS)
	if err != nil {
		return "", err
	}
	return script, nil
}

