// Package plantuml builds PlantUML server URLs and fetches rendered
// diagrams to surface syntax errors.
package plantuml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"diagram-go/internal/diagram"
	"diagram-go/internal/logging"
	"diagram-go/internal/metrics"
	"diagram-go/internal/retry"
	"diagram-go/internal/tracing"

	"golang.org/x/time/rate"
)

const (
	backend = "plantuml"

	// DefaultServerURL is the public PlantUML server.
	DefaultServerURL = "https://www.plantuml.com/plantuml"
	// DefaultFormat is the image format path segment.
	DefaultFormat = "png"

	// Headers the PlantUML server sets when a diagram does not parse.
	headerDiagramError     = "X-PlantUML-Diagram-Error"
	headerDiagramErrorLine = "X-PlantUML-Diagram-Error-Line"

	maxDiagnosticBytes = 4 << 10
	maxRenderBytes     = 32 << 20
)

// Encoder turns PlantUML source into a server URL.
type Encoder struct {
	ServerURL string
	Format    string
}

// NewEncoder returns an encoder for the given server and format, falling back
// to the public server and PNG.
func NewEncoder(serverURL, format string) Encoder {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	if format == "" {
		format = DefaultFormat
	}
	return Encoder{ServerURL: strings.TrimRight(serverURL, "/"), Format: format}
}

// URL returns <server>/<format>/<payload> for source.
func (e Encoder) URL(source string) (string, error) {
	payload, err := Encode(source)
	if err != nil {
		return "", err
	}
	return e.ServerURL + "/" + e.Format + "/" + payload, nil
}

// Client fetches renders from a PlantUML server.
type Client struct {
	encoder    Encoder
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	logger     *slog.Logger
}

// ClientConfig holds configuration for the PlantUML client.
type ClientConfig struct {
	ServerURL  string
	Format     string
	Timeout    time.Duration
	MaxRetries int
	// RateLimit is the number of fetches per second; 0 means unlimited.
	RateLimit float64
}

// NewClient creates a new PlantUML client. httpClient may be nil, in which case
// a client with cfg.Timeout is created.
func NewClient(cfg ClientConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		encoder:    NewEncoder(cfg.ServerURL, cfg.Format),
		httpClient: httpClient,
		limiter:    limiter,
		policy:     policy,
		logger:     logger.With("component", "plantuml"),
	}
}

// Encoder returns the encoder the client builds URLs with.
func (c *Client) Encoder() Encoder { return c.encoder }

// FetchRender encodes source, requests the render and returns the URL with the
// rendered bytes. Sources the server cannot parse fail with a render error
// carrying the server's diagnostic.
func (c *Client) FetchRender(ctx context.Context, source string) (string, []byte, error) {
	if !hasStartMarker(source) {
		return "", nil, diagram.Render(backend, "no @startuml/@enduml block found")
	}

	url, err := c.encoder.URL(source)
	if err != nil {
		return "", nil, err
	}

	ctx, span := tracing.FetchSpan(ctx, backend, url)
	var content []byte
	_, err = retry.Do(ctx, backend, c.policy, func(ctx context.Context) error {
		var fetchErr error
		content, fetchErr = c.fetch(ctx, url)
		return fetchErr
	})
	tracing.End(span, err)
	if err != nil {
		c.logger.Debug("render fetch failed", "kind", diagram.KindOf(err).String(), "err", err)
		return url, nil, err
	}

	return url, content, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return nil, diagram.Timeout(backend, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build plantuml request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RemoteFetchDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			return nil, diagram.Timeout(backend, err)
		}
		return nil, diagram.Transport(backend, err)
	}
	defer resp.Body.Close()

	logger := logging.FromContext(ctx).With("component", "plantuml", "status", resp.StatusCode)

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		content, err := io.ReadAll(io.LimitReader(resp.Body, maxRenderBytes))
		if err != nil {
			return nil, diagram.Transport(backend, fmt.Errorf("failed to read render: %w", err))
		}
		if len(content) == 0 {
			return nil, diagram.Render(backend, "server returned an empty render")
		}
		logger.Debug("render fetched", "bytes", len(content))
		return content, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBytes))
	if resp.Header.Get(headerDiagramError) != "" || resp.StatusCode == http.StatusBadRequest {
		diagnostic := diagnosticFrom(resp, body)
		logger.Info("plantuml rejected diagram", "diagnostic", diagnostic)
		return nil, diagram.Render(backend, diagnostic)
	}

	// Anything else came from the server or a proxy in front of it, not from
	// the diagram. The body stays in the log.
	logger.Warn("plantuml server error", "body", string(body))
	statusErr := fmt.Errorf("status %d", resp.StatusCode)
	if resp.StatusCode == http.StatusRequestTimeout {
		return nil, diagram.Timeout(backend, statusErr)
	}
	return nil, diagram.Transport(backend, statusErr)
}

// diagnosticFrom prefers the server's error headers. A 400 without them
// falls back to a text body, or to the status line when the body is an image.
func diagnosticFrom(resp *http.Response, body []byte) string {
	if msg := resp.Header.Get(headerDiagramError); msg != "" {
		if line := resp.Header.Get(headerDiagramErrorLine); line != "" {
			return fmt.Sprintf("%s (line %s)", msg, line)
		}
		return msg
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/") && len(body) > 0 {
		return strings.TrimSpace(string(body))
	}
	return fmt.Sprintf("plantuml server returned status %d", resp.StatusCode)
}

func hasStartMarker(source string) bool {
	for _, line := range strings.Split(source, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "@start") {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
