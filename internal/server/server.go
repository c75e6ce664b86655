// Package server exposes the dispatcher over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"diagram-go/internal/diagram"
	"diagram-go/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestIDHeader = "X-Request-ID"

// Renderer renders a single diagram request.
type Renderer interface {
	Render(ctx context.Context, req diagram.Request) (diagram.Result, error)
}

// GenerateRequest is the body of POST /generate_diagram.
type GenerateRequest struct {
	Lang string `json:"lang"`
	Type string `json:"type"`
	Code string `json:"code"`

	Theme  string `json:"theme,omitempty"`
	Layout string `json:"layout,omitempty"`
	Sketch bool   `json:"sketch,omitempty"`
}

// GenerateResponse is the body of a successful POST /generate_diagram.
type GenerateResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Handler serves the diagram API.
type Handler struct {
	renderer Renderer
	version  string
	logger   *slog.Logger
}

// NewHandler creates a handler that renders through r.
func NewHandler(r Renderer, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{renderer: r, version: version, logger: logger.With("component", "server")}
}

// Router returns a gin engine with every route and middleware registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), h.requestID(), h.accessLog())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches the API routes to router.
func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.POST("/generate_diagram", h.generate)
	router.GET("/healthz", h.health)
}

func (h *Handler) generate(c *gin.Context) {
	var body GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, diagram.Validation(fmt.Sprintf("invalid body: %v", err)))
		return
	}

	lang, err := diagram.ParseLanguage(body.Lang)
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.renderer.Render(c.Request.Context(), diagram.Request{
		Language:    lang,
		DiagramType: body.Type,
		Source:      body.Code,
		Options: diagram.Options{
			Theme:  body.Theme,
			Layout: body.Layout,
			Sketch: body.Sketch,
		},
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{URL: res.URL})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

func (h *Handler) fail(c *gin.Context, err error) {
	kind := diagram.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error("diagram request failed", "component", "server", "kind", kind.String(), "err", err)
	}
	c.JSON(status, ErrorResponse{Error: diagram.PublicMessage(err), Kind: kind.String()})
}

// StatusFor maps an error kind to the HTTP status the API answers with.
func StatusFor(kind diagram.Kind) int {
	switch kind {
	case diagram.KindValidation:
		return http.StatusUnprocessableEntity
	case diagram.KindRender:
		return http.StatusBadRequest
	case diagram.KindTransport, diagram.KindEnvironment:
		return http.StatusServiceUnavailable
	case diagram.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// requestID tags each request with an id, reusing the caller's when given.
func (h *Handler) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.FromContext(c.Request.Context()).Debug("request served",
			"component", "server",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Start serves h on port in the background. Listen errors other than a
// clean shutdown are sent to errChan.
func Start(h *Handler, port int, errChan chan<- error) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		h.logger.Info("api server starting", "port", port)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("api server failed", "err", err)
			errChan <- err
		}
	}()

	return srv
}

// StartMetricsServer initializes and starts the HTTP server for Prometheus metrics.
// It returns a server instance for graceful shutdown support.
func StartMetricsServer(port int, errChan chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server starting", "port", port)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed to start", "err", err)
			errChan <- err
		}
	}()

	return srv
}
