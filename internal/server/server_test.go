package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"diagram-go/internal/d2"
	"diagram-go/internal/diagram"
	"diagram-go/internal/dispatch"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d := dispatch.New(dispatch.Backends{
		D2: d2.NewPipeline(d2.PipelineConfig{Timeout: time.Second}, d2.LocalCompiler{}, nil, nil),
	}, nil)
	return NewHandler(d, "test", nil).Router()
}

func post(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/generate_diagram", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGenerateDiagram(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name     string
		body     string
		wantHost string
	}{
		{
			name:     "plantuml",
			body:     `{"lang": "plantuml", "type": "sequence", "code": "@startuml \n Alice -> Bob: Authentication Request  \n @enduml"}`,
			wantHost: "https://www.plantuml.com/plantuml/png/",
		},
		{
			name:     "mermaid",
			body:     `{"lang": "mermaid", "type": "sequence", "code": "sequenceDiagram\n    Alice->>Bob: Hello Bob, how are you?"}`,
			wantHost: "https://mermaid.ink/svg/pako:",
		},
		{
			name:     "d2 upper case tag",
			body:     `{"lang": "D2", "type": "class", "code": "class Test{}"}`,
			wantHost: "https://api.d2lang.com/render/svg?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, router, tt.body)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			var resp GenerateResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.True(t, strings.HasPrefix(resp.URL, tt.wantHost), resp.URL)
		})
	}
}

func TestGenerateDiagram_Unprocessable(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty code", `{"lang": "plantuml", "type": "sequence", "code": ""}`},
		{"no lang", `{"type": "sequence", "code": "@startuml\nAlice -> Bob: Authentication Request\n@enduml"}`},
		{"unsupported lang", `{"lang": "unsupported", "type": "sequence", "code": "@startuml\nAlice -> Bob\n@enduml"}`},
		{"malformed json", `{"lang": "plantuml", "code":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, router, tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, "validation", resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

type failingRenderer struct{ err error }

func (f failingRenderer) Render(context.Context, diagram.Request) (diagram.Result, error) {
	return diagram.Result{}, f.err
}

func TestGenerateDiagram_ErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"render", diagram.Render("plantuml", "Syntax Error? (line 2)"), http.StatusBadRequest, "Syntax Error? (line 2)"},
		{"transport", diagram.Transport("plantuml", errors.New("dial tcp: connection refused")), http.StatusServiceUnavailable, ""},
		{"environment", diagram.Environment("d2", errors.New("chromium not found")), http.StatusServiceUnavailable, ""},
		{"timeout", diagram.Timeout("d2", context.DeadlineExceeded), http.StatusGatewayTimeout, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewHandler(failingRenderer{err: tt.err}, "test", nil).Router()
			rr := post(t, router, `{"lang": "d2", "type": "class", "code": "a -> b"}`)
			assert.Equal(t, tt.wantStatus, rr.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error)
			}
			// Internal detail never leaks.
			assert.NotContains(t, resp.Error, "connection refused")
			assert.NotContains(t, resp.Error, "chromium")
		})
	}
}

func TestHealthz(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "ok", "version": "test"}`, rr.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/generate_diagram", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRequestID(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Len(t, rr.Header().Get(requestIDHeader), 36)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(diagram.KindValidation))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(diagram.KindUnknown))
}
