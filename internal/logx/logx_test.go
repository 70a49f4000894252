package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestNormalizeRequestID(t *testing.T) {
	for _, keep := range []string{"d4f9cbf0-5b95-4efe-a542-24f55108db4f", "job-42.retry_1"} {
		if got := NormalizeRequestID(keep); got != keep {
			t.Fatalf("expected %q to be preserved, got %q", keep, got)
		}
	}

	for _, bad := range []string{"", "has space", "new\nline", strings.Repeat("a", 65)} {
		got := NormalizeRequestID(bad)
		if got == bad {
			t.Fatalf("expected %q to be replaced", bad)
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("expected generated request id to be a uuid, got %q", got)
		}
	}
}

func TestRequestIDMiddlewarePropagatesToContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Fatalf("expected response request id trace-123, got %q", got)
	}
	if seen != "trace-123" {
		t.Fatalf("expected handler context to carry trace-123, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "bad id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	got := w.Header().Get("X-Request-ID")
	if got == "bad id" || got == "" {
		t.Fatalf("expected middleware to replace invalid id, got %q", got)
	}
	if seen != got {
		t.Fatalf("expected context request id %q to match header %q", seen, got)
	}
}

func captureDefault(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestComponentCarriesContextIDs(t *testing.T) {
	buf := captureDefault(t, slog.LevelInfo)

	ctx := WithRunID(WithRequestID(context.Background(), "req-1"), "run-1")
	Component(ctx, "pipeline").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	if entry["component"] != "pipeline" || entry["request_id"] != "req-1" || entry["run_id"] != "run-1" {
		t.Fatalf("unexpected log attributes: %v", entry)
	}

	buf.Reset()
	Component(context.Background(), "janitor").Info("bare")
	if strings.Contains(buf.String(), "request_id") || strings.Contains(buf.String(), "run_id") {
		t.Fatalf("expected no ids on a bare context, got %s", buf.String())
	}
}

func TestAccessLogDemotesProbePaths(t *testing.T) {
	buf := captureDefault(t, slog.LevelInfo)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), AccessLogMiddleware("test_http"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/files", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Fatalf("expected health access log below info, got %s", buf.String())
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/files", nil))
	if !strings.Contains(buf.String(), `"route":"/api/v1/files"`) {
		t.Fatalf("expected api access log, got %s", buf.String())
	}
}

func TestAccessLevel(t *testing.T) {
	cases := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/health", 200, slog.LevelDebug},
		{"/readyz", 503, slog.LevelError},
		{"/api/v1/files", 200, slog.LevelInfo},
		{"/api/v1/download/x", 404, slog.LevelWarn},
	}
	for _, tc := range cases {
		if got := accessLevel(tc.path, tc.status); got != tc.want {
			t.Fatalf("accessLevel(%s, %d) = %s, want %s", tc.path, tc.status, got, tc.want)
		}
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "TEXT",
		"LOG_OUTPUT":           "stdout, file",
		"LOG_FILE_MAX_SIZE_MB": "-3",
	}
	cfg := LoadConfig("gmshgen-server", func(k string) string { return env[k] })
	if cfg.Level.String() != "DEBUG" {
		t.Fatalf("expected debug level, got %s", cfg.Level)
	}
	if cfg.Format != "text" {
		t.Fatalf("expected text format, got %q", cfg.Format)
	}
	if cfg.Output != "stdout,file" {
		t.Fatalf("expected stdout,file output, got %q", cfg.Output)
	}
	if cfg.MaxSizeMB != defaultMaxSizeMB {
		t.Fatalf("expected invalid size to fall back to %d, got %d", defaultMaxSizeMB, cfg.MaxSizeMB)
	}
	if !cfg.Compress || cfg.AddSource {
		t.Fatalf("expected compress on and add-source off by default, got %+v", cfg)
	}
	if cfg.ServiceName != "gmshgen-server" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
}

func TestLoadConfigBoolOverrides(t *testing.T) {
	env := map[string]string{
		"LOG_FILE_COMPRESS": "false",
		"LOG_ADD_SOURCE":    "true",
		"LOG_OUTPUT":        "syslog",
	}
	cfg := LoadConfig("gmshgen", func(k string) string { return env[k] })
	if cfg.Compress {
		t.Fatalf("expected LOG_FILE_COMPRESS=false to disable compression")
	}
	if !cfg.AddSource {
		t.Fatalf("expected LOG_ADD_SOURCE=true to enable source")
	}
	if cfg.Output != "stdout" {
		t.Fatalf("expected unknown output to fall back to stdout, got %q", cfg.Output)
	}
}
