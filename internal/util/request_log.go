package util

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RequestLogTransport emits a structured log for each outbound HTTP request.
// It includes request_id so client logs can be matched with backend logs.
type RequestLogTransport struct {
	Base    http.RoundTripper
	Service string
	Logger  *slog.Logger
}

func (t RequestLogTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	service := strings.TrimSpace(t.Service)
	if service == "" {
		service = "unknown"
	}
	logger := t.Logger
	if logger == nil {
		logger = LoggerFromContext(req.Context())
	}
	start := time.Now()
	resp, err := base(t.Base).RoundTrip(req)
	attrs := []any{
		"service", service,
		"method", req.Method,
		"path", req.URL.Path,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", req.Header.Get(RequestIDHeader),
	}
	if err != nil {
		logger.Warn("http_request_failed", append(attrs, "err", err)...)
		return nil, err
	}
	logger.Debug("http_request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
