package util

import (
	"context"
	"net/http"
	"strings"
)

type requestIDContextKey string

const (
	RequestIDHeader = "X-Request-Id"
	requestIDCtxKey = requestIDContextKey("request_id")
)

// WithRequestID returns a context carrying id. Outbound requests made with
// that context reuse it instead of generating a fresh one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, strings.TrimSpace(id))
}

// RequestIDFromContext returns request id from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// RequestIDTransport stamps every outbound request with X-Request-Id: the id
// from the request context when present, otherwise a new one.
type RequestIDTransport struct {
	Base http.RoundTripper
}

func (t RequestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.TrimSpace(req.Header.Get(RequestIDHeader)) == "" {
		id := RequestIDFromContext(req.Context())
		if id == "" {
			id = NewID()
		}
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, id)
	}
	return base(t.Base).RoundTrip(req)
}

func base(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}
