package util

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDTransportPropagatesContextID(t *testing.T) {
	const incoming = "req-incoming-123"
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer srv.Close()

	client := &http.Client{Transport: RequestIDTransport{}}
	req, _ := http.NewRequestWithContext(WithRequestID(context.Background(), incoming), http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if got != incoming {
		t.Fatalf("unexpected request id: got %q want %q", got, incoming)
	}
}

func TestRequestIDTransportGeneratesWhenMissing(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer srv.Close()

	client := &http.Client{Transport: RequestIDTransport{}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if len(got) != 24 {
		t.Fatalf("expected generated 24-char request id, got %q", got)
	}
}

func TestRequestLogTransportLogsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := &http.Client{Transport: RequestIDTransport{Base: RequestLogTransport{Service: "api", Logger: logger}}}
	resp, err := client.Get(srv.URL + "/goals/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	for _, want := range []string{"http_request", "service=api", "path=/goals/", "status=418", "request_id="} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q missing %q", out, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Fatal("expected debug")
	}
	if ParseLevel("warning") != slog.LevelWarn {
		t.Fatal("expected warn")
	}
	if ParseLevel("verbose") != slog.LevelInfo {
		t.Fatal("expected info fallback")
	}
}

func TestLoggerFromContextFallsBackToDefault(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if LoggerFromContext(ContextWithLogger(context.Background(), logger)) != logger {
		t.Fatal("expected stored logger")
	}
}
