package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"doit/pkg/domain"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestRegisterUserSendsPhoneNumber(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/register" {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("expected X-Request-Id header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["phone_number"] != "5550100100" {
			t.Errorf("phone_number = %q", body["phone_number"])
		}
		_, _ = w.Write([]byte(`{"id":"u1","phone_number":"5550100100","created_at":"2026-01-02T03:04:05.000001"}`))
	})

	user, err := c.RegisterUser(context.Background(), "5550100100")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID != "u1" || user.PhoneNumber != "5550100100" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.CreatedAt.Year() != 2026 {
		t.Fatalf("unexpected created_at: %v", user.CreatedAt)
	}
}

func TestRegisterUserTransportFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewClient("http://" + addr)
	user, err := c.RegisterUser(context.Background(), "5550100100")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got: %v", err)
	}
	if user != (domain.User{}) {
		t.Fatalf("expected zero user on failure, got %+v", user)
	}
}

func TestEmptyBodyIsNoData(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, err := c.RegisterUser(context.Background(), "5550100100")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected no data error, got: %v", err)
	}
}

func TestWrongShapeIsDecodingError(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 42}`))
	})
	user, err := c.RegisterUser(context.Background(), "5550100100")
	if !errors.Is(err, ErrDecoding) {
		t.Fatalf("expected decoding error, got: %v", err)
	}
	if user.ID != "" {
		t.Fatalf("expected zero user, got %+v", user)
	}
}

func TestInvalidBaseURL(t *testing.T) {
	c := NewClient("localhost:8000")
	if _, err := c.ListGoals(context.Background(), "u1"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected invalid url error, got: %v", err)
	}
}

func TestErrorStatusCarriesDetail(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Goal not found"}`))
	})
	_, err := c.GetGoal(context.Background(), "missing")
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected status error, got: %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError in chain, got: %T", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "Goal not found" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !IsNotFound(err) {
		t.Fatal("expected IsNotFound")
	}
}

func TestValidationErrorDetailFallsBackToRaw(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","phone_number"],"msg":"too short"}]}`))
	})
	_, err := c.RegisterUser(context.Background(), "123")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got: %v", err)
	}
	if !strings.Contains(apiErr.Message, "too short") {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestCreateGoalEncodesTargetDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	target := time.Date(2026, 6, 30, 0, 0, 0, 0, loc)

	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/goals/" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["user_id"] != "u1" || body["title"] != "Learn Go" || body["description"] != "finish the tour" {
			t.Errorf("unexpected body: %v", body)
		}
		resp := map[string]any{
			"id":          "g1",
			"user_id":     body["user_id"],
			"title":       body["title"],
			"description": body["description"],
			"target_date": body["target_date"],
			"created_at":  "2026-01-01T00:00:00",
			"streak":      0,
			"progress":    0.0,
			"roadmap": map[string]any{
				"total_days": 1,
				"summary":    "one step",
				"days": []map[string]any{{
					"day": 1, "date": "2026-01-01", "title": "start", "tips": "go",
					"tasks": []map[string]any{{"task": "tour", "duration_minutes": 30, "resources": []string{"https://go.dev/tour"}}},
				}},
			},
			"today_tasks": nil,
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	goal, err := c.CreateGoal(context.Background(), "u1", "Learn Go", "finish the tour", target)
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if !goal.TargetDate.Equal(target) {
		t.Fatalf("target_date round trip = %v, want %v", goal.TargetDate.Time, target)
	}
	if goal.Roadmap == nil || len(goal.Roadmap.Days) != 1 || goal.Roadmap.Days[0].Tasks[0].DurationMinutes != 30 {
		t.Fatalf("unexpected roadmap: %+v", goal.Roadmap)
	}
	if goal.TodayTasks != nil {
		t.Fatalf("expected nil today_tasks, got %+v", goal.TodayTasks)
	}
}

func TestListGoalsEscapesUserID(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.EscapedPath() != "/goals/user/a%2Fb" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.EscapedPath())
		}
		_, _ = w.Write([]byte(`[{"id":"g2","target_date":"2026-02-01T00:00:00Z"},{"id":"g1","target_date":"2026-01-01T00:00:00+02:00"}]`))
	})
	goals, err := c.ListGoals(context.Background(), "a/b")
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(goals) != 2 || goals[0].ID != "g2" || goals[1].ID != "g1" {
		t.Fatalf("unexpected goals: %+v", goals)
	}
}

func TestListGoalsEmptyArray(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	goals, err := c.ListGoals(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(goals) != 0 {
		t.Fatalf("expected no goals, got %d", len(goals))
	}
}

func TestGetGoalsKeepsOrder(t *testing.T) {
	var calls int32
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		id := strings.TrimPrefix(r.URL.Path, "/goals/")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "title": "goal " + id})
	})
	ids := []string{"a", "b", "c", "d", "e", "f"}
	goals, err := c.GetGoals(context.Background(), ids...)
	if err != nil {
		t.Fatalf("get goals: %v", err)
	}
	for i, id := range ids {
		if goals[i].ID != id {
			t.Fatalf("goals[%d] = %q, want %q", i, goals[i].ID, id)
		}
	}
	if atomic.LoadInt32(&calls) != int32(len(ids)) {
		t.Fatalf("expected %d calls, got %d", len(ids), calls)
	}
}

func TestGetGoalsFailsOnFirstError(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/bad") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Goal not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"ok"}`))
	})
	goals, err := c.GetGoals(context.Background(), "ok", "bad")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got: %v", err)
	}
	if goals != nil {
		t.Fatalf("expected nil goals on failure, got %+v", goals)
	}
}

func TestDeleteGoal(t *testing.T) {
	var method, path string
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_, _ = w.Write([]byte(`{"message":"Goal deleted successfully"}`))
	})
	if err := c.DeleteGoal(context.Background(), "g1"); err != nil {
		t.Fatalf("delete goal: %v", err)
	}
	if method != http.MethodDelete || path != "/goals/g1" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
}

func TestChatEndpoints(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/chat/send":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"user_message": body["message"],
				"ai_response":  "reply to " + body["message"],
				"timestamp":    "2026-01-01T10:00:00.5",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/chat/history/g1":
			_, _ = w.Write([]byte(`{"messages":[{"content":"hi","is_user":true,"timestamp":"2026-01-01T10:00:00"},{"content":"hello","is_user":false,"timestamp":"2026-01-01T10:00:00"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/chat/roadmap":
			_, _ = w.Write([]byte(`{"roadmap":{"total_days":3,"summary":"s","days":[]},"days":3}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	reply, err := c.SendChat(ctx, "g1", "hi")
	if err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if reply.UserMessage != "hi" || reply.AIResponse != "reply to hi" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	history, err := c.ChatHistory(ctx, "g1")
	if err != nil {
		t.Fatalf("chat history: %v", err)
	}
	if len(history) != 2 || !history[0].IsUser || history[1].IsUser {
		t.Fatalf("unexpected history: %+v", history)
	}

	roadmap, days, err := c.GenerateRoadmap(ctx, "g1")
	if err != nil {
		t.Fatalf("generate roadmap: %v", err)
	}
	if days != 3 || roadmap.TotalDays != 3 {
		t.Fatalf("unexpected roadmap: %+v days=%d", roadmap, days)
	}
}

func TestCanceledContextIsTransportError(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListGoals(ctx, "u1")
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled transport error, got: %v", err)
	}
}

func TestGoDeliversResult(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"u1","phone_number":"5550100100","created_at":""}`))
	})
	ch := Go(context.Background(), func(ctx context.Context) (domain.User, error) {
		return c.RegisterUser(ctx, "5550100100")
	})
	select {
	case res := <-ch:
		if res.Err != nil || res.Value.ID != "u1" {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestGetUser(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		switch r.URL.Path {
		case "/auth/user/+15550100100":
			_, _ = w.Write([]byte(`{"id":"u1","phone_number":"+15550100100","created_at":"2026-01-02T03:04:05"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"User not found"}`))
		}
	})

	user, err := c.GetUser(context.Background(), "+15550100100")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ID != "u1" || user.PhoneNumber != "+15550100100" {
		t.Fatalf("unexpected user: %+v", user)
	}

	user, err = c.GetUser(context.Background(), "5550100999")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got: %v", err)
	}
	if user != (domain.User{}) {
		t.Fatalf("expected zero user on failure, got %+v", user)
	}
}
