package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"doit/internal/util"
	"doit/pkg/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 8 << 20
	maxGoalFetches   = 4
)

// Client calls the goal backend over HTTP. Every call is single shot.
type Client struct {
	baseURL    string
	httpClient *http.Client
	customHTTP bool
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
			c.customHTTP = true
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
// It has no effect together with WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 && !c.customHTTP {
			c.httpClient.Timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a backend client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:  slog.Default(),
	}
	c.httpClient = &http.Client{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if !c.customHTTP {
		c.httpClient.Transport = util.RequestIDTransport{
			Base: util.RequestLogTransport{Service: "goal-api", Logger: c.logger},
		}
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RegisterUser registers phone (or returns the existing user for it).
func (c *Client) RegisterUser(ctx context.Context, phone string) (domain.User, error) {
	payload := map[string]string{"phone_number": phone}
	var user domain.User
	if err := c.doJSON(ctx, "register user", http.MethodPost, "/auth/register", payload, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUser looks a user up by phone number.
func (c *Client) GetUser(ctx context.Context, phone string) (domain.User, error) {
	var user domain.User
	path := "/auth/user/" + url.PathEscape(phone)
	if err := c.doJSON(ctx, "get user", http.MethodGet, path, nil, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// CreateGoal creates a goal on the backend, which attaches a generated
// roadmap. target_date keeps the offset of targetDate.
//
// Goals added through the goal store stay local and never reach this call;
// how local goals should sync with the backend is still undecided.
func (c *Client) CreateGoal(ctx context.Context, userID, title, description string, targetDate time.Time) (domain.GoalResponse, error) {
	payload := createGoalRequest{
		UserID:      userID,
		Title:       title,
		Description: description,
		TargetDate:  targetDate.Format(time.RFC3339),
	}
	var goal domain.GoalResponse
	if err := c.doJSON(ctx, "create goal", http.MethodPost, "/goals/", payload, &goal); err != nil {
		return domain.GoalResponse{}, err
	}
	return goal, nil
}

// ListGoals returns the goals of userID in backend order.
func (c *Client) ListGoals(ctx context.Context, userID string) ([]domain.GoalResponse, error) {
	var goals []domain.GoalResponse
	path := "/goals/user/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, "list goals", http.MethodGet, path, nil, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

func (c *Client) GetGoal(ctx context.Context, goalID string) (domain.GoalResponse, error) {
	var goal domain.GoalResponse
	path := "/goals/" + url.PathEscape(goalID)
	if err := c.doJSON(ctx, "get goal", http.MethodGet, path, nil, &goal); err != nil {
		return domain.GoalResponse{}, err
	}
	return goal, nil
}

// GetGoals fetches several goals concurrently. Results keep the order of ids;
// the first failure cancels the remaining fetches.
func (c *Client) GetGoals(ctx context.Context, ids ...string) ([]domain.GoalResponse, error) {
	out := make([]domain.GoalResponse, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxGoalFetches)
	for i, id := range ids {
		g.Go(func() error {
			goal, err := c.GetGoal(gctx, id)
			if err != nil {
				return err
			}
			out[i] = goal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteGoal(ctx context.Context, goalID string) error {
	path := "/goals/" + url.PathEscape(goalID)
	return c.doJSON(ctx, "delete goal", http.MethodDelete, path, nil, nil)
}

// SendChat posts a message to the backend assistant for goalID.
func (c *Client) SendChat(ctx context.Context, goalID, message string) (domain.ChatReply, error) {
	payload := map[string]string{"goal_id": goalID, "message": message}
	var reply domain.ChatReply
	if err := c.doJSON(ctx, "send chat", http.MethodPost, "/chat/send", payload, &reply); err != nil {
		return domain.ChatReply{}, err
	}
	return reply, nil
}

// ChatHistory returns the stored conversation for goalID, oldest first.
func (c *Client) ChatHistory(ctx context.Context, goalID string) ([]domain.ChatHistoryMessage, error) {
	var resp chatHistoryResponse
	path := "/chat/history/" + url.PathEscape(goalID)
	if err := c.doJSON(ctx, "chat history", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// GenerateRoadmap asks the backend to (re)build the roadmap of goalID and
// returns it with the number of days it covers.
func (c *Client) GenerateRoadmap(ctx context.Context, goalID string) (domain.Roadmap, int, error) {
	payload := map[string]string{"goal_id": goalID}
	var resp roadmapResponse
	if err := c.doJSON(ctx, "generate roadmap", http.MethodPost, "/chat/roadmap", payload, &resp); err != nil {
		return domain.Roadmap{}, 0, err
	}
	return resp.Roadmap, resp.Days, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any, out any) error {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return &Error{Op: op, Kind: ErrInvalidURL, Err: err}
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &Error{Op: op, Kind: ErrTransport, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &Error{Op: op, Kind: ErrInvalidURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, Kind: ErrTransport, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return &Error{Op: op, Kind: ErrStatus, Err: &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Status, data)}}
	}
	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Error{Op: op, Kind: ErrNoData}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		c.logger.Debug("decode response failed", "op", op, "err", err)
		return &Error{Op: op, Kind: ErrDecoding, Err: err}
	}
	return nil
}

func (c *Client) endpoint(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", c.baseURL)
	}
	return u.String(), nil
}

// errorMessage extracts the message from {"detail": ...} (FastAPI) or
// {"error": ...} bodies, falling back to the status line.
func errorMessage(status string, body []byte) string {
	var errResp struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if len(errResp.Detail) > 0 {
			var detail string
			if json.Unmarshal(errResp.Detail, &detail) == nil && detail != "" {
				return detail
			}
			return string(errResp.Detail)
		}
		if errResp.Error != "" {
			return errResp.Error
		}
	}
	return status
}

type createGoalRequest struct {
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	TargetDate  string `json:"target_date"`
}

type chatHistoryResponse struct {
	Messages []domain.ChatHistoryMessage `json:"messages"`
}

type roadmapResponse struct {
	Roadmap domain.Roadmap `json:"roadmap"`
	Days    int            `json:"days"`
}
