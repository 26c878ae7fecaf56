package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"doit/internal/apiclient"
	"doit/internal/chat"
	"doit/internal/goals"
	"doit/internal/ratelimit"
	"doit/internal/session"
	"doit/pkg/auth"
	"doit/pkg/domain"
	"doit/pkg/kvstore"
)

var (
	ErrNotLoggedIn     = errors.New("not signed in")
	ErrNoPendingSignIn = errors.New("request a verification code first")
	ErrClosed          = errors.New("app closed")
	ErrTooManyRequests = errors.New("too many code requests, try again later")
)

// Config holds runtime configuration for the client core.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	KV             kvstore.Config

	// KVStore, when set, is used instead of opening KV. App takes ownership.
	KVStore kvstore.Store

	ChatReplyDelay time.Duration
	ChatOptions    []chat.Option
	OTPCode        string
	Logger         *slog.Logger
	Now            func() time.Time

	// SignInLimit caps code requests per phone number in each SignInWindow.
	// Zero disables the limit. With the redis settings backend the quota is
	// shared through Redis.
	SignInLimit  int
	SignInWindow time.Duration

	// Dispatcher delivers async results. It must not block; the default runs
	// the callback on the worker goroutine.
	Dispatcher func(func())
}

// App wires the session, goal and chat stores to the backend client.
type App struct {
	logger   *slog.Logger
	kv       kvstore.Store
	api      *apiclient.Client
	session  *session.Store
	goals    *goals.Store
	chats    *chat.Registry
	otp      auth.OTPVerifier
	limiter  *ratelimit.FixedWindowLimiter
	dispatch func(func())
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending *domain.User
	closed  bool
}

// New constructs the application and rehydrates any saved session.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL required")
	}
	otp, err := auth.NewStaticVerifier(cfg.OTPCode)
	if err != nil {
		return nil, fmt.Errorf("init otp verifier: %w", err)
	}
	kv := cfg.KVStore
	if kv == nil {
		kv, err = kvstore.Open(cfg.KV)
		if err != nil {
			return nil, fmt.Errorf("open settings store: %w", err)
		}
	}
	sess, err := session.New(ctx, kv, logger)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	limiter, err := newSignInLimiter(cfg)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("init sign-in limiter: %w", err)
	}

	clientOpts := []apiclient.Option{apiclient.WithLogger(logger)}
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, apiclient.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.RequestTimeout > 0 {
		clientOpts = append(clientOpts, apiclient.WithTimeout(cfg.RequestTimeout))
	}
	chatOpts := []chat.Option{chat.WithLogger(logger)}
	if cfg.ChatReplyDelay > 0 {
		chatOpts = append(chatOpts, chat.WithReplyDelay(cfg.ChatReplyDelay))
	}
	chatOpts = append(chatOpts, cfg.ChatOptions...)

	dispatch := cfg.Dispatcher
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	return &App{
		logger:   logger,
		kv:       kv,
		api:      apiclient.NewClient(cfg.BaseURL, clientOpts...),
		session:  sess,
		goals:    goals.NewStore(),
		chats:    chat.NewRegistry(chatOpts...),
		otp:      otp,
		limiter:  limiter,
		dispatch: dispatch,
		now:      now,
		ctx:      rootCtx,
		cancel:   cancel,
	}, nil
}

func (a *App) Session() *session.Store { return a.session }

func (a *App) GoalStore() *goals.Store { return a.goals }

// RequestCode registers phone with the backend and remembers the user until
// the code is verified.
func (a *App) RequestCode(ctx context.Context, phone string) (domain.User, error) {
	if a.isClosed() {
		return domain.User{}, ErrClosed
	}
	user, err := a.register(ctx, phone)
	if err != nil {
		return domain.User{}, err
	}
	a.setPending(user)
	return user, nil
}

// RequestCodeAsync runs RequestCode off the caller's goroutine and hands the
// outcome to done through the dispatcher. The outcome is dropped if the app
// closes or the session changes before it arrives.
func (a *App) RequestCodeAsync(ctx context.Context, phone string, done func(domain.User, error)) {
	if a.isClosed() {
		if done != nil {
			a.dispatch(func() { done(domain.User{}, ErrClosed) })
		}
		return
	}
	gen := a.session.Generation()
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)
	results := apiclient.Go(ctx, func(ctx context.Context) (domain.User, error) {
		return a.register(ctx, phone)
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		defer stop()
		res := <-results
		a.dispatch(func() {
			if a.isClosed() || a.session.Generation() != gen {
				a.logger.Debug("sign-in result dropped", "err", res.Err)
				return
			}
			if res.Err == nil {
				a.setPending(res.Value)
			}
			if done != nil {
				done(res.Value, res.Err)
			}
		})
	}()
}

// VerifyCode checks code for the pending user and starts the session. When
// the session cannot be persisted the user is still signed in and the error
// is returned alongside it.
func (a *App) VerifyCode(ctx context.Context, code string) (domain.User, error) {
	a.mu.Lock()
	pending := a.pending
	a.mu.Unlock()
	if pending == nil {
		return domain.User{}, ErrNoPendingSignIn
	}
	if err := a.otp.Verify(pending.PhoneNumber, code); err != nil {
		return domain.User{}, err
	}
	user := *pending
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
	if err := a.session.Login(ctx, user); err != nil {
		return user, err
	}
	return user, nil
}

// Logout ends the session and drops the goals and conversations it owned.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
	err := a.session.Logout(ctx)
	a.goals.Reset()
	a.chats.CloseAll()
	return err
}

// AddGoal validates the draft and adds it to the local goal list. Title and
// description are stored as typed.
func (a *App) AddGoal(title, description string, targetDate time.Time) (domain.Goal, error) {
	if !a.session.LoggedIn() {
		return domain.Goal{}, ErrNotLoggedIn
	}
	if err := goals.ValidateDraft(title, description); err != nil {
		return domain.Goal{}, err
	}
	return a.goals.AddGoal(title, description, targetDate), nil
}

func (a *App) Goals() []domain.Goal {
	return a.goals.Goals()
}

// Chat returns the conversation of goalID.
func (a *App) Chat(goalID string) (*chat.Store, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}
	if _, ok := a.goals.Get(goalID); !ok {
		return nil, fmt.Errorf("goal %q not found", goalID)
	}
	return a.chats.Get(goalID), nil
}

// RemoteGoals lists the signed-in user's goals stored on the backend. The
// local goal list is left alone.
func (a *App) RemoteGoals(ctx context.Context) ([]domain.GoalResponse, error) {
	user, ok := a.session.Current()
	if !ok {
		return nil, ErrNotLoggedIn
	}
	return a.api.ListGoals(ctx, user.ID)
}

// TodayPlan returns today's roadmap entry of a backend goal.
func (a *App) TodayPlan(ctx context.Context, goalID string) (domain.DayTask, bool, error) {
	goal, err := a.api.GetGoal(ctx, goalID)
	if err != nil {
		return domain.DayTask{}, false, err
	}
	if goal.TodayTasks != nil {
		return *goal.TodayTasks, true, nil
	}
	if goal.Roadmap == nil {
		return domain.DayTask{}, false, nil
	}
	day, ok := goal.Roadmap.DayFor(a.now())
	return day, ok, nil
}

// RemoteHistory returns the backend conversation of a goal.
func (a *App) RemoteHistory(ctx context.Context, goalID string) ([]domain.ChatHistoryMessage, error) {
	if !a.session.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	return a.api.ChatHistory(ctx, goalID)
}

// Close drops in-flight async results, stops chat replies and closes the
// settings store.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	a.chats.CloseAll()
	return errors.Join(a.limiter.Close(), a.kv.Close())
}

func (a *App) register(ctx context.Context, phone string) (domain.User, error) {
	phone = auth.NormalizePhone(phone)
	if err := auth.ValidatePhone(phone); err != nil {
		return domain.User{}, err
	}
	if !a.limiter.Allow(ctx, phone) {
		return domain.User{}, ErrTooManyRequests
	}
	user, err := a.api.RegisterUser(ctx, phone)
	if err != nil {
		a.logger.Warn("register user failed", "err", err)
		return domain.User{}, err
	}
	return user, nil
}

func newSignInLimiter(cfg Config) (*ratelimit.FixedWindowLimiter, error) {
	if cfg.SignInLimit <= 0 {
		return nil, nil
	}
	window := cfg.SignInWindow
	if window <= 0 {
		window = time.Minute
	}
	if cfg.KVStore == nil && strings.EqualFold(cfg.KV.Backend, kvstore.BackendRedis) {
		return ratelimit.NewRedisFixedWindowLimiter(cfg.KV.RedisAddr, cfg.KV.RedisPassword, "", cfg.SignInLimit, window)
	}
	return ratelimit.NewFixedWindowLimiter(cfg.SignInLimit, window)
}

func (a *App) setPending(user domain.User) {
	a.mu.Lock()
	a.pending = &user
	a.mu.Unlock()
}

func (a *App) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
