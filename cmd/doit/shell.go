package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"doit/internal/app"
	"doit/internal/util"
	"doit/pkg/domain"
)

const helpText = `commands:
  signin <phone>                          request a verification code
  otp <code>                              verify the code and sign in
  whoami                                  show the signed-in user
  goal add <title> | <description> | <YYYY-MM-DD>
  goals                                   list local goals, newest first
  remote                                  list goals stored on the backend
  today <goal-id>                         show today's roadmap entry of a backend goal
  chat <n> <text>                         talk to the assistant about goal n
  history <n>                             show the conversation of goal n
  logout
  quit`

// shell drives the app from line input. Output may be written from timer
// and worker goroutines, so every write goes through out.
type shell struct {
	app     *app.App
	out     *syncWriter
	watched map[string]func()
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func newShell(a *app.App, w io.Writer) *shell {
	return &shell{app: a, out: &syncWriter{w: w}, watched: make(map[string]func())}
}

// Run reads commands until quit, EOF or ctx is done.
func (s *shell) Run(ctx context.Context, in io.Reader) error {
	if user, ok := s.app.Session().Current(); ok {
		s.out.printf("signed in as %s\n", user.PhoneNumber)
	}
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	s.out.printf("> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if s.exec(ctx, line) {
				return nil
			}
			s.out.printf("> ")
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	logger := util.LoggerFromContext(ctx)
	switch cmd {
	case "":
	case "help":
		s.out.printf("%s\n", helpText)
	case "quit", "exit":
		return true
	case "signin":
		s.app.RequestCodeAsync(ctx, rest, func(user domain.User, err error) {
			if err != nil {
				s.out.printf("\nsign-in failed: %v\n", err)
				return
			}
			s.out.printf("\ncode sent to %s, enter it with: otp <code>\n", user.PhoneNumber)
		})
	case "otp":
		user, err := s.app.VerifyCode(ctx, rest)
		if user.ID == "" {
			s.out.printf("verification failed: %v\n", err)
			break
		}
		if err != nil {
			logger.Warn("session not persisted", "err", err)
			s.out.printf("warning: session will not survive a restart: %v\n", err)
		}
		s.out.printf("signed in as %s\n", user.PhoneNumber)
	case "whoami":
		if user, ok := s.app.Session().Current(); ok {
			s.out.printf("%s (%s)\n", user.PhoneNumber, user.ID)
		} else {
			s.out.printf("not signed in\n")
		}
	case "goal":
		s.addGoal(rest)
	case "goals":
		s.listGoals()
	case "remote":
		s.listRemote(ctx)
	case "today":
		s.today(ctx, rest)
	case "chat":
		s.chat(rest)
	case "history":
		s.history(rest)
	case "logout":
		for id, unsubscribe := range s.watched {
			unsubscribe()
			delete(s.watched, id)
		}
		if err := s.app.Logout(ctx); err != nil {
			s.out.printf("warning: %v\n", err)
		}
		s.out.printf("signed out\n")
	default:
		s.out.printf("unknown command %q, try help\n", cmd)
	}
	return false
}

func (s *shell) addGoal(rest string) {
	sub, args, _ := strings.Cut(rest, " ")
	if sub != "add" {
		s.out.printf("usage: goal add <title> | <description> | <YYYY-MM-DD>\n")
		return
	}
	title, description, target, err := parseGoalArgs(args)
	if err != nil {
		s.out.printf("%v\n", err)
		return
	}
	goal, err := s.app.AddGoal(title, description, target)
	if err != nil {
		s.out.printf("cannot add goal: %v\n", err)
		return
	}
	s.out.printf("added %q (due %s)\n", goal.Title, goal.TargetDate.Format(time.DateOnly))
}

// parseGoalArgs splits "title | description | date". The date is optional
// and defaults to 30 days from today, like the goal form.
func parseGoalArgs(args string) (string, string, time.Time, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 2 || len(parts) > 3 {
		return "", "", time.Time{}, errors.New("usage: goal add <title> | <description> | <YYYY-MM-DD>")
	}
	title := strings.TrimSpace(parts[0])
	description := strings.TrimSpace(parts[1])
	target := time.Now().AddDate(0, 0, 30)
	if len(parts) == 3 {
		raw := strings.TrimSpace(parts[2])
		t, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
		if err != nil {
			return "", "", time.Time{}, fmt.Errorf("invalid target date %q: want YYYY-MM-DD", raw)
		}
		target = t
	}
	return title, description, target, nil
}

func (s *shell) listGoals() {
	list := s.app.Goals()
	if len(list) == 0 {
		s.out.printf("no goals yet\n")
		return
	}
	for i, g := range list {
		s.out.printf("%d. %s (due %s, streak %d, %.0f%%)\n", i+1, g.Title, g.TargetDate.Format(time.DateOnly), g.Streak, g.Progress*100)
	}
}

func (s *shell) listRemote(ctx context.Context) {
	list, err := s.app.RemoteGoals(ctx)
	if err != nil {
		s.out.printf("cannot load goals: %v\n", err)
		return
	}
	if len(list) == 0 {
		s.out.printf("no goals on the server\n")
		return
	}
	for _, g := range list {
		s.out.printf("%s  %s (due %s)\n", g.ID, g.Title, g.TargetDate.Format(time.DateOnly))
	}
}

func (s *shell) today(ctx context.Context, goalID string) {
	if goalID == "" {
		s.out.printf("usage: today <goal-id>\n")
		return
	}
	day, ok, err := s.app.TodayPlan(ctx, goalID)
	if err != nil {
		s.out.printf("cannot load roadmap: %v\n", err)
		return
	}
	if !ok {
		s.out.printf("no roadmap yet\n")
		return
	}
	s.out.printf("day %d: %s\n", day.Day, day.Title)
	for _, task := range day.Tasks {
		s.out.printf("  - %s (%d min)\n", task.Task, task.DurationMinutes)
	}
}

func (s *shell) chat(rest string) {
	n, text, _ := strings.Cut(rest, " ")
	goal, ok := s.goalAt(n)
	if !ok {
		return
	}
	conv, err := s.app.Chat(goal.ID)
	if err != nil {
		s.out.printf("%v\n", err)
		return
	}
	if _, watching := s.watched[goal.ID]; !watching {
		s.watched[goal.ID] = conv.Subscribe(s.replyPrinter(goal.Title, len(conv.Messages())))
	}
	conv.SetInput(text)
	if !conv.Submit() {
		s.out.printf("nothing to send\n")
	}
}

// replyPrinter prints assistant messages beyond the first seen. A snapshot
// no longer than what was already printed is ignored.
func (s *shell) replyPrinter(title string, seen int) func([]domain.Message) {
	var mu sync.Mutex
	return func(msgs []domain.Message) {
		mu.Lock()
		defer mu.Unlock()
		if len(msgs) <= seen {
			return
		}
		for _, m := range msgs[seen:] {
			if !m.IsUser {
				s.out.printf("\n[%s] assistant: %s\n", title, m.Content)
			}
		}
		seen = len(msgs)
	}
}

func (s *shell) history(rest string) {
	goal, ok := s.goalAt(rest)
	if !ok {
		return
	}
	conv, err := s.app.Chat(goal.ID)
	if err != nil {
		s.out.printf("%v\n", err)
		return
	}
	for _, m := range conv.Messages() {
		who := "assistant"
		if m.IsUser {
			who = "you"
		}
		s.out.printf("%s %s: %s\n", m.Timestamp.Format(time.Kitchen), who, m.Content)
	}
}

// goalAt resolves a 1-based position in the newest-first goal list.
func (s *shell) goalAt(raw string) (domain.Goal, bool) {
	list := s.app.Goals()
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > len(list) {
		s.out.printf("no goal %q, see goals\n", raw)
		return domain.Goal{}, false
	}
	return list[n-1], true
}
