package goals

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"doit/pkg/domain"
)

func TestAddGoalPrependsNewest(t *testing.T) {
	s := NewStore()
	target := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		before := s.Goals()
		g := s.AddGoal(fmt.Sprintf("goal %d", i), "desc", target)
		ids = append(ids, g.ID)

		after := s.Goals()
		if len(after) != len(before)+1 {
			t.Fatalf("len = %d, want %d", len(after), len(before)+1)
		}
		if after[0].ID != g.ID {
			t.Fatalf("newest goal not at index 0")
		}
		for j, prev := range before {
			if after[j+1] != prev {
				t.Fatalf("goal %d changed: %+v != %+v", j, after[j+1], prev)
			}
		}
	}
	got := s.Goals()
	for i := range ids {
		if got[i].ID != ids[len(ids)-1-i] {
			t.Fatalf("goals[%d] = %s, want %s", i, got[i].ID, ids[len(ids)-1-i])
		}
	}
}

func TestAddGoalDefaults(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	target := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	g := s.AddGoal("Run a marathon", "Train four days a week", target)
	if g.ID == "" {
		t.Fatal("expected generated id")
	}
	if !g.CreatedAt.Equal(now) || !g.TargetDate.Equal(target) {
		t.Fatalf("unexpected times: %+v", g)
	}
	if g.Streak != 0 || g.Progress != 0 {
		t.Fatalf("unexpected streak/progress: %d %f", g.Streak, g.Progress)
	}
	other := s.AddGoal("Run a marathon", "Train four days a week", target)
	if other.ID == g.ID {
		t.Fatal("expected unique ids")
	}
}

func TestAddGoalDoesNotValidate(t *testing.T) {
	s := NewStore()
	s.AddGoal("", "", time.Time{})
	if s.Len() != 1 {
		t.Fatalf("expected store to accept blank goal, len=%d", s.Len())
	}
}

func TestGoalsReturnsCopy(t *testing.T) {
	s := NewStore()
	s.AddGoal("a", "b", time.Now())
	list := s.Goals()
	list[0].Title = "mutated"
	if s.Goals()[0].Title != "a" {
		t.Fatal("store was mutated through returned slice")
	}
}

func TestGetAndReset(t *testing.T) {
	s := NewStore()
	g := s.AddGoal("a", "b", time.Now())
	if got, ok := s.Get(g.ID); !ok || got.Title != "a" {
		t.Fatalf("get = %+v ok=%v", got, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected missing goal")
	}
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("expected empty store after reset, len=%d", s.Len())
	}
}

func TestSubscribersNotifiedAfterAdd(t *testing.T) {
	s := NewStore()
	var lens []int
	unsubscribe := s.Subscribe(func(list []domain.Goal) {
		if len(list) != s.Len() {
			t.Errorf("notified before mutation applied")
		}
		lens = append(lens, len(list))
	})
	s.AddGoal("a", "b", time.Now())
	s.AddGoal("c", "d", time.Now())
	s.Reset()
	unsubscribe()
	s.AddGoal("e", "f", time.Now())
	if len(lens) != 3 || lens[0] != 1 || lens[1] != 2 || lens[2] != 0 {
		t.Fatalf("unexpected notifications: %v", lens)
	}
}

func TestValidateDraft(t *testing.T) {
	if err := ValidateDraft("Learn Rust", "Ship a CLI"); err != nil {
		t.Fatalf("expected valid draft, got: %v", err)
	}
	if err := ValidateDraft("  ", "x"); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("expected title error, got: %v", err)
	}
	if err := ValidateDraft("x", "\n"); !errors.Is(err, ErrDescriptionRequired) {
		t.Fatalf("expected description error, got: %v", err)
	}
}
