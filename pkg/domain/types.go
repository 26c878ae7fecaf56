package domain

import "time"

// User is the identity returned by the backend on registration.
// CreatedAt is zero when the user was rehydrated from local settings.
type User struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   Timestamp `json:"created_at"`
}

// Goal is the locally created goal shown in the goal list.
type Goal struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TargetDate  time.Time `json:"targetDate"`
	CreatedAt   time.Time `json:"createdAt"`
	Streak      int       `json:"streak"`
	Progress    float64   `json:"progress"`
}

type Message struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goalId"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// GoalResponse is the backend goal record. Roadmap and TodayTasks are passed
// through untouched.
type GoalResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TargetDate  Timestamp `json:"target_date"`
	CreatedAt   Timestamp `json:"created_at"`
	Streak      int       `json:"streak"`
	Progress    float64   `json:"progress"`
	Roadmap     *Roadmap  `json:"roadmap,omitempty"`
	TodayTasks  *DayTask  `json:"today_tasks,omitempty"`
}

type Roadmap struct {
	TotalDays int       `json:"total_days"`
	Summary   string    `json:"summary"`
	Days      []DayTask `json:"days"`
}

type DayTask struct {
	Day   int    `json:"day"`
	Date  string `json:"date"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
	Tips  string `json:"tips"`
}

type Task struct {
	Task            string   `json:"task"`
	DurationMinutes int      `json:"duration_minutes"`
	Resources       []string `json:"resources"`
}

// ChatReply is the backend answer to a chat message.
type ChatReply struct {
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	Timestamp   Timestamp `json:"timestamp"`
}

// ChatHistoryMessage is one stored message of a goal conversation.
type ChatHistoryMessage struct {
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp Timestamp `json:"timestamp"`
}

// DayFor returns the roadmap day scheduled on the calendar day of t. When no
// day matches it falls back to the first day.
func (r Roadmap) DayFor(t time.Time) (DayTask, bool) {
	date := t.Format(time.DateOnly)
	for _, day := range r.Days {
		if day.Date == date {
			return day, true
		}
	}
	if len(r.Days) > 0 {
		return r.Days[0], true
	}
	return DayTask{}, false
}
