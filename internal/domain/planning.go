package domain

import "time"

// Period slots a planning item into a part of the day.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
	PeriodUnsorted  Period = "unsorted"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening, PeriodUnsorted:
		return true
	}
	return false
}

// PlanningItem is one entry of the shared daily planning board.
type PlanningItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	When      string    `json:"when"`
	Period    Period    `json:"period"`
	Done      bool      `json:"done"`
	Time      string    `json:"time"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlanningDraft is the caller-supplied payload for creating a planning item.
type PlanningDraft struct {
	Title    string
	Category string
	When     string
	Period   string
	Done     bool
	Time     string
	Note     string
}

// YMD formats t as the canonical YYYY-MM-DD planning date.
func YMD(t time.Time) string {
	return t.Format("2006-01-02")
}

// Today returns the current planning date.
func Today() string {
	return YMD(time.Now())
}
