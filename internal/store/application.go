package store

import (
	"time"

	"github.com/hairbuy/intake/internal/pricing"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusNew        Status = "new"
	StatusViewed     Status = "viewed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusNew, StatusViewed, StatusInProgress, StatusCompleted, StatusRejected}
}

var transitions = map[Status][]Status{
	StatusNew:        {StatusViewed, StatusInProgress, StatusRejected},
	StatusViewed:     {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusCompleted, StatusRejected},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusViewed, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// CanTransition reports whether moving from s to next is allowed. Staying in
// the same status is always allowed and is a no-op.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return next.Valid()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Label returns the name shown to staff.
func (s Status) Label() string {
	switch s {
	case StatusNew:
		return "Новая"
	case StatusViewed:
		return "Просмотрена"
	case StatusInProgress:
		return "В работе"
	case StatusCompleted:
		return "Завершена"
	case StatusRejected:
		return "Отклонена"
	}
	return string(s)
}

// Application is one stored hair-sale submission.
type Application struct {
	ID int64

	LengthBand pricing.Band
	LengthCM   *int
	Color      pricing.Color
	Structure  pricing.Structure
	Condition  pricing.Condition
	Age        pricing.Age

	Photos []string

	Name    string
	Phone   string
	Email   string
	City    string
	Comment string

	EstimatedPrice int64
	FinalPrice     *int64
	Status         Status
	AdminNotes     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Revenue is the final price when staff set one, otherwise the estimate.
func (a Application) Revenue() int64 {
	if a.FinalPrice != nil {
		return *a.FinalPrice
	}
	return a.EstimatedPrice
}

// LengthLabel shows the centimeters when known, else the band.
func (a Application) LengthLabel() string {
	if a.LengthCM != nil {
		return pricing.LengthCM(*a.LengthCM).String() + " см"
	}
	return a.LengthBand.Label()
}

// NewApplication carries what the intake path knows when storing a submission.
type NewApplication struct {
	Length    pricing.Length
	Color     pricing.Color
	Structure pricing.Structure
	Condition pricing.Condition
	Age       pricing.Age

	Photos []string

	Name    string
	Phone   string
	Email   string
	City    string
	Comment string

	EstimatedPrice int64
}
