package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the civil date format used for contract bounds.
const DateLayout = "2006-01-02"

var ErrEmptyInterval = errors.New("end_date must be after start_date")

// Contract is a teaching engagement for one instructor over a date interval.
// ID is the storage key and is never exposed; PublicID is the external identifier.
type Contract struct {
	ID              int64      `json:"-"`
	PublicID        string     `json:"public_id"`
	InstructorID    string     `json:"instructor_id"`
	PersonID        string     `json:"person_id"`
	SubjectID       string     `json:"subject_id"`
	PeriodID        string     `json:"period_id"`
	HoursLoad       int        `json:"hours_load"`
	HourlyRateCents int64      `json:"hourly_rate_cents"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Interval returns the contract's half-open active interval.
func (c Contract) Interval() Interval {
	return Interval{Start: c.StartDate, End: c.EndDate}
}

// Interval is a half-open date range [Start, End). A nil End is unbounded.
type Interval struct {
	Start time.Time
	End   *time.Time
}

// Validate rejects empty or inverted intervals.
func (i Interval) Validate() error {
	if i.Start.IsZero() {
		return fmt.Errorf("start_date is required")
	}
	if i.End != nil && !i.End.After(i.Start) {
		return ErrEmptyInterval
	}
	return nil
}

// Overlaps reports whether the two half-open intervals share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return startsBefore(i.Start, other.End) && startsBefore(other.Start, i.End)
}

func startsBefore(start time.Time, end *time.Time) bool {
	if end == nil {
		return true
	}
	return start.Before(*end)
}

// ParseDate parses a YYYY-MM-DD civil date at UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}

// ParseOptionalDate parses raw or returns nil when it is blank.
func ParseOptionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
