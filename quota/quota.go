package quota

import (
	"context"
	"time"
)

const dayLayout = "2006-01-02"

// Store persists daily progress keyed by user and calendar day
type Store interface {
	ProgressOn(ctx context.Context, userID int64, day string) (int, error)
	IncrementProgress(ctx context.Context, userID int64, day string) error
}

// Clock abstracts time to keep tests deterministic
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Tracker counts solved cases per user per day. Days are computed in one fixed
// time zone so that every user's counter rolls over at the same instant.
type Tracker struct {
	store Store
	loc   *time.Location
	clock Clock
}

// New creates a tracker; a nil clock uses the system clock
func New(store Store, loc *time.Location, clock Clock) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Tracker{store: store, loc: loc, clock: clock}
}

// Today returns the current calendar day in the tracker's time zone
func (t *Tracker) Today() string {
	return t.clock.Now().In(t.loc).Format(dayLayout)
}

// ProgressToday returns how many cases the user solved today
func (t *Tracker) ProgressToday(ctx context.Context, userID int64) (int, error) {
	return t.store.ProgressOn(ctx, userID, t.Today())
}

// Increment records one more solved case today. Callers must call it once per solved case.
func (t *Tracker) Increment(ctx context.Context, userID int64) error {
	return t.store.IncrementProgress(ctx, userID, t.Today())
}

// Remaining returns how many more cases fit in today's limit, never below zero
func Remaining(limit, progress int) int {
	if r := limit - progress; r > 0 {
		return r
	}
	return 0
}
