package quota

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type memStore struct {
	counts map[int64]map[string]int
}

func (m *memStore) ProgressOn(ctx context.Context, userID int64, day string) (int, error) {
	return m.counts[userID][day], nil
}

func (m *memStore) IncrementProgress(ctx context.Context, userID int64, day string) error {
	if m.counts[userID] == nil {
		m.counts[userID] = make(map[string]int)
	}
	m.counts[userID][day]++
	return nil
}

func TestTodayUsesConfiguredZone(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location failed: %v", err)
	}
	// 22:30 UTC is already the next day in Moscow (UTC+3)
	clock := &fixedClock{now: time.Date(2026, 10, 17, 22, 30, 0, 0, time.UTC)}
	tr := New(&memStore{counts: map[int64]map[string]int{}}, moscow, clock)
	if got := tr.Today(); got != "2026-10-18" {
		t.Fatalf("expected 2026-10-18, got %s", got)
	}
}

func TestIncrementAndRollover(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	tr := New(&memStore{counts: map[int64]map[string]int{}}, time.UTC, clock)

	for i := 0; i < 3; i++ {
		if err := tr.Increment(ctx, 7); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	if n, _ := tr.ProgressToday(ctx, 7); n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	if n, _ := tr.ProgressToday(ctx, 8); n != 0 {
		t.Fatalf("other users must start at zero, got %d", n)
	}

	clock.now = clock.now.Add(24 * time.Hour)
	if n, _ := tr.ProgressToday(ctx, 7); n != 0 {
		t.Fatalf("expected reset on the next day, got %d", n)
	}
}

func TestRemaining(t *testing.T) {
	tests := []struct{ limit, progress, want int }{
		{5, 0, 5},
		{3, 3, 0},
		{3, 5, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Remaining(tt.limit, tt.progress); got != tt.want {
			t.Fatalf("Remaining(%d, %d) = %d, want %d", tt.limit, tt.progress, got, tt.want)
		}
	}
}
