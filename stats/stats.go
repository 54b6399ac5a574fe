package stats

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/korjavin/medcasebot/models"
)

// Store persists per-case answer counters and per-user lifetime totals
type Store interface {
	IncrementAnswerCount(ctx context.Context, caseID string, answer models.Answer) error
	AnswerCounts(ctx context.Context, caseID string) (map[models.Answer]int, error)
	RecordUserOutcome(ctx context.Context, userID int64, correct bool) error
}

// Aggregator updates and reads answer statistics
type Aggregator struct {
	store Store
}

func New(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// RecordAnswer counts one more pick of answer for the case
func (a *Aggregator) RecordAnswer(ctx context.Context, caseID string, answer models.Answer) error {
	return a.store.IncrementAnswerCount(ctx, caseID, answer)
}

// Distribution returns the pick count of every option; options never picked map to zero
func (a *Aggregator) Distribution(ctx context.Context, caseID string) (map[models.Answer]int, error) {
	counts, err := a.store.AnswerCounts(ctx, caseID)
	if err != nil {
		return nil, err
	}
	dist := make(map[models.Answer]int, len(models.Answers))
	for _, ans := range models.Answers {
		dist[ans] = counts[ans]
	}
	return dist, nil
}

// RecordUserOutcome adds one answered case to the user's lifetime totals
func (a *Aggregator) RecordUserOutcome(ctx context.Context, userID int64, correct bool) error {
	return a.store.RecordUserOutcome(ctx, userID, correct)
}

// Percentages converts a distribution into rounded shares of the total
func Percentages(dist map[models.Answer]int) map[models.Answer]int {
	total := 0
	for _, ans := range models.Answers {
		total += dist[ans]
	}
	out := make(map[models.Answer]int, len(models.Answers))
	for _, ans := range models.Answers {
		if total == 0 {
			out[ans] = 0
			continue
		}
		out[ans] = int(math.Round(float64(dist[ans]) / float64(total) * 100))
	}
	return out
}

// FormatDistribution renders one line per option, flagging the correct one and the user's pick
func FormatDistribution(dist map[models.Answer]int, correct, chosen models.Answer) string {
	pct := Percentages(dist)
	var b strings.Builder
	b.WriteString("📊 How others answered:\n")
	for _, ans := range models.Answers {
		mark := "▫️"
		if ans == correct {
			mark = "✅"
		} else if ans == chosen {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s %s: %d%%\n", mark, ans, pct[ans])
	}
	return strings.TrimRight(b.String(), "\n")
}
