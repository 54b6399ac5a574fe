package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/korjavin/medcasebot/logger"
	"github.com/korjavin/medcasebot/models"
	"github.com/korjavin/medcasebot/platform"
)

// Outcome is the result of delivering one case
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeRetired means the source is gone and the case was removed from the catalog
	OutcomeRetired
	// OutcomeSkipped means the retry budget ran out; the case stays in the catalog
	OutcomeSkipped
	// OutcomeMissing means the case was already absent from the catalog, so nothing was attempted
	OutcomeMissing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetired:
		return "retired"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeMissing:
		return "missing"
	}
	return "unknown"
}

// ContentDeliverer sends a case's source content to a recipient
type ContentDeliverer interface {
	Deliver(ctx context.Context, src models.SourceRef, recipient int64) error
}

// Retirer removes a case from future selection
type Retirer interface {
	Retire(ctx context.Context, caseID string) error
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// ControllerOptions tunes the retry policy; zero values use the defaults
type ControllerOptions struct {
	MaxAttempts     int
	RetryDelay      time.Duration
	RateLimitBuffer time.Duration
	Sleep           SleepFunc
}

// Controller wraps content delivery with bounded retries and rate-limit backoff
type Controller struct {
	deliverer ContentDeliverer
	retirer   Retirer
	log       *logger.Logger

	maxAttempts     int
	retryDelay      time.Duration
	rateLimitBuffer time.Duration
	sleep           SleepFunc

	mu      sync.Mutex
	retired map[string]struct{}
}

// NewController creates a retry controller
func NewController(deliverer ContentDeliverer, retirer Retirer, log *logger.Logger, opts ControllerOptions) *Controller {
	c := &Controller{
		deliverer:       deliverer,
		retirer:         retirer,
		log:             log.With("service", "DeliveryController"),
		maxAttempts:     opts.MaxAttempts,
		retryDelay:      opts.RetryDelay,
		rateLimitBuffer: opts.RateLimitBuffer,
		sleep:           opts.Sleep,
		retired:         make(map[string]struct{}),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 2 * time.Second
	}
	if c.rateLimitBuffer <= 0 {
		c.rateLimitBuffer = time.Second
	}
	if c.sleep == nil {
		c.sleep = Sleep
	}
	return c
}

// Deliver sends the case to the recipient. Rate-limit waits never count against the attempt
// budget; a missing source retires the case at once.
func (c *Controller) Deliver(ctx context.Context, cs models.Case, recipient int64) Outcome {
	log := c.log.With("case_id", cs.ID, "recipient", recipient)
	attempts := 0
	for {
		err := c.deliverer.Deliver(ctx, cs.Source, recipient)
		class, wait := platform.Classify(err)
		switch class {
		case platform.ClassNone:
			log.Debug("Case delivered", "attempts", attempts+1)
			return OutcomeSuccess

		case platform.ClassRateLimited:
			wait += c.rateLimitBuffer
			log.Info("Rate limited, waiting", "wait", wait.String())
			if err := c.sleep(ctx, wait); err != nil {
				log.Warn("Delivery abandoned during rate-limit wait", "error", err)
				return OutcomeSkipped
			}

		case platform.ClassNotFound:
			c.retire(ctx, log, cs.ID, err)
			return OutcomeRetired

		default:
			attempts++
			if attempts >= c.maxAttempts {
				log.Warn("Delivery failed, skipping case", "attempts", attempts, "error", err)
				return OutcomeSkipped
			}
			log.Info("Delivery failed, retrying", "attempt", attempts, "error", err)
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				log.Warn("Delivery abandoned during retry wait", "error", err)
				return OutcomeSkipped
			}
		}
	}
}

func (c *Controller) retire(ctx context.Context, log *logger.Logger, caseID string, cause error) {
	if err := c.retirer.Retire(ctx, caseID); err != nil {
		log.Error("Failed to retire case", "error", err)
		return
	}

	// only a retirement that reached the catalog is remembered
	c.mu.Lock()
	_, seen := c.retired[caseID]
	c.retired[caseID] = struct{}{}
	c.mu.Unlock()
	if !seen {
		log.Warn("Source content gone, case retired", "error", cause)
	}
}

// Sleep waits for d unless ctx is done first
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
