package session

import (
	"context"
	"errors"
	"time"

	"github.com/korjavin/medcasebot/catalog"
	"github.com/korjavin/medcasebot/delivery"
	"github.com/korjavin/medcasebot/logger"
	"github.com/korjavin/medcasebot/models"
	"github.com/korjavin/medcasebot/platform"
	"github.com/korjavin/medcasebot/stats"
)

// Catalog is the read side of the case catalog
type Catalog interface {
	AllCaseIDs(ctx context.Context) ([]string, error)
	CaseByID(ctx context.Context, id string) (models.Case, error)
}

// Deliverer delivers one case with retries
type Deliverer interface {
	Deliver(ctx context.Context, cs models.Case, recipient int64) delivery.Outcome
}

// Quota tracks how many cases a user solved today
type Quota interface {
	ProgressToday(ctx context.Context, userID int64) (int, error)
	Increment(ctx context.Context, userID int64) error
}

// Stats records answer statistics
type Stats interface {
	RecordAnswer(ctx context.Context, caseID string, answer models.Answer) error
	Distribution(ctx context.Context, caseID string) (map[models.Answer]int, error)
	RecordUserOutcome(ctx context.Context, userID int64, correct bool) error
}

// Responses is the append-only answer log
type Responses interface {
	SaveResponse(ctx context.Context, r models.Response) error
	AnsweredCaseIDs(ctx context.Context, userID int64) ([]string, error)
}

// Deps groups the collaborators of the engine
type Deps struct {
	Catalog   Catalog
	Deliverer Deliverer
	Quota     Quota
	Stats     Stats
	Responses Responses
	Messenger platform.Messenger
	Store     Store
	Machine   *Machine
	Locks     *Locks
	Now       func() time.Time
}

// Engine runs the session machine and performs the effects it asks for
type Engine struct {
	catalog   Catalog
	deliverer Deliverer
	quota     Quota
	stats     Stats
	responses Responses
	messenger platform.Messenger
	store     Store
	machine   *Machine
	locks     *Locks
	now       func() time.Time
	log       *logger.Logger
}

// NewEngine creates an engine; Machine, Locks and Now default when nil
func NewEngine(deps Deps, log *logger.Logger) *Engine {
	e := &Engine{
		catalog:   deps.Catalog,
		deliverer: deps.Deliverer,
		quota:     deps.Quota,
		stats:     deps.Stats,
		responses: deps.Responses,
		messenger: deps.Messenger,
		store:     deps.Store,
		machine:   deps.Machine,
		locks:     deps.Locks,
		now:       deps.Now,
		log:       log.With("service", "SessionEngine"),
	}
	if e.machine == nil {
		e.machine = NewMachine(nil, nil)
	}
	if e.locks == nil {
		e.locks = NewLocks()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// RequestBatch starts a new batch for the user, replacing any session they had
func (e *Engine) RequestBatch(ctx context.Context, user models.User, chatID int64) error {
	unlock := e.locks.Lock(user.ID)
	defer unlock()

	progress, err := e.quota.ProgressToday(ctx, user.ID)
	if err != nil {
		e.sendText(ctx, chatID, "Sorry, I couldn't check your daily progress. Please try again later.")
		return err
	}
	all, err := e.catalog.AllCaseIDs(ctx)
	if err != nil {
		e.sendText(ctx, chatID, "Sorry, I couldn't load the cases. Please try again later.")
		return err
	}
	answered, err := e.responses.AnsweredCaseIDs(ctx, user.ID)
	if err != nil {
		e.sendText(ctx, chatID, "Sorry, I couldn't load your history. Please try again later.")
		return err
	}

	sess, effects := e.machine.Start(BatchRequest{
		UserID:     user.ID,
		ChatID:     chatID,
		DailyLimit: user.DailyLimit,
		Progress:   progress,
		Catalog:    all,
		Answered:   answered,
	})
	if sess != nil {
		if prev, err := e.store.Get(ctx, user.ID); err == nil && prev != nil {
			e.log.Info("Discarding previous session", "user_id", user.ID, "session_id", prev.ID, "index", prev.Index)
		}
		e.log.Info("Session started", "user_id", user.ID, "session_id", sess.ID, "cases", len(sess.CaseIDs))
	}
	return e.run(ctx, user.ID, chatID, sess, effects)
}

// HandleAnswer processes a reply. Text that is not an answer symbol is ignored and
// reported as not handled. caseID is empty for typed replies.
func (e *Engine) HandleAnswer(ctx context.Context, userID, chatID int64, caseID, text string) (bool, error) {
	answer, ok := models.ParseAnswer(text)
	if !ok {
		return false, nil
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	sess, err := e.store.Get(ctx, userID)
	if err != nil {
		return true, err
	}
	next, effects := e.machine.Step(sess, AnswerReceived{CaseID: caseID, Answer: answer})
	if len(effects) == 0 {
		return true, nil
	}
	return true, e.run(ctx, userID, chatID, next, effects)
}

// run performs effects in order, feeding delivery outcomes back into the machine
func (e *Engine) run(ctx context.Context, userID, chatID int64, sess *Session, effects []Effect) error {
	queue := effects
	discarded := false
	for len(queue) > 0 {
		eff := queue[0]
		queue = queue[1:]

		switch ef := eff.(type) {
		case Notice:
			e.sendText(ctx, chatID, noticeText(ef))
		case Deliver:
			ev := e.deliver(ctx, sess, ef.CaseID)
			var more []Effect
			sess, more = e.machine.Step(sess, ev)
			queue = append(queue, more...)
		case PresentChoice:
			e.presentChoice(ctx, chatID, ef.CaseID)
		case RecordAnswer:
			e.recordAnswer(ctx, ef)
		case ShowDistribution:
			e.showDistribution(ctx, chatID, ef)
		case Discard:
			discarded = true
		}
	}

	if sess == nil {
		if !discarded {
			return nil
		}
		return e.store.Delete(ctx, userID)
	}
	sess.UpdatedAt = e.now()
	return e.store.Put(ctx, sess)
}

func (e *Engine) deliver(ctx context.Context, sess *Session, caseID string) DeliveryFinished {
	log := e.log.With("user_id", sess.UserID, "session_id", sess.ID, "case_id", caseID)

	cs, err := e.catalog.CaseByID(ctx, caseID)
	if errors.Is(err, catalog.ErrNotFound) {
		log.Info("Case no longer in catalog, skipping")
		return DeliveryFinished{CaseID: caseID, Outcome: delivery.OutcomeMissing}
	}
	if err != nil {
		log.Error("Failed to look up case, skipping", "error", err)
		return DeliveryFinished{CaseID: caseID, Outcome: delivery.OutcomeSkipped}
	}

	outcome := e.deliverer.Deliver(ctx, cs, sess.ChatID)
	log.Info("Case delivery finished", "outcome", outcome.String())
	return DeliveryFinished{CaseID: caseID, Outcome: outcome, Correct: cs.Correct}
}

func (e *Engine) presentChoice(ctx context.Context, chatID int64, caseID string) {
	choices := make([]platform.Choice, 0, len(models.Answers))
	for _, a := range models.Answers {
		choices = append(choices, platform.Choice{Label: string(a), Data: CallbackData(caseID, a)})
	}
	if err := e.messenger.PresentChoice(ctx, chatID, choicePrompt, choices); err != nil {
		// typed replies still work without the keyboard
		e.log.Warn("Failed to present answer buttons", "chat_id", chatID, "case_id", caseID, "error", err)
	}
}

// recordAnswer runs each write once; a failed write is logged and does not block the others
func (e *Engine) recordAnswer(ctx context.Context, ef RecordAnswer) {
	log := e.log.With("user_id", ef.UserID, "session_id", ef.SessionID, "case_id", ef.CaseID)

	if err := e.responses.SaveResponse(ctx, models.Response{
		UserID:    ef.UserID,
		CaseID:    ef.CaseID,
		Answer:    ef.Answer,
		Correct:   ef.Correct,
		Timestamp: e.now().Unix(),
	}); err != nil {
		log.Error("Failed to save response", "error", err)
	}
	if err := e.stats.RecordAnswer(ctx, ef.CaseID, ef.Answer); err != nil {
		log.Error("Failed to record answer distribution", "error", err)
	}
	if err := e.stats.RecordUserOutcome(ctx, ef.UserID, ef.Correct); err != nil {
		log.Error("Failed to record user outcome", "error", err)
	}
	if err := e.quota.Increment(ctx, ef.UserID); err != nil {
		log.Error("Failed to increment daily progress", "error", err)
	}
	log.Info("Answer recorded", "answer", string(ef.Answer), "correct", ef.Correct)
}

func (e *Engine) showDistribution(ctx context.Context, chatID int64, ef ShowDistribution) {
	text := verdictText(ef.Correct, ef.Chosen)
	dist, err := e.stats.Distribution(ctx, ef.CaseID)
	if err != nil {
		e.log.Error("Failed to load answer distribution", "case_id", ef.CaseID, "error", err)
	} else {
		text += "\n\n" + stats.FormatDistribution(dist, ef.Correct, ef.Chosen)
	}
	e.sendText(ctx, chatID, text)
}

func (e *Engine) sendText(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := e.messenger.SendText(ctx, chatID, text); err != nil {
		e.log.Error("Error sending message", "chat_id", chatID, "error", err)
	}
}
