package delivery

import (
	"context"
	"time"

	"github.com/korjavin/medcasebot/logger"
	"github.com/korjavin/medcasebot/models"
	"github.com/korjavin/medcasebot/platform"
)

const (
	cleanupAttempts = 2
	cleanupTimeout  = 10 * time.Second
)

// Adapter fetches a case's source content, strips catalog markup and re-sends it to the recipient
type Adapter struct {
	messenger platform.Messenger
	log       *logger.Logger
}

// NewAdapter creates a fetch-and-clean adapter
func NewAdapter(messenger platform.Messenger, log *logger.Logger) *Adapter {
	return &Adapter{
		messenger: messenger,
		log:       log.With("service", "DeliveryAdapter"),
	}
}

// Deliver duplicates the source into the recipient's chat to learn what it holds, deletes the
// duplicate and sends one clean message in its place. Errors carry the platform failure classes.
func (a *Adapter) Deliver(ctx context.Context, src models.SourceRef, recipient int64) error {
	tr, err := a.messenger.Duplicate(ctx, src, recipient)
	if err != nil {
		return err
	}
	a.cleanup(ctx, tr)

	text := Clean(tr.Content.Text)
	switch {
	case tr.Content.PhotoFileID != "":
		return a.messenger.SendPhoto(ctx, recipient, tr.Content.PhotoFileID, text)
	case tr.Content.DocumentFileID != "":
		return a.messenger.SendDocument(ctx, recipient, tr.Content.DocumentFileID, text)
	case text != "":
		return a.messenger.SendText(ctx, recipient, text)
	}
	a.log.Warn("Source content is empty after cleaning, nothing sent",
		"source", src.String(), "recipient", recipient)
	return nil
}

// cleanup removes the transient copy; failures are logged and never returned
func (a *Adapter) cleanup(ctx context.Context, tr platform.Transient) {
	// a canceled delivery must still try to remove the copy
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= cleanupAttempts; attempt++ {
		if err = a.messenger.Delete(ctx, tr.ChatID, tr.MessageID); err == nil {
			return
		}
	}
	a.log.Warn("Failed to delete transient copy",
		"chat_id", tr.ChatID, "message_id", tr.MessageID, "attempts", cleanupAttempts, "error", err)
}
