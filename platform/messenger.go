package platform

import (
	"context"

	"github.com/korjavin/medcasebot/models"
)

// Content is what a duplicated source message turned out to contain
type Content struct {
	Text           string
	PhotoFileID    string
	DocumentFileID string
}

// Transient is a temporary copy of source content placed in the recipient's chat
type Transient struct {
	ChatID    int64
	MessageID int
	Content   Content
}

// Choice is one button of an answer keyboard
type Choice struct {
	Label string
	Data  string
}

// Messenger is the subset of the messaging platform the bot relies on.
// Errors are reported as ErrNotFound, *RateLimitError or ErrTransient.
type Messenger interface {
	Duplicate(ctx context.Context, src models.SourceRef, recipient int64) (Transient, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string) error
	SendDocument(ctx context.Context, chatID int64, fileID, caption string) error
	PresentChoice(ctx context.Context, chatID int64, prompt string, choices []Choice) error
}
