package platform

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/medcasebot/models"
)

// botAPI is the part of *tgbotapi.BotAPI used here
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Telegram implements Messenger on top of the Bot API
type Telegram struct {
	api botAPI
}

// NewTelegram wraps a Bot API client
func NewTelegram(api botAPI) *Telegram {
	return &Telegram{api: api}
}

// Duplicate forwards the source message into the recipient's chat.
// Forwarding is used instead of copyMessage because only a forward returns the full message to inspect.
func (t *Telegram) Duplicate(ctx context.Context, src models.SourceRef, recipient int64) (Transient, error) {
	if err := ctx.Err(); err != nil {
		return Transient{}, AsTransient(err)
	}
	msg, err := t.api.Send(tgbotapi.NewForward(recipient, src.ChatID, src.MessageID))
	if err != nil {
		return Transient{}, classifySource(err)
	}
	return Transient{
		ChatID:    recipient,
		MessageID: msg.MessageID,
		Content:   contentOf(msg),
	}, nil
}

func contentOf(msg tgbotapi.Message) Content {
	content := Content{Text: msg.Text}
	if msg.Caption != "" {
		content.Text = msg.Caption
	}
	if len(msg.Photo) > 0 {
		content.PhotoFileID = largestPhoto(msg.Photo).FileID
	}
	if msg.Document != nil {
		content.DocumentFileID = msg.Document.FileID
	}
	return content
}

func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

func (t *Telegram) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return AsTransient(err)
	}
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return classifyTelegram(err)
	}
	return nil
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	return t.send(ctx, tgbotapi.NewMessage(chatID, text))
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, fileID, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	photo.Caption = caption
	return t.send(ctx, photo)
}

func (t *Telegram) SendDocument(ctx context.Context, chatID int64, fileID, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	doc.Caption = caption
	return t.send(ctx, doc)
}

// PresentChoice sends the prompt with all choices on a single keyboard row
func (t *Telegram) PresentChoice(ctx context.Context, chatID int64, prompt string, choices []Choice) error {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, c := range choices {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Data))
	}
	msg := tgbotapi.NewMessage(chatID, prompt)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))
	return t.send(ctx, msg)
}

// AnswerCallback acknowledges an inline button press so the client stops its spinner
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return AsTransient(err)
	}
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return classifyTelegram(err)
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return AsTransient(err)
	}
	if _, err := t.api.Send(c); err != nil {
		return classifyTelegram(err)
	}
	return nil
}

// notFoundSignatures are Bot API descriptions meaning the forwarded source message is gone
var notFoundSignatures = []string{
	"message to forward not found",
	"message to copy not found",
	"message_id_invalid",
	"message not found",
	"chat not found",
}

// classifySource classifies errors of the forward from the source chat. Only there does a
// missing message or chat mean the case content is gone for good.
func classifySource(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
		desc := strings.ToLower(apiErr.Message)
		for _, sig := range notFoundSignatures {
			if strings.Contains(desc, sig) {
				return errors.Join(ErrNotFound, err)
			}
		}
	}
	return classifyTelegram(err)
}

// classifyTelegram classifies errors of calls addressed to the recipient; these are never NotFound
func classifyTelegram(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return AsTransient(err)
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0 {
		return &RateLimitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	return AsTransient(err)
}
