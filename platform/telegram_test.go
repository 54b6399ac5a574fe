package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/medcasebot/models"
)

type fakeAPI struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	reply     tgbotapi.Message
	sendErr   error
	reqErr    error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return f.reply, f.sendErr
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: f.reqErr == nil}, f.reqErr
}

func TestDuplicateInspectsForwardedMessage(t *testing.T) {
	api := &fakeAPI{reply: tgbotapi.Message{
		MessageID: 99,
		Caption:   "Case #case_12 text",
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "large", Width: 1280, Height: 960},
			{FileID: "medium", Width: 320, Height: 240},
		},
	}}
	tg := NewTelegram(api)

	tr, err := tg.Duplicate(context.Background(), models.SourceRef{ChatID: -100, MessageID: 7}, 42)
	if err != nil {
		t.Fatalf("duplicate failed: %v", err)
	}
	if tr.ChatID != 42 || tr.MessageID != 99 {
		t.Fatalf("unexpected handle %+v", tr)
	}
	if tr.Content.PhotoFileID != "large" || tr.Content.Text != "Case #case_12 text" {
		t.Fatalf("unexpected content %+v", tr.Content)
	}
	fwd, ok := api.sent[0].(tgbotapi.ForwardConfig)
	if !ok {
		t.Fatalf("expected a forward, got %T", api.sent[0])
	}
	if fwd.FromChatID != -100 || fwd.MessageID != 7 || fwd.ChatID != 42 {
		t.Fatalf("unexpected forward %+v", fwd)
	}
}

func TestClassifySource(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class Class
		wait  time.Duration
	}{
		{
			name:  "rate limit",
			err:   &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 5", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 5}},
			class: ClassRateLimited,
			wait:  5 * time.Second,
		},
		{
			name:  "forward source gone",
			err:   &tgbotapi.Error{Code: 400, Message: "Bad Request: message to forward not found"},
			class: ClassNotFound,
		},
		{
			name:  "invalid message id",
			err:   &tgbotapi.Error{Code: 400, Message: "Bad Request: MESSAGE_ID_INVALID"},
			class: ClassNotFound,
		},
		{
			name:  "other bad request",
			err:   &tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities"},
			class: ClassTransient,
		},
		{
			name:  "network",
			err:   errors.New("connection reset by peer"),
			class: ClassTransient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, wait := Classify(classifySource(tt.err))
			if class != tt.class || wait != tt.wait {
				t.Fatalf("expected %s/%s, got %s/%s", tt.class, tt.wait, class, wait)
			}
		})
	}
}

func TestDuplicateNotFound(t *testing.T) {
	api := &fakeAPI{sendErr: &tgbotapi.Error{Code: 400, Message: "Bad Request: message to forward not found"}}
	_, err := NewTelegram(api).Duplicate(context.Background(), models.SourceRef{ChatID: 1, MessageID: 1}, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecipientSideNotFoundIsTransient(t *testing.T) {
	api := &fakeAPI{sendErr: &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}}
	tg := NewTelegram(api)
	if class, _ := Classify(tg.SendPhoto(context.Background(), 2, "photo-1", "caption")); class != ClassTransient {
		t.Fatalf("a missing recipient chat must not retire the case, got %s", class)
	}
	if class, _ := Classify(tg.SendText(context.Background(), 2, "hello")); class != ClassTransient {
		t.Fatalf("expected transient for send text, got %s", class)
	}

	_, err := tg.Duplicate(context.Background(), models.SourceRef{ChatID: 1, MessageID: 1}, 2)
	if class, _ := Classify(err); class != ClassNotFound {
		t.Fatalf("a missing source chat must classify as not found, got %s", class)
	}
}

func TestDeleteUsesRequest(t *testing.T) {
	api := &fakeAPI{}
	if err := NewTelegram(api).Delete(context.Background(), 42, 99); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(api.requested) != 1 || len(api.sent) != 0 {
		t.Fatalf("expected one request and no sends, got %d/%d", len(api.requested), len(api.sent))
	}
	del, ok := api.requested[0].(tgbotapi.DeleteMessageConfig)
	if !ok || del.ChatID != 42 || del.MessageID != 99 {
		t.Fatalf("unexpected delete request %#v", api.requested[0])
	}
}

func TestPresentChoiceBuildsKeyboard(t *testing.T) {
	api := &fakeAPI{}
	choices := []Choice{{Label: "A", Data: "answer:C1:A"}, {Label: "B", Data: "answer:C1:B"}}
	if err := NewTelegram(api).PresentChoice(context.Background(), 42, "Your answer?", choices); err != nil {
		t.Fatalf("present choice failed: %v", err)
	}
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected message config, got %T", api.sent[0])
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard %#v", msg.ReplyMarkup)
	}
	if data := kb.InlineKeyboard[0][1].CallbackData; data == nil || *data != "answer:C1:B" {
		t.Fatalf("unexpected callback data %v", data)
	}
}

func TestCanceledContextIsTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &fakeAPI{}
	err := NewTelegram(api).SendText(ctx, 1, "hi")
	if class, _ := Classify(err); class != ClassTransient {
		t.Fatalf("expected transient, got %s", class)
	}
	if len(api.sent) != 0 {
		t.Fatalf("nothing should be sent on a canceled context")
	}
}
