package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/medcasebot/config"
	"github.com/korjavin/medcasebot/database"
	"github.com/korjavin/medcasebot/logger"
	"github.com/korjavin/medcasebot/models"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int64]models.User
	limits map[int64]int
	subs   map[int64]bool
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{byID: make(map[int64]models.User), limits: make(map[int64]int), subs: make(map[int64]bool)}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) EnsureUser(ctx context.Context, id int64, username, displayName string, defaultLimit int) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		u = models.User{ID: id, Username: username, DisplayName: displayName, DailyLimit: defaultLimit}
		f.byID[id] = u
	}
	return u, nil
}

func (f *fakeUsers) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Username, strings.TrimPrefix(username, "@")) {
			return u, nil
		}
	}
	return models.User{}, database.ErrNotFound
}

func (f *fakeUsers) SetDailyLimit(ctx context.Context, userID int64, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits[userID] = limit
	return nil
}

func (f *fakeUsers) SetSubscriber(ctx context.Context, userID int64, subscriber bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[userID] = subscriber
	return nil
}

type answerCall struct {
	userID, chatID int64
	caseID, text   string
}

type fakeEngine struct {
	mu      sync.Mutex
	batches []int64
	answers []answerCall
}

func (f *fakeEngine) RequestBatch(ctx context.Context, user models.User, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, user.ID)
	return nil
}

func (f *fakeEngine) HandleAnswer(ctx context.Context, userID, chatID int64, caseID, text string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := models.ParseAnswer(text); !ok {
		return false, nil
	}
	f.answers = append(f.answers, answerCall{userID, chatID, caseID, text})
	return true, nil
}

type fakeProgress struct{ today int }

func (f fakeProgress) ProgressToday(ctx context.Context, userID int64) (int, error) {
	return f.today, nil
}

type fakeSender struct {
	mu        sync.Mutex
	texts     []string
	callbacks []string
}

func (f *fakeSender) SendText(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fixture struct {
	bot    *Bot
	users  *fakeUsers
	engine *fakeEngine
	sender *fakeSender
}

func newFixture(users ...models.User) *fixture {
	cfg := config.Default()
	cfg.AdminIDs = []int64{1}
	f := &fixture{
		users:  newFakeUsers(users...),
		engine: &fakeEngine{},
		sender: &fakeSender{},
	}
	f.bot = New(cfg, f.users, f.engine, fakeProgress{today: 2}, f.sender, logger.NewNop())
	return f
}

func textMessage(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: from, UserName: "member"},
		Chat: &tgbotapi.Chat{ID: from},
		Text: text,
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, cmd, args string
		ok            bool
	}{
		{"/next", "next", "", true},
		{"/SetLimit@medcasebot alice 7", "setlimit", "alice 7", true},
		{"  /stat  ", "stat", "", true},
		{"B", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCommand(tt.in)
		if cmd != tt.cmd || args != tt.args || ok != tt.ok {
			t.Fatalf("parseCommand(%q) = %q %q %v", tt.in, cmd, args, ok)
		}
	}
}

func TestStatText(t *testing.T) {
	got := statText(models.User{CasesSeen: 4, CorrectAnswers: 3, DailyLimit: 5}, 2)
	for _, want := range []string{"Total Cases Attempted: 4", "Incorrect Answers: 1", "Accuracy: 75%", "Today: 2 of 5 cases (3 left)"} {
		if !strings.Contains(got, want) {
			t.Fatalf("stat text %q misses %q", got, want)
		}
	}
}

func TestStartAndNextRequestBatches(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.bot.handleMessage(ctx, textMessage(5, "/start"))
	f.bot.handleMessage(ctx, textMessage(5, "/next"))

	if len(f.engine.batches) != 2 {
		t.Fatalf("expected two batch requests, got %v", f.engine.batches)
	}
	if !strings.Contains(f.sender.texts[0], "Welcome") {
		t.Fatalf("expected welcome text first, got %v", f.sender.texts)
	}
}

func TestTypedAnswerAndUnknownText(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMessage(5, "c"))
	if len(f.engine.answers) != 1 || f.engine.answers[0].caseID != "" {
		t.Fatalf("expected a typed answer, got %+v", f.engine.answers)
	}
	if len(f.sender.texts) != 0 {
		t.Fatalf("answers are acknowledged by the engine, got %v", f.sender.texts)
	}

	f.bot.handleMessage(ctx, textMessage(5, "thanks, that was a tricky one"))
	if len(f.sender.texts) != 0 {
		t.Fatalf("free text must get no reply, got %v", f.sender.texts)
	}
	if len(f.engine.answers) != 1 {
		t.Fatalf("free text must not be recorded as an answer, got %+v", f.engine.answers)
	}

	f.bot.handleMessage(ctx, textMessage(5, "/frobnicate"))
	if !strings.HasPrefix(f.sender.last(), "Unknown command") {
		t.Fatalf("expected unknown command reply, got %q", f.sender.last())
	}
}

func TestCallbackRoutesToEngine(t *testing.T) {
	f := newFixture()
	f.bot.handleUpdate(context.Background(), tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: 5},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 50}},
			Data:    "answer:-100:7:B",
		},
	})
	if len(f.sender.callbacks) != 1 || f.sender.callbacks[0] != "cb-1" {
		t.Fatalf("callback must be acknowledged, got %v", f.sender.callbacks)
	}
	want := answerCall{userID: 5, chatID: 50, caseID: "-100:7", text: "B"}
	if len(f.engine.answers) != 1 || f.engine.answers[0] != want {
		t.Fatalf("unexpected engine call %+v", f.engine.answers)
	}
}

func TestMalformedCallbackOnlyAcknowledged(t *testing.T) {
	f := newFixture()
	f.bot.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "cb-2", From: &tgbotapi.User{ID: 5}, Data: "answer:C1:Z"})
	if len(f.sender.callbacks) != 1 || len(f.engine.answers) != 0 {
		t.Fatalf("malformed callback must only be acknowledged")
	}
}

func TestAdminCommands(t *testing.T) {
	alice := models.User{ID: 9, Username: "Alice", DailyLimit: 5}
	f := newFixture(alice)
	ctx := context.Background()

	f.bot.handleMessage(ctx, textMessage(5, "/setlimit alice 10"))
	if !strings.Contains(f.sender.last(), "only available to administrators") {
		t.Fatalf("non-admin must be rejected, got %q", f.sender.last())
	}
	if len(f.users.limits) != 0 {
		t.Fatalf("limit must not change for non-admins")
	}

	f.bot.handleMessage(ctx, textMessage(1, "/setlimit @ALICE 10"))
	if f.users.limits[9] != 10 {
		t.Fatalf("expected limit 10, got %v", f.users.limits)
	}

	f.bot.handleMessage(ctx, textMessage(1, "/setlimit alice -1"))
	if !strings.Contains(f.sender.last(), "non-negative") {
		t.Fatalf("expected negative limit rejection, got %q", f.sender.last())
	}

	f.bot.handleMessage(ctx, textMessage(1, "/subscriber alice on"))
	if !f.users.subs[9] {
		t.Fatalf("expected subscriber flag set")
	}

	f.bot.handleMessage(ctx, textMessage(1, "/subscriber bob off"))
	if !strings.Contains(f.sender.last(), "not found") {
		t.Fatalf("expected not found reply, got %q", f.sender.last())
	}
}

func TestRunDrainsUpdates(t *testing.T) {
	f := newFixture()
	updates := make(chan tgbotapi.Update, 3)
	for i := 0; i < 3; i++ {
		updates <- tgbotapi.Update{UpdateID: i, Message: textMessage(int64(10+i), "/next")}
	}
	close(updates)

	if err := f.bot.Run(context.Background(), updates); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(f.engine.batches) != 3 {
		t.Fatalf("expected three batches, got %v", f.engine.batches)
	}
}
