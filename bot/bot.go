package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/medcasebot/config"
	"github.com/korjavin/medcasebot/database"
	"github.com/korjavin/medcasebot/logger"
	"github.com/korjavin/medcasebot/models"
	"github.com/korjavin/medcasebot/quota"
	"github.com/korjavin/medcasebot/session"
	"golang.org/x/sync/errgroup"
)

// Users is the user table as seen by the command surface
type Users interface {
	EnsureUser(ctx context.Context, id int64, username, displayName string, defaultLimit int) (models.User, error)
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
	SetDailyLimit(ctx context.Context, userID int64, limit int) error
	SetSubscriber(ctx context.Context, userID int64, subscriber bool) error
}

// Engine runs quiz sessions
type Engine interface {
	RequestBatch(ctx context.Context, user models.User, chatID int64) error
	HandleAnswer(ctx context.Context, userID, chatID int64, caseID, text string) (bool, error)
}

// Progress reports how many cases a user solved today
type Progress interface {
	ProgressToday(ctx context.Context, userID int64) (int, error)
}

// Sender delivers bot replies
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Bot represents the Telegram bot
type Bot struct {
	cfg      *config.Config
	users    Users
	engine   Engine
	progress Progress
	sender   Sender
	log      *logger.Logger
}

const (
	cmdStart      = "start"
	cmdNext       = "next"
	cmdHelp       = "help"
	cmdStat       = "stat"
	cmdSetLimit   = "setlimit"
	cmdSubscriber = "subscriber"
)

const helpText = `Commands:
/next - Get a new batch of cases
/stat - View your statistics
/help - Show this message

Answer each case with the buttons or by replying A, B, C or D.`

// New creates a new bot instance
func New(cfg *config.Config, users Users, engine Engine, progress Progress, sender Sender, log *logger.Logger) *Bot {
	return &Bot{
		cfg:      cfg,
		users:    users,
		engine:   engine,
		progress: progress,
		sender:   sender,
		log:      log.With("service", "Bot"),
	}
}

// Run dispatches updates until the channel closes or ctx is done.
// Each update is handled in its own goroutine, at most MaxConcurrentUpdates at a time.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	b.log.Info("Starting bot polling...")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxConcurrentUpdates)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						b.log.Error("Recovered from panic in update handler", "update_id", update.UpdateID, "panic", r)
					}
				}()
				b.handleUpdate(gctx, update)
				return nil
			})
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}
	user, err := b.ensureUser(ctx, message.From)
	if err != nil {
		b.log.Error("Error registering user", "user_id", message.From.ID, "error", err)
		b.sendMessage(ctx, message.Chat.ID, "Sorry, something went wrong. Please try again later.")
		return
	}
	b.log.Debug("Received message", "user_id", user.ID, "username", user.Username, "text", message.Text)

	cmd, args, isCommand := parseCommand(message.Text)
	if !isCommand {
		// non-answer text gets no reply
		if _, err := b.engine.HandleAnswer(ctx, user.ID, message.Chat.ID, "", message.Text); err != nil {
			b.log.Error("Error handling answer", "user_id", user.ID, "error", err)
		}
		return
	}

	switch cmd {
	case cmdStart:
		b.handleStartCommand(ctx, user, message.Chat.ID)
	case cmdNext:
		b.requestBatch(ctx, user, message.Chat.ID)
	case cmdHelp:
		b.sendMessage(ctx, message.Chat.ID, helpText)
	case cmdStat:
		b.handleStatCommand(ctx, user, message.Chat.ID)
	case cmdSetLimit:
		b.adminOnly(ctx, user, message.Chat.ID, func() string { return b.setLimit(ctx, args) })
	case cmdSubscriber:
		b.adminOnly(ctx, user, message.Chat.ID, func() string { return b.setSubscriber(ctx, args) })
	default:
		b.sendMessage(ctx, message.Chat.ID, "Unknown command. Use /next for new cases or /help for assistance.")
	}
}

// handleStartCommand handles the /start command
func (b *Bot) handleStartCommand(ctx context.Context, user models.User, chatID int64) {
	welcomeText := fmt.Sprintf(`Welcome to MedCaseBot!

Every day you get up to %d clinical cases. Read each case and pick the right answer.

%s

Let's begin with your first batch!`, user.DailyLimit, helpText)

	b.sendMessage(ctx, chatID, welcomeText)
	b.requestBatch(ctx, user, chatID)
}

func (b *Bot) requestBatch(ctx context.Context, user models.User, chatID int64) {
	if err := b.engine.RequestBatch(ctx, user, chatID); err != nil {
		b.log.Error("Error starting batch", "user_id", user.ID, "error", err)
	}
}

// handleStatCommand handles the /stat command
func (b *Bot) handleStatCommand(ctx context.Context, user models.User, chatID int64) {
	today, err := b.progress.ProgressToday(ctx, user.ID)
	if err != nil {
		b.log.Error("Error getting daily progress", "user_id", user.ID, "error", err)
		b.sendMessage(ctx, chatID, "Sorry, I couldn't retrieve your statistics. Please try again later.")
		return
	}
	b.sendMessage(ctx, chatID, statText(user, today))
}

func statText(user models.User, today int) string {
	incorrect := user.CasesSeen - user.CorrectAnswers
	return fmt.Sprintf(`📊 Your Statistics:

Total Cases Attempted: %d
Correct Answers: %d ✅
Incorrect Answers: %d ❌
Accuracy: %d%%

Today: %d of %d cases (%d left)`,
		user.CasesSeen, user.CorrectAnswers, incorrect, session.Percentage(user.CorrectAnswers, user.CasesSeen),
		today, user.DailyLimit, quota.Remaining(user.DailyLimit, today))
}

// handleCallback processes callback queries from inline buttons
func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	caseID, answer, ok := session.ParseCallbackData(callback.Data)
	if !ok {
		b.log.Warn("Invalid callback data", "data", callback.Data)
		b.answerCallback(ctx, callback.ID, "")
		return
	}

	// Always acknowledge the callback immediately to prevent "query is too old" errors
	b.answerCallback(ctx, callback.ID, "Answer "+string(answer))

	if callback.Message == nil || callback.From == nil {
		return
	}
	user, err := b.ensureUser(ctx, callback.From)
	if err != nil {
		b.log.Error("Error registering user", "user_id", callback.From.ID, "error", err)
		return
	}
	if _, err := b.engine.HandleAnswer(ctx, user.ID, callback.Message.Chat.ID, caseID, string(answer)); err != nil {
		b.log.Error("Error handling answer", "user_id", user.ID, "case_id", caseID, "error", err)
	}
}

func (b *Bot) adminOnly(ctx context.Context, user models.User, chatID int64, run func() string) {
	if !b.cfg.IsAdmin(user.ID) {
		b.log.Warn("Rejected admin command", "user_id", user.ID)
		b.sendMessage(ctx, chatID, "This command is only available to administrators.")
		return
	}
	b.sendMessage(ctx, chatID, run())
}

// setLimit handles /setlimit <username> <n>
func (b *Bot) setLimit(ctx context.Context, args string) string {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "Usage: /setlimit <username> <limit>"
	}
	limit, err := strconv.Atoi(fields[1])
	if err != nil || limit < 0 {
		return "The limit must be a non-negative number."
	}
	target, errText := b.findUser(ctx, fields[0])
	if errText != "" {
		return errText
	}
	if err := b.users.SetDailyLimit(ctx, target.ID, limit); err != nil {
		b.log.Error("Error setting daily limit", "user_id", target.ID, "error", err)
		return "Sorry, I couldn't update the limit."
	}
	b.log.Info("Daily limit changed", "user_id", target.ID, "limit", limit)
	return fmt.Sprintf("Daily limit for @%s set to %d.", target.Username, limit)
}

// setSubscriber handles /subscriber <username> on|off
func (b *Bot) setSubscriber(ctx context.Context, args string) string {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "Usage: /subscriber <username> on|off"
	}
	var subscriber bool
	switch strings.ToLower(fields[1]) {
	case "on", "yes", "true":
		subscriber = true
	case "off", "no", "false":
	default:
		return "Usage: /subscriber <username> on|off"
	}
	target, errText := b.findUser(ctx, fields[0])
	if errText != "" {
		return errText
	}
	if err := b.users.SetSubscriber(ctx, target.ID, subscriber); err != nil {
		b.log.Error("Error setting subscriber flag", "user_id", target.ID, "error", err)
		return "Sorry, I couldn't update the subscriber flag."
	}
	b.log.Info("Subscriber flag changed", "user_id", target.ID, "subscriber", subscriber)
	state := "off"
	if subscriber {
		state = "on"
	}
	return fmt.Sprintf("Subscriber flag for @%s is now %s.", target.Username, state)
}

func (b *Bot) findUser(ctx context.Context, username string) (models.User, string) {
	target, err := b.users.FindUserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return models.User{}, fmt.Sprintf("User %s not found.", username)
	}
	if err != nil {
		b.log.Error("Error looking up user", "username", username, "error", err)
		return models.User{}, "Sorry, I couldn't look up that user."
	}
	return target, ""
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (models.User, error) {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	return b.users.EnsureUser(ctx, from.ID, from.UserName, name, b.cfg.DefaultDailyLimit)
}

// sendMessage sends a text message
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if err := b.sender.SendText(ctx, chatID, text); err != nil {
		b.log.Error("Error sending message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answerCallback(ctx context.Context, callbackID, text string) {
	if err := b.sender.AnswerCallback(ctx, callbackID, text); err != nil {
		b.log.Warn("Error sending callback response", "error", err)
	}
}

// parseCommand splits "/cmd@bot args" into a lower-case command and its arguments
func parseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	if at := strings.Index(head, "@"); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(args), true
}
