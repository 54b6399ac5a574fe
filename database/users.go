package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/korjavin/medcasebot/models"
)

const userColumns = "id, username, display_name, daily_limit, subscriber, cases_seen, correct_answers"

// EnsureUser creates the user on first contact and refreshes their names afterwards
func (db *DB) EnsureUser(ctx context.Context, id int64, username, displayName string, defaultLimit int) (models.User, error) {
	_, err := db.exec(ctx, `
		INSERT INTO users (id, username, display_name, daily_limit, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name`,
		id, username, displayName, defaultLimit, time.Now().Unix(),
	)
	if err != nil {
		return models.User{}, err
	}
	return db.GetUser(ctx, id)
}

// GetUser returns a user by id or ErrNotFound
func (db *DB) GetUser(ctx context.Context, id int64) (models.User, error) {
	return db.queryUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// FindUserByUsername looks a user up ignoring case and a leading @
// An empty name never matches, since users without a Telegram username are stored with "".
func (db *DB) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	name := strings.TrimSpace(trimAt(strings.TrimSpace(username)))
	if name == "" {
		return models.User{}, ErrNotFound
	}
	return db.queryUser(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(username) = LOWER(?)", name)
}

func (db *DB) queryUser(ctx context.Context, query string, arg interface{}) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var u models.User
	err := db.conn.QueryRowContext(ctx, db.rebind(query), arg).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.DailyLimit, &u.Subscriber, &u.CasesSeen, &u.CorrectAnswers,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// SetDailyLimit changes how many cases the user may solve per day
func (db *DB) SetDailyLimit(ctx context.Context, userID int64, limit int) error {
	if limit < 0 {
		return errors.New("daily limit must not be negative")
	}
	return db.updateUser(ctx, "UPDATE users SET daily_limit = ? WHERE id = ?", limit, userID)
}

// SetSubscriber toggles the subscriber flag
func (db *DB) SetSubscriber(ctx context.Context, userID int64, subscriber bool) error {
	return db.updateUser(ctx, "UPDATE users SET subscriber = ? WHERE id = ?", subscriber, userID)
}

// RecordUserOutcome adds one answered case to the user's lifetime totals
func (db *DB) RecordUserOutcome(ctx context.Context, userID int64, correct bool) error {
	delta := 0
	if correct {
		delta = 1
	}
	return db.updateUser(ctx,
		"UPDATE users SET cases_seen = cases_seen + 1, correct_answers = correct_answers + ? WHERE id = ?",
		delta, userID)
}

func (db *DB) updateUser(ctx context.Context, query string, args ...interface{}) error {
	res, err := db.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func trimAt(username string) string {
	for len(username) > 0 && username[0] == '@' {
		username = username[1:]
	}
	return username
}
