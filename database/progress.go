package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/korjavin/medcasebot/models"
)

// ProgressOn returns how many cases the user solved on the given day (YYYY-MM-DD)
func (db *DB) ProgressOn(ctx context.Context, userID int64, day string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var solved int
	err := db.conn.QueryRowContext(ctx, db.rebind(
		"SELECT solved FROM daily_progress WHERE user_id = ? AND day = ?"), userID, day,
	).Scan(&solved)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return solved, err
}

// IncrementProgress adds one solved case to the given day, creating the row if absent
func (db *DB) IncrementProgress(ctx context.Context, userID int64, day string) error {
	_, err := db.exec(ctx, `
		INSERT INTO daily_progress (user_id, day, solved) VALUES (?, ?, 1)
		ON CONFLICT (user_id, day) DO UPDATE SET solved = daily_progress.solved + 1`,
		userID, day,
	)
	return err
}

// SaveResponse appends an answer to the response log
func (db *DB) SaveResponse(ctx context.Context, r models.Response) error {
	ts := r.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	_, err := db.exec(ctx,
		"INSERT INTO responses (user_id, case_id, answer, correct, timestamp) VALUES (?, ?, ?, ?, ?)",
		r.UserID, r.CaseID, string(r.Answer), r.Correct, ts,
	)
	return err
}

// AnsweredCaseIDs returns the distinct cases the user has ever answered
func (db *DB) AnsweredCaseIDs(ctx context.Context, userID int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, db.rebind(
		"SELECT DISTINCT case_id FROM responses WHERE user_id = ?"), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IncrementAnswerCount bumps the distribution counter for one option of a case
func (db *DB) IncrementAnswerCount(ctx context.Context, caseID string, answer models.Answer) error {
	_, err := db.exec(ctx, `
		INSERT INTO answer_counts (case_id, answer, count) VALUES (?, ?, 1)
		ON CONFLICT (case_id, answer) DO UPDATE SET count = answer_counts.count + 1`,
		caseID, string(answer),
	)
	return err
}

// AnswerCounts returns the stored counters of a case; options never chosen are absent
func (db *DB) AnswerCounts(ctx context.Context, caseID string) (map[models.Answer]int, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, db.rebind(
		"SELECT answer, count FROM answer_counts WHERE case_id = ?"), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Answer]int)
	for rows.Next() {
		var answer string
		var count int
		if err := rows.Scan(&answer, &count); err != nil {
			return nil, err
		}
		counts[models.Answer(answer)] = count
	}
	return counts, rows.Err()
}
