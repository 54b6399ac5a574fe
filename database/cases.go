package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/korjavin/medcasebot/models"
)

// UpsertCase inserts a case or replaces its content, bringing a retired id back into rotation
func (db *DB) UpsertCase(ctx context.Context, c models.Case) error {
	_, err := db.exec(ctx, `
		INSERT INTO cases (id, source_ref, correct_answer, retired, created_at)
		VALUES (?, ?, ?, FALSE, ?)
		ON CONFLICT (id) DO UPDATE SET
			source_ref = excluded.source_ref,
			correct_answer = excluded.correct_answer,
			retired = FALSE`,
		c.ID, c.Source.String(), string(c.Correct), time.Now().Unix(),
	)
	return err
}

// AllCaseIDs returns the ids of every case that has not been retired
func (db *DB) AllCaseIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, db.rebind(
		"SELECT id FROM cases WHERE retired = ? ORDER BY id"), false)
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

// CaseByID returns a non-retired case or ErrNotFound
func (db *DB) CaseByID(ctx context.Context, id string) (models.Case, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var ref, answer string
	err := db.conn.QueryRowContext(ctx, db.rebind(
		"SELECT source_ref, correct_answer FROM cases WHERE id = ? AND retired = ?"), id, false,
	).Scan(&ref, &answer)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Case{}, ErrNotFound
	}
	if err != nil {
		return models.Case{}, err
	}

	source, err := models.ParseSourceRef(ref)
	if err != nil {
		return models.Case{}, fmt.Errorf("case %s: %w", id, err)
	}
	correct, ok := models.ParseAnswer(answer)
	if !ok {
		return models.Case{}, fmt.Errorf("case %s: invalid stored answer %q", id, answer)
	}
	return models.Case{ID: id, Source: source, Correct: correct}, nil
}

// RetireCase excludes a case from future selection
func (db *DB) RetireCase(ctx context.Context, id string) error {
	_, err := db.exec(ctx, "UPDATE cases SET retired = ? WHERE id = ?", true, id)
	return err
}
