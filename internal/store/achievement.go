package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/pattern-memory/internal/model"
)

const achievementColumns = `id, session_id, code, metadata, revealed, created_at`

func (s *SQLiteStore) PutAchievement(ctx context.Context, a *model.Achievement) (bool, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	var meta *string
	if a.Metadata != "" {
		meta = &a.Metadata
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO achievements (`+achievementColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.Code, meta, a.Revealed, formatTime(a.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("put achievement %s: %w", a.Code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListAchievements(ctx context.Context, sessionID string) ([]model.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RevealAchievement(ctx context.Context, id string) (*model.Achievement, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE achievements SET revealed = 1 WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("reveal achievement: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+achievementColumns+` FROM achievements WHERE id = ?`, id)
	a, err := scanAchievement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("achievement %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAchievement(row scanner) (model.Achievement, error) {
	var a model.Achievement
	var meta sql.NullString
	var createdAt string
	if err := row.Scan(&a.ID, &a.SessionID, &a.Code, &meta, &a.Revealed, &createdAt); err != nil {
		return a, err
	}
	if meta.Valid {
		a.Metadata = meta.String
	}
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}
