package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/pattern-memory/internal/model"
)

const sessionColumns = `id, depth, decisions, patterns, pattern, completed, decay_factor,
	duration, interaction_count, unique_patterns, created_at, updated_at`

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
	if sess.ID == "" {
		sess.ID = s.newID()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}

	decisions, err := marshalList(sess.Decisions)
	if err != nil {
		return err
	}
	patterns, err := marshalList(sess.Patterns)
	if err != nil {
		return err
	}
	current, err := marshalList(sess.Pattern)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			depth = excluded.depth,
			decisions = excluded.decisions,
			patterns = excluded.patterns,
			pattern = excluded.pattern,
			completed = excluded.completed,
			decay_factor = excluded.decay_factor,
			duration = excluded.duration,
			interaction_count = excluded.interaction_count,
			unique_patterns = excluded.unique_patterns,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Depth, decisions, patterns, current, sess.Completed, sess.DecayFactor,
		sess.Metadata.Duration, sess.Metadata.InteractionCount, sess.Metadata.UniquePatterns,
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) LatestSession(ctx context.Context) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY updated_at DESC, id DESC LIMIT 1`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(row scanner) (model.Session, error) {
	var sess model.Session
	var decisions, patterns, current, createdAt, updatedAt string

	err := row.Scan(
		&sess.ID, &sess.Depth, &decisions, &patterns, &current, &sess.Completed, &sess.DecayFactor,
		&sess.Metadata.Duration, &sess.Metadata.InteractionCount, &sess.Metadata.UniquePatterns,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return sess, err
	}

	if err := json.Unmarshal([]byte(decisions), &sess.Decisions); err != nil {
		return sess, fmt.Errorf("decode decisions for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(patterns), &sess.Patterns); err != nil {
		return sess, fmt.Errorf("decode patterns for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(current), &sess.Pattern); err != nil {
		return sess, fmt.Errorf("decode pattern for %s: %w", sess.ID, err)
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return sess, nil
}

// marshalList encodes a slice as JSON, writing nil as [].
func marshalList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(b), nil
}
