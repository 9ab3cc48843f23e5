package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/pattern-memory/internal/model"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy io.Reader
	idMu    sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.DefaultEntropy(),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_nodes (
		id            TEXT PRIMARY KEY,
		signature     TEXT NOT NULL UNIQUE,
		pattern       TEXT NOT NULL,
		depth         INTEGER NOT NULL DEFAULT 0,
		weight        REAL NOT NULL DEFAULT 1.0,
		last_accessed TEXT NOT NULL,
		decayed_at    TEXT,
		session_id    TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_last_accessed ON memory_nodes(last_accessed DESC);
	CREATE INDEX IF NOT EXISTS idx_nodes_session ON memory_nodes(session_id, created_at);

	CREATE TABLE IF NOT EXISTS node_links (
		from_id    TEXT NOT NULL REFERENCES memory_nodes(id),
		to_id      TEXT NOT NULL REFERENCES memory_nodes(id),
		seq        INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id)
	);
	CREATE INDEX IF NOT EXISTS idx_links_to ON node_links(to_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id                TEXT PRIMARY KEY,
		depth             INTEGER NOT NULL DEFAULT 0,
		decisions         TEXT NOT NULL DEFAULT '[]',
		patterns          TEXT NOT NULL DEFAULT '[]',
		pattern           TEXT NOT NULL DEFAULT '[]',
		completed         INTEGER NOT NULL DEFAULT 0,
		decay_factor      REAL NOT NULL DEFAULT 1.0,
		duration          INTEGER NOT NULL DEFAULT 0,
		interaction_count INTEGER NOT NULL DEFAULT 0,
		unique_patterns   INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

	CREATE TABLE IF NOT EXISTS achievements (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		code       TEXT NOT NULL,
		metadata   TEXT,
		revealed   INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE (session_id, code)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const nodeColumns = `id, signature, pattern, depth, weight, last_accessed, decayed_at, session_id, created_at`

func (s *SQLiteStore) FindNodeBySignature(ctx context.Context, signature string) (*model.MemoryNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM memory_nodes WHERE signature = ?`, signature)
	return s.loadNode(ctx, row)
}

func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*model.MemoryNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM memory_nodes WHERE id = ?`, id)
	return s.loadNode(ctx, row)
}

func (s *SQLiteStore) loadNode(ctx context.Context, row scanner) (*model.MemoryNode, error) {
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	nodes := []model.MemoryNode{n}
	if err := s.attachLinks(ctx, nodes); err != nil {
		return nil, err
	}
	return &nodes[0], nil
}

func (s *SQLiteStore) RecentNodes(ctx context.Context, limit int) ([]model.MemoryNode, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryNodes(ctx,
		`SELECT `+nodeColumns+` FROM memory_nodes ORDER BY last_accessed DESC, id DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) AllNodes(ctx context.Context) ([]model.MemoryNode, error) {
	return s.queryNodes(ctx,
		`SELECT `+nodeColumns+` FROM memory_nodes ORDER BY created_at, id`)
}

func (s *SQLiteStore) NodesBySession(ctx context.Context, sessionID string) ([]model.MemoryNode, error) {
	return s.queryNodes(ctx,
		`SELECT `+nodeColumns+` FROM memory_nodes WHERE session_id = ? ORDER BY created_at, id`, sessionID)
}

func (s *SQLiteStore) queryNodes(ctx context.Context, query string, args ...interface{}) ([]model.MemoryNode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []model.MemoryNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachLinks(ctx, nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (s *SQLiteStore) InsertNode(ctx context.Context, n *model.MemoryNode) error {
	if n.ID == "" {
		n.ID = s.newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = n.LastAccessed
	}
	patternJSON, err := json.Marshal(n.Pattern)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_nodes (id, signature, pattern, depth, weight, last_accessed, decayed_at, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Signature, string(patternJSON), n.Depth, n.Weight,
		formatTime(n.LastAccessed), nullTime(n.DecayedAt), n.SessionID, formatTime(n.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert node %s: %w", n.Signature, ErrDuplicate)
		}
		return fmt.Errorf("insert node: %w", err)
	}

	for i, to := range n.Connections {
		if err := insertLink(ctx, tx, n.ID, to, i, n.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) TouchNode(ctx context.Context, id string, weight float64, lastAccessed time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memory_nodes SET weight = ?, last_accessed = ? WHERE id = ?`,
		weight, formatTime(lastAccessed), id)
	if err != nil {
		return fmt.Errorf("touch node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) UpdateWeights(ctx context.Context, updates []WeightUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE memory_nodes SET weight = ?, decayed_at = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.Weight, formatTime(u.DecayedAt), u.ID); err != nil {
			return fmt.Errorf("update weight %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row scanner) (model.MemoryNode, error) {
	var n model.MemoryNode
	var patternJSON, lastAccessed, createdAt string
	var decayedAt sql.NullString

	err := row.Scan(
		&n.ID, &n.Signature, &patternJSON, &n.Depth, &n.Weight,
		&lastAccessed, &decayedAt, &n.SessionID, &createdAt,
	)
	if err != nil {
		return n, err
	}

	if err := json.Unmarshal([]byte(patternJSON), &n.Pattern); err != nil {
		return n, fmt.Errorf("decode pattern for %s: %w", n.ID, err)
	}
	n.LastAccessed = parseTime(lastAccessed)
	n.CreatedAt = parseTime(createdAt)
	if decayedAt.Valid {
		n.DecayedAt = parseTime(decayedAt.String)
	}
	n.Connections = []string{}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := formatTime(t)
	return &v
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
