package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/pattern-memory/internal/model"
)

// Link is a similarity connection from a node to an older neighbor.
type Link struct {
	FromID    string `json:"fromId"`
	ToID      string `json:"toId"`
	Seq       int    `json:"seq"`
	CreatedAt string `json:"createdAt"`
}

func insertLink(ctx context.Context, tx *sql.Tx, from, to string, seq int, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO node_links (from_id, to_id, seq, created_at) VALUES (?, ?, ?, ?)`,
		from, to, seq, formatTime(at))
	if err != nil {
		return fmt.Errorf("insert link %s -> %s: %w", from, to, err)
	}
	return nil
}

// GetLinks returns all links touching a node, in either direction.
func (s *SQLiteStore) GetLinks(ctx context.Context, nodeID string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, seq, created_at FROM node_links
		 WHERE from_id = ? OR to_id = ?
		 ORDER BY from_id, seq`, nodeID, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.FromID, &l.ToID, &l.Seq, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// linkBatch keeps IN lists under SQLite's bound-parameter limit.
const linkBatch = 500

// attachLinks fills Connections for each node from node_links, in insertion order.
func (s *SQLiteStore) attachLinks(ctx context.Context, nodes []model.MemoryNode) error {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	for start := 0; start < len(nodes); start += linkBatch {
		end := min(start+linkBatch, len(nodes))
		placeholders := make([]string, 0, end-start)
		args := make([]interface{}, 0, end-start)
		for _, n := range nodes[start:end] {
			placeholders = append(placeholders, "?")
			args = append(args, n.ID)
		}
		if err := s.loadLinks(ctx, strings.Join(placeholders, ","), args, func(from, to string) {
			i := index[from]
			nodes[i].Connections = append(nodes[i].Connections, to)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadLinks(ctx context.Context, placeholders string, args []interface{}, fn func(from, to string)) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id FROM node_links
		 WHERE from_id IN (`+placeholders+`)
		 ORDER BY from_id, seq`, args...)
	if err != nil {
		return fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return err
		}
		fn(from, to)
	}
	return rows.Err()
}
