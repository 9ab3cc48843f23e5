package store

import (
	"context"
	"errors"

	"github.com/rcliao/pattern-memory/internal/model"
)

// Export is a full dump of the graph, sessions and achievements.
type Export struct {
	Nodes        []model.MemoryNode  `json:"nodes"`
	Sessions     []model.Session     `json:"sessions"`
	Achievements []model.Achievement `json:"achievements"`
}

// ImportResult counts what an import actually wrote.
type ImportResult struct {
	Nodes        int `json:"nodes"`
	Sessions     int `json:"sessions"`
	Achievements int `json:"achievements"`
}

// ExportAll returns every node, session and achievement.
func (s *SQLiteStore) ExportAll(ctx context.Context) (*Export, error) {
	nodes, err := s.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.ListSessions(ctx, 1<<30)
	if err != nil {
		return nil, err
	}
	achievements, err := s.ListAchievements(ctx, "")
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []model.MemoryNode{}
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	if achievements == nil {
		achievements = []model.Achievement{}
	}
	return &Export{Nodes: nodes, Sessions: sessions, Achievements: achievements}, nil
}

// Import stores records from an export. Nodes whose signature already
// exists and achievements already earned are skipped; sessions are upserted.
// Nodes are inserted before their links are needed, so the export order
// (oldest first) must be preserved.
func (s *SQLiteStore) Import(ctx context.Context, e *Export) (*ImportResult, error) {
	res := &ImportResult{}
	for i := range e.Nodes {
		n := e.Nodes[i]
		n.Connections = s.knownNodes(ctx, n.Connections)
		err := s.InsertNode(ctx, &n)
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Nodes++
	}
	for i := range e.Sessions {
		if err := s.SaveSession(ctx, &e.Sessions[i]); err != nil {
			return res, err
		}
		res.Sessions++
	}
	for i := range e.Achievements {
		created, err := s.PutAchievement(ctx, &e.Achievements[i])
		if err != nil {
			return res, err
		}
		if created {
			res.Achievements++
		}
	}
	return res, nil
}

// knownNodes drops connection targets that do not exist locally.
func (s *SQLiteStore) knownNodes(ctx context.Context, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := s.GetNode(ctx, id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
