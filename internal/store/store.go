// Package store provides the pattern memory storage interfaces and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/pattern-memory/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a node with the same signature already exists.
	ErrDuplicate = errors.New("duplicate signature")
)

// WeightUpdate is one row of a batch decay pass.
type WeightUpdate struct {
	ID        string
	Weight    float64
	DecayedAt time.Time
}

// NodeStore persists memory nodes and their connections.
type NodeStore interface {
	// FindNodeBySignature looks up a node across all sessions.
	FindNodeBySignature(ctx context.Context, signature string) (*model.MemoryNode, error)

	// GetNode retrieves a node by ID.
	GetNode(ctx context.Context, id string) (*model.MemoryNode, error)

	// RecentNodes returns up to limit nodes, most recently accessed first.
	RecentNodes(ctx context.Context, limit int) ([]model.MemoryNode, error)

	// InsertNode stores a new node with its connections. An empty ID is assigned.
	InsertNode(ctx context.Context, n *model.MemoryNode) error

	// TouchNode sets a node's weight and last access time.
	TouchNode(ctx context.Context, id string, weight float64, lastAccessed time.Time) error

	// UpdateWeights applies a batch of weight changes in one transaction.
	UpdateWeights(ctx context.Context, updates []WeightUpdate) error

	// AllNodes returns every node, oldest first.
	AllNodes(ctx context.Context) ([]model.MemoryNode, error)

	// NodesBySession returns nodes created in a session, oldest first.
	NodesBySession(ctx context.Context, sessionID string) ([]model.MemoryNode, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	// SaveSession inserts or replaces a session. An empty ID is assigned.
	SaveSession(ctx context.Context, s *model.Session) error

	GetSession(ctx context.Context, id string) (*model.Session, error)

	// LatestSession returns the most recently updated session.
	LatestSession(ctx context.Context) (*model.Session, error)

	ListSessions(ctx context.Context, limit int) ([]model.Session, error)
}

// AchievementStore persists earned achievements.
type AchievementStore interface {
	// PutAchievement records an achievement once per (session, code).
	// Returns false if it was already recorded.
	PutAchievement(ctx context.Context, a *model.Achievement) (bool, error)

	ListAchievements(ctx context.Context, sessionID string) ([]model.Achievement, error)

	// RevealAchievement marks an achievement as shown to the user.
	RevealAchievement(ctx context.Context, id string) (*model.Achievement, error)
}

// Store is the full persistence surface.
type Store interface {
	NodeStore
	SessionStore
	AchievementStore

	// Close closes the store.
	Close() error
}
