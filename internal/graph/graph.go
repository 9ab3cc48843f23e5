// Package graph maintains the persistent memory graph: one weighted node per
// distinct pattern signature, linked to similar recent nodes, decaying over time.
package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/pattern-memory/internal/model"
	"github.com/rcliao/pattern-memory/internal/store"
)

// Options tunes node creation and decay.
type Options struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gt=0,lte=1"`
	MaxConnections      int     `yaml:"max_connections" validate:"gte=0"`
	RecentScan          int     `yaml:"recent_scan" validate:"gt=0"`
	MinWeight           float64 `yaml:"min_weight" validate:"gte=0,lte=1"`
	WeightDecayRate     float64 `yaml:"weight_decay_rate" validate:"gte=0"`
	Reinforcement       float64 `yaml:"reinforcement" validate:"gte=0,lte=1"`
}

// DefaultOptions returns the standard graph tuning.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.7,
		MaxConnections:      5,
		RecentScan:          50,
		MinWeight:           0.1,
		WeightDecayRate:     0.05,
		Reinforcement:       0.1,
	}
}

// ErrEmptyPattern is returned when asked to remember an empty pattern.
var ErrEmptyPattern = errors.New("empty pattern")

// Graph is the memory graph over a NodeStore.
type Graph struct {
	store  store.NodeStore
	opts   Options
	now    func() time.Time
	logger *zap.Logger
}

// New creates a Graph.
func New(st store.NodeStore, opts Options, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{store: st, opts: opts, now: time.Now, logger: logger}
}

// SetClock replaces the time source.
func (g *Graph) SetClock(now func() time.Time) {
	g.now = now
}

// Options returns the graph's tuning.
func (g *Graph) Options() Options {
	return g.opts
}

// Signature is the canonical key of a pattern: its values joined by commas.
func Signature(p model.Pattern) string {
	var b strings.Builder
	for i, v := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// Similarity is the fraction of positions where a and b agree.
// Patterns of different length, or empty ones, are not similar at all.
func Similarity(a, b model.Pattern) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a))
}

// Outcome describes what CreateNode did.
type Outcome struct {
	ID          string  `json:"id"`
	Merged      bool    `json:"merged"`
	Weight      float64 `json:"weight"`
	Connections int     `json:"connections"`
}

// CreateNode remembers a pattern and returns its node id.
func (g *Graph) CreateNode(ctx context.Context, p model.Pattern, depth int, sessionID string) (string, error) {
	out, err := g.Record(ctx, p, depth, sessionID)
	return out.ID, err
}

// Record remembers a pattern. Signatures are shared across sessions: a pattern
// seen before, by anyone, reinforces the existing node instead of adding one.
func (g *Graph) Record(ctx context.Context, p model.Pattern, depth int, sessionID string) (Outcome, error) {
	if len(p) == 0 {
		return Outcome{}, ErrEmptyPattern
	}
	sig := Signature(p)
	now := g.now()

	existing, err := g.store.FindNodeBySignature(ctx, sig)
	if err == nil {
		return g.reinforce(ctx, existing, now)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Outcome{}, fmt.Errorf("find node %s: %w", sig, err)
	}

	recent, err := g.store.RecentNodes(ctx, g.opts.RecentScan)
	if err != nil {
		return Outcome{}, fmt.Errorf("recent nodes: %w", err)
	}

	n := &model.MemoryNode{
		Signature:    sig,
		Pattern:      p.Clone(),
		Depth:        depth,
		Weight:       1.0,
		Connections:  g.neighbors(p, recent),
		LastAccessed: now,
		SessionID:    sessionID,
		CreatedAt:    now,
	}
	if err := g.store.InsertNode(ctx, n); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return Outcome{}, err
		}
		// Lost a race with another writer; merge into theirs.
		existing, ferr := g.store.FindNodeBySignature(ctx, sig)
		if ferr != nil {
			return Outcome{}, fmt.Errorf("find node %s after conflict: %w", sig, ferr)
		}
		return g.reinforce(ctx, existing, now)
	}

	g.logger.Debug("memory node created",
		zap.String("id", n.ID),
		zap.String("signature", sig),
		zap.String("session", sessionID),
		zap.Int("connections", len(n.Connections)))

	return Outcome{ID: n.ID, Weight: n.Weight, Connections: len(n.Connections)}, nil
}

func (g *Graph) reinforce(ctx context.Context, n *model.MemoryNode, now time.Time) (Outcome, error) {
	weight := math.Min(1.0, n.Weight+g.opts.Reinforcement)
	if err := g.store.TouchNode(ctx, n.ID, weight, now); err != nil {
		return Outcome{}, fmt.Errorf("reinforce node %s: %w", n.ID, err)
	}
	g.logger.Debug("memory node reinforced",
		zap.String("id", n.ID),
		zap.Float64("weight", weight))
	return Outcome{ID: n.ID, Merged: true, Weight: weight, Connections: len(n.Connections)}, nil
}

// neighbors picks up to MaxConnections similar nodes, most recent first.
func (g *Graph) neighbors(p model.Pattern, recent []model.MemoryNode) []string {
	conns := []string{}
	for _, r := range recent {
		if len(conns) >= g.opts.MaxConnections {
			break
		}
		if Similarity(p, r.Pattern) >= g.opts.SimilarityThreshold {
			conns = append(conns, r.ID)
		}
	}
	return conns
}
