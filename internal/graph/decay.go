package graph

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/pattern-memory/internal/store"
)

const (
	sessionDecayRate = 0.1
	minSessionFactor = 0.5
	maxSessionFactor = 1.0
	hoursPerDay      = 24.0
)

// ApplyWeightDecay returns weight decayed exponentially by the days since
// lastAccessed, never below MinWeight. A lastAccessed in the future counts as now.
func (g *Graph) ApplyWeightDecay(weight float64, lastAccessed, now time.Time) float64 {
	days := daysBetween(lastAccessed, now)
	return math.Max(g.opts.MinWeight, weight*math.Exp(-g.opts.WeightDecayRate*days))
}

// DecayAllNodes decays every node and returns how many changed weight.
// Elapsed time counts from the later of last access and the previous decay,
// so repeated passes do not compound.
func (g *Graph) DecayAllNodes(ctx context.Context) (int, error) {
	nodes, err := g.store.AllNodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("load nodes: %w", err)
	}
	now := g.now()

	updates := make([]store.WeightUpdate, 0, len(nodes))
	changed := 0
	for _, n := range nodes {
		from := n.LastAccessed
		if n.DecayedAt.After(from) {
			from = n.DecayedAt
		}
		w := g.ApplyWeightDecay(n.Weight, from, now)
		if w != n.Weight {
			changed++
		}
		updates = append(updates, store.WeightUpdate{ID: n.ID, Weight: w, DecayedAt: now})
	}

	if err := g.store.UpdateWeights(ctx, updates); err != nil {
		return 0, fmt.Errorf("update weights: %w", err)
	}

	g.logger.Info("memory decay applied",
		zap.Int("nodes", len(nodes)),
		zap.Int("changed", changed))
	return changed, nil
}

// SessionDecayFactor is how fresh a session last touched at ts still is.
// It decays more gently than node weights and never drops below 0.5.
func SessionDecayFactor(ts, now time.Time) float64 {
	f := math.Exp(-sessionDecayRate * daysBetween(ts, now))
	return math.Min(maxSessionFactor, math.Max(minSessionFactor, f))
}

func daysBetween(from, to time.Time) float64 {
	d := to.Sub(from).Hours() / hoursPerDay
	if d < 0 {
		return 0
	}
	return d
}
