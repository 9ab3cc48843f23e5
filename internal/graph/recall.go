package graph

import (
	"context"
	"math"
	"sort"

	"github.com/rcliao/pattern-memory/internal/model"
)

// RecallParams selects which memories to rank.
type RecallParams struct {
	SessionID string // empty for the whole graph
	Limit     int
}

// RecalledNode is a node with its recall score.
type RecalledNode struct {
	model.MemoryNode
	Recency float64 `json:"recency"`
	Score   float64 `json:"score"`
}

// RecallResult is the ranked view handed to rendering consumers.
type RecallResult struct {
	Total int            `json:"total"`
	Nodes []RecalledNode `json:"nodes"`
}

// Recall ranks memories by weight and recency of access.
func (g *Graph) Recall(ctx context.Context, p RecallParams) (*RecallResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	var nodes []model.MemoryNode
	var err error
	if p.SessionID != "" {
		nodes, err = g.store.NodesBySession(ctx, p.SessionID)
	} else {
		nodes, err = g.store.AllNodes(ctx)
	}
	if err != nil {
		return nil, err
	}

	result := &RecallResult{Total: len(nodes), Nodes: []RecalledNode{}}
	if len(nodes) == 0 {
		return result, nil
	}

	now := g.now()
	scored := make([]RecalledNode, 0, len(nodes))
	for _, n := range nodes {
		// Recency: exponential decay over days since last access
		recency := math.Exp(-0.1 * daysBetween(n.LastAccessed, now))
		score := n.Weight*0.6 + recency*0.4
		scored = append(scored, RecalledNode{
			MemoryNode: n,
			Recency:    math.Round(recency*100) / 100,
			Score:      math.Round(score*100) / 100,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	result.Nodes = scored
	return result, nil
}
