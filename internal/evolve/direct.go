package evolve

import (
	"math"

	"github.com/rcliao/pattern-memory/internal/analyzer"
	"github.com/rcliao/pattern-memory/internal/model"
)

const (
	maxStrength    = 2.5
	mutationShare  = 0.3
	disruptStep    = 2
	chaosThreshold = 0.2
	chaosPassMul   = 5
	chaosMagnitude = 10
)

// MutationCount is the direct-path budget: max(1, floor(n*intensity*0.3)).
func MutationCount(n int, strength float64) int {
	intensity := math.Min(strength/maxStrength, 1)
	if intensity < 0 {
		intensity = 0
	}
	c := int(math.Floor(float64(n) * intensity * mutationShare))
	if c < 1 {
		c = 1
	}
	return c
}

func (e *Engine) mutateDirect(p model.Pattern, clusters []model.Cluster, w model.MutationWeights, strategy Strategy) model.Pattern {
	out := p.Clone()
	n := len(out)
	k := e.opts.Symbols
	count := MutationCount(n, w.Strength)

	switch strategy {
	case StrategyDisrupt:
		if len(clusters) == 0 || len(clusters[0].Positions) == 0 {
			break
		}
		positions := clusters[0].Positions
		for i := 0; i < count; i++ {
			idx := positions[i%len(positions)]
			out[idx] = model.Wrap(out[idx]+disruptStep, k)
		}
	default:
		targets := freeCells(clusters, n)
		for i := 0; i < count; i++ {
			idx := targets[i%len(targets)]
			out[idx] = model.Wrap(out[idx]+1, k)
		}
	}

	if w.Chaos > chaosThreshold {
		passes := int(math.Floor(w.Chaos * chaosPassMul))
		magnitude := int(math.Floor(w.Chaos * chaosMagnitude))
		for pass := 0; pass < passes; pass++ {
			idx := pick(weightedSum(out)+pass, n)
			out[idx] = model.Wrap(out[idx]+magnitude, k)
		}
	}
	return out
}

// freeCells lists cells outside every cluster, ascending. When clusters
// cover everything, all cells are returned.
func freeCells(clusters []model.Cluster, n int) []int {
	covered := analyzer.CoveredCells(clusters, n)
	var free []int
	for i, c := range covered {
		if !c {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		free = make([]int, n)
		for i := range free {
			free[i] = i
		}
	}
	return free
}

func weightedSum(p model.Pattern) int {
	s := 0
	for i, v := range p {
		s += v * i
	}
	return s
}
