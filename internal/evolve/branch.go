package evolve

import (
	"math"

	"github.com/rcliao/pattern-memory/internal/model"
)

const (
	branchSeedStride   = 1000
	branchGrowth       = 0.5
	candidateThreshold = 0.8
)

// GenerateBranches produces BranchCount candidates from p. Branch i gets
// ceil(strength*(1+0.5i)) single-cell mutations, each placed by
// Hash(sum(p) + 1000i + m) with magnitude ceil(chaos*10)+i+1.
func (e *Engine) GenerateBranches(p model.Pattern, w model.MutationWeights) []model.Pattern {
	n := len(p)
	k := e.opts.Symbols
	base := p.Sum()

	branches := make([]model.Pattern, e.opts.BranchCount)
	for i := range branches {
		b := p.Clone()
		if n > 0 {
			mutations := int(math.Ceil(w.Strength * (1 + float64(i)*branchGrowth)))
			magnitude := int(math.Ceil(w.Chaos*10)) + i + 1
			for m := 0; m < mutations; m++ {
				idx := pick(base+i*branchSeedStride+m, n)
				b[idx] = model.Wrap(b[idx]+magnitude, k)
			}
		}
		branches[i] = b
	}
	return branches
}

// AffinityScores scores each branch against the recent history.
// Position j compares branch[j%len] with recent[j] mod k: a difference of
// exactly 1 scores 2, equality 0.5, anything larger 1. NaN becomes 0.
func AffinityScores(branches []model.Pattern, recent []int, k int) []float64 {
	scores := make([]float64, len(branches))
	for i, b := range branches {
		if len(b) == 0 {
			continue
		}
		score := 0.0
		for j, r := range recent {
			d := b[j%len(b)] - model.Wrap(r, k)
			if d < 0 {
				d = -d
			}
			switch {
			case d == 1:
				score += 2
			case d == 0:
				score += 0.5
			default:
				score += 1
			}
		}
		if math.IsNaN(score) {
			score = 0
		}
		scores[i] = score
	}
	return scores
}

// SelectBranch returns an index in [0, len(branches)). It returns 0 when
// there is nothing to choose from or no branch has any affinity.
// Candidates are branches scoring at least 80% of the best; the winner is
// candidates[sum(recent) mod len(candidates)].
func SelectBranch(branches []model.Pattern, recent []int, k int) int {
	if len(branches) == 0 || len(recent) == 0 {
		return 0
	}

	scores := AffinityScores(branches, recent, k)
	maxScore := 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore <= 0 {
		return 0
	}

	var candidates []int
	for i, s := range scores {
		if s >= candidateThreshold*maxScore {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	sum := 0
	for _, r := range recent {
		sum += r
	}
	return candidates[model.Wrap(sum, len(candidates))]
}
