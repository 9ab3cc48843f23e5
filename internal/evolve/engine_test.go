package evolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/pattern-memory/internal/model"
)

func newTestEngine() *Engine {
	return New(DefaultOptions())
}

func TestHash_Stable(t *testing.T) {
	// FNV-1a 32 over little-endian int64 bytes.
	assert.Equal(t, uint32(2615243109), Hash(0))
	assert.Equal(t, uint32(1048580676), Hash(1))
	assert.Equal(t, uint32(2366693084), Hash(1000))
	assert.Equal(t, uint32(1823345245), Hash(-1))
}

func TestCalculateWeights(t *testing.T) {
	w := CalculateWeights(0, 0, 0, 1.0, 4)
	assert.InDelta(t, 1.0, w.DepthInfluence, 1e-9)
	assert.InDelta(t, 1.5, w.EntropyInfluence, 1e-9)
	assert.InDelta(t, 1.0, w.ClusterInfluence, 1e-9)
	assert.InDelta(t, 1.5, w.Strength, 1e-9)
	assert.InDelta(t, 0.0, w.Chaos, 1e-9)

	w = CalculateWeights(20, 2.0, 1.0, 0.5, 4)
	assert.InDelta(t, 2.5, w.DepthInfluence, 1e-9, "depth weight is capped")
	assert.InDelta(t, 0.5, w.EntropyInfluence, 1e-9)
	assert.InDelta(t, 1.3, w.ClusterInfluence, 1e-9)
	assert.InDelta(t, 2.5*0.5*0.5, w.Strength, 1e-9)
	assert.InDelta(t, 0.5*0.3+20*0.05, w.Chaos, 1e-9)
}

func TestEvolve_Deterministic(t *testing.T) {
	e := newTestEngine()
	inputs := []Request{
		{Pattern: model.Pattern{0, 1, 2, 3, 0, 1, 2, 3, 0}, Depth: 0, DecayFactor: 1},
		{Pattern: model.Pattern{3, 3, 1, 0, 2, 2, 1, 0}, Depth: 3, RecentPatterns: []int{1, 2, 3, 0, 1}, DecayFactor: 0.7, EnableBranching: true},
		{Pattern: model.Pattern{0, 0, 0, 0, 0, 0}, Depth: 7, RecentPatterns: []int{0, 0, 1}, DecayFactor: 0.2},
		{Pattern: model.Pattern{2, 1, 2, 1, 2, 1, 2, 1}, Depth: 6, RecentPatterns: []int{-3, 9, 4}, DecayFactor: 0.9, EnableBranching: true},
	}
	for _, req := range inputs {
		first := e.Evolve(req)
		for i := 0; i < 200; i++ {
			again := e.Evolve(req)
			require.Equal(t, first.Pattern, again.Pattern)
			require.Equal(t, first.Branch, again.Branch)
		}
		// A fresh engine with the same options behaves identically.
		assert.Equal(t, first.Pattern, newTestEngine().EvolvePattern(req.Pattern, req.Depth, req.RecentPatterns, req.DecayFactor, req.EnableBranching))
	}
}

func TestEvolve_PreservesLengthAndRange(t *testing.T) {
	e := newTestEngine()
	p := model.Pattern{0, 1, 2, 3, 3, 2, 1, 0, 1, 1, 2, 2}
	for depth := 0; depth < 15; depth++ {
		for _, branching := range []bool{false, true} {
			out := e.EvolvePattern(p, depth, []int{1, 2, 3}, 0.6, branching)
			require.Len(t, out, len(p))
			for _, v := range out {
				assert.GreaterOrEqual(t, v, 0)
				assert.Less(t, v, 4)
			}
		}
	}
}

func TestEvolve_DoesNotMutateInput(t *testing.T) {
	e := newTestEngine()
	p := model.Pattern{0, 0, 0, 0, 0, 0, 0, 0, 0}
	e.EvolvePattern(p, 3, nil, 1.0, true)
	e.EvolvePattern(p, 1, nil, 0.1, false)
	assert.Equal(t, model.Pattern{0, 0, 0, 0, 0, 0, 0, 0, 0}, p)
}

func TestEvolve_EmptyPattern(t *testing.T) {
	res := newTestEngine().Evolve(Request{Pattern: model.Pattern{}, Depth: 3, EnableBranching: true})
	assert.Empty(t, res.Pattern)
}

func TestEvolve_UniformPatternDisrupts(t *testing.T) {
	e := newTestEngine()
	res := e.Evolve(Request{Pattern: model.Pattern{0, 0, 0, 0, 0, 0, 0, 0, 0}, Depth: 0, DecayFactor: 1.0})

	assert.Equal(t, 0.0, res.Analysis.Entropy)
	assert.Greater(t, res.Analysis.ClusterDensity, 0.0)
	assert.Equal(t, PathDirect, res.Path)
	assert.Equal(t, StrategyDisrupt, res.Strategy)
	// strength 1.5 -> one mutation at the first cluster position, +2
	assert.Equal(t, model.Pattern{2, 0, 0, 0, 0, 0, 0, 0, 0}, res.Pattern)
}

func TestEvolve_PreserveTouchesFreeCells(t *testing.T) {
	e := newTestEngine()
	res := e.Evolve(Request{Pattern: model.Pattern{0, 1, 2, 3}, Depth: 0, DecayFactor: 1.0})

	assert.Equal(t, StrategyPreserve, res.Strategy)
	assert.Equal(t, model.Pattern{1, 1, 2, 3}, res.Pattern)
}

func TestEvolve_PreserveSkipsClusterCells(t *testing.T) {
	e := newTestEngine()
	// [1 2] repeats at 0 and 3; cells 2 and 5 are free.
	p := model.Pattern{1, 2, 0, 1, 2, 3}
	res := e.Evolve(Request{Pattern: p, Depth: 2, DecayFactor: 1.0})
	require.Equal(t, StrategyPreserve, res.Strategy)
	require.LessOrEqual(t, res.Weights.Chaos, chaosThreshold)

	for _, i := range []int{0, 1, 3, 4} {
		assert.Equal(t, p[i], res.Pattern[i], "cluster cell %d changed", i)
	}
}

func TestEvolve_BranchWithoutHistoryPicksFirst(t *testing.T) {
	e := newTestEngine()
	p := model.Pattern{0, 1, 2, 3, 0, 1, 2, 3, 0}
	res := e.Evolve(Request{Pattern: p, Depth: 3, RecentPatterns: []int{}, DecayFactor: 1.0, EnableBranching: true})

	require.Equal(t, PathBranch, res.Path)
	assert.Equal(t, 0, res.Branch)
	branches := e.GenerateBranches(p, res.Weights)
	assert.Equal(t, branches[0], res.Pattern)
}

func TestShouldBranch(t *testing.T) {
	assert.False(t, ShouldBranch(0, true))
	assert.False(t, ShouldBranch(2, true))
	assert.True(t, ShouldBranch(3, true))
	assert.True(t, ShouldBranch(9, true))
	assert.False(t, ShouldBranch(3, false))
}

func TestValidateDepth(t *testing.T) {
	assert.NoError(t, ValidateDepth(0))
	assert.NoError(t, ValidateDepth(MaxDepth))
	assert.ErrorIs(t, ValidateDepth(-1), ErrDepthOutOfRange)
	assert.ErrorIs(t, ValidateDepth(MaxDepth+1), ErrDepthOutOfRange)
	assert.ErrorIs(t, ValidateDepth(MaxDepth*1000), ErrDepthOutOfRange)
}

func TestGenerateBranches(t *testing.T) {
	e := newTestEngine()
	p := model.Pattern{0, 1, 2, 3, 0, 1}
	w := CalculateWeights(3, 2.0, 0, 1.0, 4)
	branches := e.GenerateBranches(p, w)
	require.Len(t, branches, DefaultBranchCount)
	for _, b := range branches {
		assert.Len(t, b, len(p))
	}
	assert.Equal(t, model.Pattern{0, 1, 2, 3, 0, 1}, p)
}

func TestSelectBranch_Affinity(t *testing.T) {
	branches := []model.Pattern{{0, 0}, {1, 1}, {3, 3}}
	// scores: 1.0, 4.0, 2.0 -> only branch 1 clears 80% of max
	assert.Equal(t, 1, SelectBranch(branches, []int{0, 0}, 4))
}

func TestSelectBranch_CandidateBySum(t *testing.T) {
	branches := []model.Pattern{{1}, {1}}
	// equal scores, sum(recent)=3 -> candidates[1]
	assert.Equal(t, 1, SelectBranch(branches, []int{0, 0, 3}, 4))
	assert.Equal(t, 0, SelectBranch(branches, []int{0, 0, 2}, 4))
}

func TestSelectBranch_Degenerate(t *testing.T) {
	assert.Equal(t, 0, SelectBranch(nil, []int{1, 2}, 4))
	assert.Equal(t, 0, SelectBranch([]model.Pattern{{1}, {2}}, nil, 4))
	assert.Equal(t, 0, SelectBranch([]model.Pattern{{}, {}}, []int{1}, 4))

	idx := SelectBranch([]model.Pattern{{0, 1}, {2, 3}, {1, 1}}, []int{-7, -2}, 4)
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, 3)
}

func TestMutationCount(t *testing.T) {
	assert.Equal(t, 1, MutationCount(4, 0.5))
	assert.Equal(t, 3, MutationCount(10, 2.5))
	assert.Equal(t, 3, MutationCount(10, 9.0), "intensity is capped at 1")
	assert.Equal(t, 1, MutationCount(10, 0))
}
