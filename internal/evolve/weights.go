package evolve

import (
	"math"

	"github.com/rcliao/pattern-memory/internal/analyzer"
	"github.com/rcliao/pattern-memory/internal/model"
)

const (
	maxDepthWeight   = 2.5
	depthWeightStep  = 0.2
	clusterWeightMul = 0.3
	chaosDecayMul    = 0.3
	chaosDepthMul    = 0.05
)

// CalculateWeights combines depth, entropy, cluster density and the
// caller's decay factor into a weight bundle. ClusterInfluence is reported
// but not folded into Strength.
func CalculateWeights(depth int, entropy, clusterDensity, decayFactor float64, k int) model.MutationWeights {
	decay := clamp(decayFactor, 0, 1)
	if depth < 0 {
		depth = 0
	}

	depthWeight := math.Min(1+depthWeightStep*float64(depth), maxDepthWeight)
	entropyWeight := 1 + (0.5 - analyzer.NormalizedEntropy(entropy, k))
	clusterWeight := 1 + clusterWeightMul*clusterDensity

	return model.MutationWeights{
		Strength:         depthWeight * entropyWeight * decay,
		Chaos:            (1-decay)*chaosDecayMul + float64(depth)*chaosDepthMul,
		DepthInfluence:   depthWeight,
		EntropyInfluence: entropyWeight,
		ClusterInfluence: clusterWeight,
		DecayInfluence:   decay,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
