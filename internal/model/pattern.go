// Package model defines the core pattern and memory data types.
package model

import "fmt"

// DefaultSymbols is the number of distinct cell values (K).
const DefaultSymbols = 4

// Pattern is a fixed-length sequence of cell values in [0, K-1].
type Pattern []int

// Clone returns an independent copy.
func (p Pattern) Clone() Pattern {
	if p == nil {
		return nil
	}
	out := make(Pattern, len(p))
	copy(out, p)
	return out
}

// Sum returns the sum of all cell values.
func (p Pattern) Sum() int {
	total := 0
	for _, v := range p {
		total += v
	}
	return total
}

// Equal reports whether two patterns hold the same values in the same order.
func (p Pattern) Equal(o Pattern) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Wrap maps v into [0, k-1], handling negative values.
func Wrap(v, k int) int {
	if k <= 0 {
		return v
	}
	m := v % k
	if m < 0 {
		m += k
	}
	return m
}

// ValidatePattern checks length and value range at the entry boundary.
// A length of 0 skips the length check.
func ValidatePattern(p Pattern, length, k int) error {
	if length > 0 && len(p) != length {
		return fmt.Errorf("pattern length %d, want %d", len(p), length)
	}
	for i, v := range p {
		if v < 0 || v >= k {
			return fmt.Errorf("cell %d value %d out of range [0,%d]", i, v, k-1)
		}
	}
	return nil
}

// Cluster is a repeated contiguous subsequence within a pattern.
type Cluster struct {
	Sequence  []int `json:"sequence"`
	Positions []int `json:"positions"`
	Length    int   `json:"length"`
	Frequency int   `json:"frequency"`
}

// Significance is frequency*length, the ordering key for clusters.
func (c Cluster) Significance() int {
	return c.Frequency * c.Length
}

// MutationWeights is the derived intensity bundle for one evolution step.
type MutationWeights struct {
	Strength         float64 `json:"strength"`
	Chaos            float64 `json:"chaos"`
	DepthInfluence   float64 `json:"depthInfluence"`
	EntropyInfluence float64 `json:"entropyInfluence"`
	ClusterInfluence float64 `json:"clusterInfluence"`
	DecayInfluence   float64 `json:"decayInfluence"`
}
