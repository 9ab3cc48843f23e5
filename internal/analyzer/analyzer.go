// Package analyzer computes entropy and repeated-subsequence structure of a pattern.
package analyzer

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rcliao/pattern-memory/internal/model"
)

const (
	DefaultMinClusterLen = 2
	DefaultMaxClusterLen = 4
)

// Options bounds the cluster window lengths.
type Options struct {
	MinLen int
	MaxLen int
}

// DefaultOptions returns the reference window bounds.
func DefaultOptions() Options {
	return Options{
		MinLen: DefaultMinClusterLen,
		MaxLen: DefaultMaxClusterLen,
	}
}

// Analysis bundles everything derived from a single pattern.
type Analysis struct {
	Entropy           float64         `json:"entropy"`
	NormalizedEntropy float64         `json:"normalizedEntropy"`
	Clusters          []model.Cluster `json:"clusters"`
	ClusterDensity    float64         `json:"clusterDensity"`
}

// Analyze runs every measurement over p for an alphabet of k symbols.
func Analyze(p model.Pattern, k int, opts Options) Analysis {
	h := Entropy(p)
	clusters := DetectClusters(p, opts)
	return Analysis{
		Entropy:           h,
		NormalizedEntropy: NormalizedEntropy(h, k),
		Clusters:          clusters,
		ClusterDensity:    ClusterDensity(clusters, len(p)),
	}
}

// Entropy returns the Shannon entropy in bits of the cell value distribution.
func Entropy(p model.Pattern) float64 {
	if len(p) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, v := range p {
		counts[v]++
	}
	n := float64(len(p))
	h := 0.0
	for _, c := range counts {
		q := float64(c) / n
		h -= q * math.Log2(q)
	}
	// rounding guard
	if h < 0 {
		h = 0
	}
	return h
}

// NormalizedEntropy scales h by log2(k) into [0, 1].
func NormalizedEntropy(h float64, k int) float64 {
	if k < 2 {
		return 0
	}
	v := h / math.Log2(float64(k))
	return math.Max(0, math.Min(1, v))
}

// DetectClusters finds repeated contiguous subsequences of length
// opts.MinLen..min(n/2, opts.MaxLen). The emitted frequency*length total
// never exceeds 2n; enumeration stops at the first cluster that would
// cross it. Results are ordered by significance, most significant first.
func DetectClusters(p model.Pattern, opts Options) []model.Cluster {
	if opts.MinLen <= 0 {
		opts = DefaultOptions()
	}
	n := len(p)
	if n == 0 {
		return []model.Cluster{}
	}

	maxLen := n / 2
	if opts.MaxLen > 0 && opts.MaxLen < maxLen {
		maxLen = opts.MaxLen
	}
	budget := 2 * n
	total := 0
	clusters := []model.Cluster{}

scan:
	for length := opts.MinLen; length <= maxLen; length++ {
		var order []string
		groups := make(map[string][]int)
		for start := 0; start+length <= n; start++ {
			key := sequenceKey(p[start : start+length])
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], start)
		}

		for _, key := range order {
			positions := groups[key]
			if len(positions) < 2 {
				continue
			}
			weight := len(positions) * length
			if total+weight > budget {
				break scan
			}
			total += weight
			seq := make([]int, length)
			copy(seq, p[positions[0]:positions[0]+length])
			clusters = append(clusters, model.Cluster{
				Sequence:  seq,
				Positions: positions,
				Length:    length,
				Frequency: len(positions),
			})
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Significance() > clusters[j].Significance()
	})
	return clusters
}

// ClusterDensity is the emitted cluster weight relative to 2n, capped at 1.
// 0 means no repeated structure, 1 means saturated structure.
func ClusterDensity(clusters []model.Cluster, n int) float64 {
	if n <= 0 {
		return 0
	}
	total := 0
	for _, c := range clusters {
		total += c.Significance()
	}
	return math.Min(float64(total)/float64(2*n), 1)
}

// CoveredCells returns the set of cell indices inside any cluster occurrence.
func CoveredCells(clusters []model.Cluster, n int) []bool {
	covered := make([]bool, n)
	for _, c := range clusters {
		for _, start := range c.Positions {
			for i := start; i < start+c.Length && i < n; i++ {
				covered[i] = true
			}
		}
	}
	return covered
}

func sequenceKey(seq []int) string {
	var b strings.Builder
	for i, v := range seq {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}
