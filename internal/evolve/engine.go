// Package evolve derives mutation weights and produces the next pattern.
//
// Everything here is a pure function of its inputs: no clock, no random
// source, no shared state. Identical requests yield identical results.
package evolve

import (
	"errors"
	"fmt"

	"github.com/rcliao/pattern-memory/internal/analyzer"
	"github.com/rcliao/pattern-memory/internal/model"
)

// DefaultBranchCount is the number of candidate patterns on the branch path.
const DefaultBranchCount = 3

// branchEvery selects the branch path on every n-th depth.
const branchEvery = 3

// MaxDepth is the deepest level accepted from callers. Chaos passes grow
// linearly with depth.
const MaxDepth = 10000

// ErrDepthOutOfRange is returned by ValidateDepth.
var ErrDepthOutOfRange = errors.New("depth out of range")

// ValidateDepth checks that depth is within [0, MaxDepth].
func ValidateDepth(depth int) error {
	if depth < 0 || depth > MaxDepth {
		return fmt.Errorf("depth %d not in [0,%d]: %w", depth, MaxDepth, ErrDepthOutOfRange)
	}
	return nil
}

// Path identifies which state the engine went through.
type Path string

const (
	PathBranch Path = "branch"
	PathDirect Path = "direct"
)

// Strategy is the direct-path mutation strategy.
type Strategy string

const (
	StrategyPreserve Strategy = "preserve"
	StrategyDisrupt  Strategy = "disrupt"
)

// Options configures an Engine.
type Options struct {
	Symbols       int // K
	BranchCount   int
	MinClusterLen int
	MaxClusterLen int
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		Symbols:       model.DefaultSymbols,
		BranchCount:   DefaultBranchCount,
		MinClusterLen: analyzer.DefaultMinClusterLen,
		MaxClusterLen: analyzer.DefaultMaxClusterLen,
	}
}

// Request is one evolution step's input.
type Request struct {
	Pattern         model.Pattern `json:"pattern"`
	Depth           int           `json:"depth"`
	RecentPatterns  []int         `json:"recentPatterns"`
	DecayFactor     float64       `json:"decayFactor"`
	EnableBranching bool          `json:"enableBranching"`
}

// Result is the next pattern plus what produced it.
type Result struct {
	Pattern  model.Pattern         `json:"pattern"`
	Path     Path                  `json:"path"`
	Strategy Strategy              `json:"strategy,omitempty"`
	Branch   int                   `json:"branch"`
	Analysis analyzer.Analysis     `json:"analysis"`
	Weights  model.MutationWeights `json:"weights"`
}

// Engine evolves patterns. The zero value is not usable; use New.
type Engine struct {
	opts Options
}

// New creates an Engine, filling unset options with defaults.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.Symbols < 2 {
		opts.Symbols = def.Symbols
	}
	if opts.BranchCount <= 0 {
		opts.BranchCount = def.BranchCount
	}
	if opts.MinClusterLen <= 0 {
		opts.MinClusterLen = def.MinClusterLen
	}
	if opts.MaxClusterLen <= 0 {
		opts.MaxClusterLen = def.MaxClusterLen
	}
	return &Engine{opts: opts}
}

// Options returns the effective configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// EvolvePattern is the boundary form of Evolve: the next pattern only.
func (e *Engine) EvolvePattern(pattern model.Pattern, depth int, recent []int, decayFactor float64, enableBranching bool) model.Pattern {
	return e.Evolve(Request{
		Pattern:         pattern,
		Depth:           depth,
		RecentPatterns:  recent,
		DecayFactor:     decayFactor,
		EnableBranching: enableBranching,
	}).Pattern
}

// Evolve runs Analyze then either the branch or the direct path.
func (e *Engine) Evolve(req Request) Result {
	if len(req.Pattern) == 0 {
		return Result{Pattern: model.Pattern{}, Path: PathDirect}
	}

	analysis := e.Analyze(req.Pattern)
	weights := CalculateWeights(req.Depth, analysis.Entropy, analysis.ClusterDensity, req.DecayFactor, e.opts.Symbols)
	res := Result{Analysis: analysis, Weights: weights}

	if ShouldBranch(req.Depth, req.EnableBranching) {
		branches := e.GenerateBranches(req.Pattern, weights)
		idx := SelectBranch(branches, req.RecentPatterns, e.opts.Symbols)
		res.Path = PathBranch
		res.Branch = idx
		res.Pattern = branches[idx]
		return res
	}

	res.Path = PathDirect
	res.Strategy = ChooseStrategy(analysis.ClusterDensity)
	res.Pattern = e.mutateDirect(req.Pattern, analysis.Clusters, weights, res.Strategy)
	return res
}

// Analyze runs the pattern analyzer with the engine's window bounds.
func (e *Engine) Analyze(p model.Pattern) analyzer.Analysis {
	return analyzer.Analyze(p, e.opts.Symbols, analyzer.Options{
		MinLen: e.opts.MinClusterLen,
		MaxLen: e.opts.MaxClusterLen,
	})
}

// ShouldBranch reports whether a step at depth takes the branch path.
func ShouldBranch(depth int, enableBranching bool) bool {
	return enableBranching && depth > 0 && depth%branchEvery == 0
}

// ChooseStrategy picks disrupt for saturated structure, preserve otherwise.
func ChooseStrategy(clusterDensity float64) Strategy {
	if clusterDensity > 0.5 {
		return StrategyDisrupt
	}
	return StrategyPreserve
}
