// Package orchestrator drives sessions: it turns user interactions into
// evolution steps and feeds each result to the memory graph and the
// achievement evaluator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rcliao/pattern-memory/internal/achievement"
	"github.com/rcliao/pattern-memory/internal/analyzer"
	"github.com/rcliao/pattern-memory/internal/evolve"
	"github.com/rcliao/pattern-memory/internal/graph"
	"github.com/rcliao/pattern-memory/internal/model"
	"github.com/rcliao/pattern-memory/internal/store"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCompleted is returned when stepping a session that was reset.
	ErrSessionCompleted = errors.New("session completed")
	// ErrInvalidCell is returned for a cell index outside the pattern.
	ErrInvalidCell = errors.New("invalid cell index")
)

// Options configures session shape.
type Options struct {
	PatternLength int
	RecentWindow  int
}

// DefaultOptions returns the standard session shape.
func DefaultOptions() Options {
	return Options{PatternLength: 16, RecentWindow: 3}
}

// Store is the persistence the orchestrator needs directly.
type Store interface {
	store.SessionStore
	store.AchievementStore
}

// Snapshot is the read-only view handed to consumers.
type Snapshot struct {
	SessionID         string                `json:"sessionId"`
	Pattern           model.Pattern         `json:"pattern"`
	Depth             int                   `json:"depth"`
	Weights           model.MutationWeights `json:"weights"`
	Entropy           float64               `json:"entropy"`
	NormalizedEntropy float64               `json:"normalizedEntropy"`
	Chaos             float64               `json:"chaos"`
	DecayFactor       float64               `json:"decayFactor"`
	Path              evolve.Path           `json:"path,omitempty"`
	Unlocked          []string              `json:"unlocked,omitempty"`
	Achievements      []string              `json:"achievements"`
	Completed         bool                  `json:"completed"`
	Metadata          model.SessionMetadata `json:"metadata"`
}

type liveSession struct {
	mu       sync.Mutex
	sess     *model.Session
	analysis analyzer.Analysis
	weights  model.MutationWeights
	path     evolve.Path
	codes    []string
}

// Orchestrator owns live sessions. Each session has one writer at a time;
// different sessions proceed independently.
type Orchestrator struct {
	store     Store
	engine    *evolve.Engine
	graph     *graph.Graph
	evaluator *achievement.Evaluator
	observer  Observer
	opts      Options
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// New creates an Orchestrator.
func New(st Store, eng *evolve.Engine, g *graph.Graph, ev *achievement.Evaluator, opts Options, logger *zap.Logger) *Orchestrator {
	def := DefaultOptions()
	if opts.PatternLength <= 0 {
		opts.PatternLength = def.PatternLength
	}
	if opts.RecentWindow < 0 {
		opts.RecentWindow = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     st,
		engine:    eng,
		graph:     g,
		evaluator: ev,
		observer:  nopObserver{},
		opts:      opts,
		now:       time.Now,
		logger:    logger,
		sessions:  make(map[string]*liveSession),
	}
}

// SetObserver installs a consumer. Nil restores the no-op observer.
func (o *Orchestrator) SetObserver(obs Observer) {
	if obs == nil {
		obs = nopObserver{}
	}
	o.observer = obs
}

// SetClock replaces the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Start decays the memory graph and opens a new session whose freshness
// comes from how long ago the previous session was touched.
func (o *Orchestrator) Start(ctx context.Context) (*Snapshot, error) {
	now := o.now()

	if _, err := o.graph.DecayAllNodes(ctx); err != nil {
		o.persistFailed("decay", "", err)
	}

	decay := 1.0
	latest, err := o.store.LatestSession(ctx)
	switch {
	case err == nil:
		decay = graph.SessionDecayFactor(latest.UpdatedAt, now)
	case !errors.Is(err, store.ErrNotFound):
		o.persistFailed("latest_session", "", err)
	}

	sess := &model.Session{
		ID:          ulid.Make().String(),
		Decisions:   []string{},
		Patterns:    []int{},
		Pattern:     make(model.Pattern, o.opts.PatternLength),
		DecayFactor: decay,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.SaveSession(ctx, sess); err != nil {
		o.persistFailed("save_session", sess.ID, err)
	}

	ls := o.newLive(sess)
	o.mu.Lock()
	o.sessions[sess.ID] = ls
	o.mu.Unlock()

	o.logger.Info("session started",
		zap.String("session", sess.ID),
		zap.Float64("decay_factor", decay))

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.snapshot(), nil
}

// ToggleCell advances one cell to its next symbol, then evolves without branching.
func (o *Orchestrator) ToggleCell(ctx context.Context, sessionID string, index int) (*Snapshot, error) {
	ls, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.sess.Completed {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionCompleted)
	}
	if index < 0 || index >= len(ls.sess.Pattern) {
		return nil, fmt.Errorf("cell %d of %d: %w", index, len(ls.sess.Pattern), ErrInvalidCell)
	}

	p := ls.sess.Pattern.Clone()
	p[index] = model.Wrap(p[index]+1, o.engine.Options().Symbols)
	return o.step(ctx, ls, p, false, model.CellDecision(index)), nil
}

// AdvanceDepth descends one level, then evolves with branching allowed.
func (o *Orchestrator) AdvanceDepth(ctx context.Context, sessionID string) (*Snapshot, error) {
	ls, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.sess.Completed {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionCompleted)
	}

	ls.sess.Depth++
	return o.step(ctx, ls, ls.sess.Pattern, true, model.DepthDecision(ls.sess.Depth)), nil
}

// Reset completes a session and releases it.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) (*Snapshot, error) {
	ls, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	ls.sess.Completed = true
	ls.sess.UpdatedAt = o.now()
	if err := o.store.SaveSession(ctx, ls.sess); err != nil {
		o.persistFailed("save_session", sessionID, err)
	}
	snap := ls.snapshot()
	ls.mu.Unlock()

	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()

	o.logger.Info("session reset",
		zap.String("session", sessionID),
		zap.Int("interactions", snap.Metadata.InteractionCount))
	return snap, nil
}

// Snapshot returns the current view of a session.
func (o *Orchestrator) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	ls, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.snapshot(), nil
}

// step evolves p, records the result on the session and persists it.
// Persistence is best-effort: the new pattern stands even if writes fail.
// Caller holds ls.mu.
func (o *Orchestrator) step(ctx context.Context, ls *liveSession, p model.Pattern, branching bool, decision string) *Snapshot {
	sess := ls.sess
	now := o.now()

	res := o.engine.Evolve(evolve.Request{
		Pattern:         p,
		Depth:           sess.Depth,
		RecentPatterns:  o.recentPatterns(sess),
		DecayFactor:     sess.DecayFactor,
		EnableBranching: branching,
	})
	stepsTotal.WithLabelValues(string(res.Path)).Inc()

	sess.Pattern = res.Pattern
	sess.Patterns = append(sess.Patterns, res.Pattern...)
	sess.Decisions = append(sess.Decisions, decision)
	sess.Metadata.InteractionCount++
	sess.Metadata.UniquePatterns = uniquePatterns(sess.History())
	sess.Metadata.Duration = int64(now.Sub(sess.CreatedAt) / time.Second)
	sess.UpdatedAt = now

	// Analysis and weights follow the new pattern, matching a reload.
	ls.analyze(o.engine)
	ls.path = res.Path

	if out, err := o.graph.Record(ctx, res.Pattern, sess.Depth, sess.ID); err != nil {
		o.persistFailed("create_node", sess.ID, err)
	} else if out.Merged {
		nodesTotal.WithLabelValues("merged").Inc()
	} else {
		nodesTotal.WithLabelValues("created").Inc()
	}

	if err := o.store.SaveSession(ctx, sess); err != nil {
		o.persistFailed("save_session", sess.ID, err)
	}

	codes, err := o.evaluator.CheckSession(ctx, sess)
	if err != nil {
		o.persistFailed("check_achievements", sess.ID, err)
	}
	for _, c := range codes {
		achievementsUnlocked.WithLabelValues(c).Inc()
	}
	ls.codes = append(ls.codes, codes...)

	o.logger.Debug("step",
		zap.String("session", sess.ID),
		zap.String("decision", decision),
		zap.String("path", string(res.Path)),
		zap.Int("depth", sess.Depth))

	snap := ls.snapshot()
	snap.Unlocked = codes
	if len(codes) > 0 {
		o.observer.OnUnlock(sess.ID, codes)
	}
	o.observer.OnStep(*snap)
	return snap
}

// recentPatterns flattens the last RecentWindow history entries.
func (o *Orchestrator) recentPatterns(sess *model.Session) []int {
	history := sess.History()
	if len(history) > o.opts.RecentWindow {
		history = history[len(history)-o.opts.RecentWindow:]
	}
	out := make([]int, 0, len(history)*len(sess.Pattern))
	for _, p := range history {
		out = append(out, p...)
	}
	return out
}

// load returns the live session, rehydrating it from the store if needed.
func (o *Orchestrator) load(ctx context.Context, id string) (*liveSession, error) {
	o.mu.RLock()
	ls, ok := o.sessions[id]
	o.mu.RUnlock()
	if ok {
		return ls, nil
	}

	sess, err := o.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if sess.Decisions == nil {
		sess.Decisions = []string{}
	}
	if sess.Patterns == nil {
		sess.Patterns = []int{}
	}

	fresh := o.newLive(sess)
	if earned, err := o.store.ListAchievements(ctx, id); err == nil {
		for _, a := range earned {
			fresh.codes = append(fresh.codes, a.Code)
		}
	} else {
		o.persistFailed("list_achievements", id, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if ls, ok := o.sessions[id]; ok {
		return ls, nil
	}
	if !sess.Completed {
		o.sessions[id] = fresh
	}
	return fresh, nil
}

func (o *Orchestrator) newLive(sess *model.Session) *liveSession {
	ls := &liveSession{sess: sess, codes: []string{}}
	ls.analyze(o.engine)
	return ls
}

// analyze refreshes the analysis and weights of the current pattern.
func (ls *liveSession) analyze(eng *evolve.Engine) {
	s := ls.sess
	ls.analysis = eng.Analyze(s.Pattern)
	ls.weights = evolve.CalculateWeights(s.Depth, ls.analysis.Entropy, ls.analysis.ClusterDensity, s.DecayFactor, eng.Options().Symbols)
}

func (o *Orchestrator) persistFailed(op, sessionID string, err error) {
	persistFailures.WithLabelValues(op).Inc()
	o.logger.Warn("persistence failed",
		zap.String("op", op),
		zap.String("session", sessionID),
		zap.Error(err))
}

// snapshot copies the session view. Caller holds ls.mu.
func (ls *liveSession) snapshot() *Snapshot {
	codes := make([]string, len(ls.codes))
	copy(codes, ls.codes)
	return &Snapshot{
		SessionID:         ls.sess.ID,
		Pattern:           ls.sess.Pattern.Clone(),
		Depth:             ls.sess.Depth,
		Weights:           ls.weights,
		Entropy:           ls.analysis.Entropy,
		NormalizedEntropy: ls.analysis.NormalizedEntropy,
		Chaos:             ls.weights.Chaos,
		DecayFactor:       ls.sess.DecayFactor,
		Path:              ls.path,
		Achievements:      codes,
		Completed:         ls.sess.Completed,
		Metadata:          ls.sess.Metadata,
	}
}

func uniquePatterns(history []model.Pattern) int {
	seen := make(map[string]struct{}, len(history))
	for _, p := range history {
		seen[graph.Signature(p)] = struct{}{}
	}
	return len(seen)
}
