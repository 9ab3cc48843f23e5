package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rcliao/pattern-memory/internal/achievement"
	"github.com/rcliao/pattern-memory/internal/analyzer"
	"github.com/rcliao/pattern-memory/internal/evolve"
	"github.com/rcliao/pattern-memory/internal/graph"
	"github.com/rcliao/pattern-memory/internal/model"
	"github.com/rcliao/pattern-memory/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	orch   *Orchestrator
	store  *store.SQLiteStore
	engine *evolve.Engine
	clock  *clock
}

func newFixture(t *testing.T, st *store.SQLiteStore, wrap func(*store.SQLiteStore) store.Store) *fixture {
	t.Helper()
	if st == nil {
		var err error
		st, err = store.NewSQLiteStore(filepath.Join(t.TempDir(), "orch.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}
	var backing store.Store = st
	if wrap != nil {
		backing = wrap(st)
	}

	c := &clock{t: t0}
	logger := zap.NewNop()
	eng := evolve.New(evolve.DefaultOptions())
	g := graph.New(backing, graph.DefaultOptions(), logger)
	g.SetClock(c.now)
	ev := achievement.NewEvaluator(backing, graph.DefaultOptions().MinWeight, achievement.DefaultThresholds(), logger)
	ev.SetClock(c.now)

	o := New(backing, eng, g, ev, Options{PatternLength: 8, RecentWindow: 3}, logger)
	o.SetClock(c.now)
	return &fixture{orch: o, store: st, engine: eng, clock: c}
}

func TestStartNewSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	snap, err := f.orch.Start(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, model.Pattern{0, 0, 0, 0, 0, 0, 0, 0}, snap.Pattern)
	assert.Equal(t, 0, snap.Depth)
	assert.Equal(t, 1.0, snap.DecayFactor)
	assert.Equal(t, 0.0, snap.Entropy)
	assert.Empty(t, snap.Achievements)

	stored, err := f.store.GetSession(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.False(t, stored.Completed)
	assert.True(t, stored.CreatedAt.Equal(t0))
}

func TestToggleCellEvolves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	start, err := f.orch.Start(ctx)
	require.NoError(t, err)

	f.clock.advance(5 * time.Second)
	snap, err := f.orch.ToggleCell(ctx, start.SessionID, 2)
	require.NoError(t, err)

	toggled := model.Pattern{0, 0, 1, 0, 0, 0, 0, 0}
	want := f.engine.Evolve(evolve.Request{Pattern: toggled, DecayFactor: 1.0, RecentPatterns: []int{}})
	assert.Equal(t, want.Pattern, snap.Pattern)
	assert.Equal(t, evolve.PathDirect, snap.Path)
	assert.Equal(t, 1, snap.Metadata.InteractionCount)
	assert.Equal(t, 1, snap.Metadata.UniquePatterns)
	assert.Equal(t, int64(5), snap.Metadata.Duration)

	stored, err := f.store.GetSession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cell:2"}, stored.Decisions)
	assert.Equal(t, []int(want.Pattern), stored.Patterns)

	nodes, err := f.store.NodesBySession(ctx, start.SessionID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, graph.Signature(want.Pattern), nodes[0].Signature)
}

func TestToggleCellValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	start, _ := f.orch.Start(ctx)

	_, err := f.orch.ToggleCell(ctx, start.SessionID, 8)
	assert.ErrorIs(t, err, ErrInvalidCell)
	_, err = f.orch.ToggleCell(ctx, start.SessionID, -1)
	assert.ErrorIs(t, err, ErrInvalidCell)
	_, err = f.orch.ToggleCell(ctx, "missing", 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.orch.AdvanceDepth(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdvanceDepthBranchesEveryThird(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	start, _ := f.orch.Start(ctx)

	var paths []evolve.Path
	for i := 0; i < 3; i++ {
		snap, err := f.orch.AdvanceDepth(ctx, start.SessionID)
		require.NoError(t, err)
		paths = append(paths, snap.Path)
		assert.Equal(t, i+1, snap.Depth)
	}
	assert.Equal(t, []evolve.Path{evolve.PathDirect, evolve.PathDirect, evolve.PathBranch}, paths)

	stored, _ := f.store.GetSession(ctx, start.SessionID)
	assert.Equal(t, []string{"depth:1", "depth:2", "depth:3"}, stored.Decisions)
	assert.Len(t, stored.History(), 3)
}

func TestStepsAreDeterministic(t *testing.T) {
	ctx := context.Background()
	run := func() model.Pattern {
		f := newFixture(t, nil, nil)
		start, err := f.orch.Start(ctx)
		require.NoError(t, err)
		var snap *Snapshot
		for i := 0; i < 4; i++ {
			snap, err = f.orch.ToggleCell(ctx, start.SessionID, i)
			require.NoError(t, err)
			snap, err = f.orch.AdvanceDepth(ctx, start.SessionID)
			require.NoError(t, err)
		}
		return snap.Pattern
	}
	assert.Equal(t, run(), run())
}

func TestSessionDecayFromPreviousSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	first, err := f.orch.Start(ctx)
	require.NoError(t, err)
	_, err = f.orch.ToggleCell(ctx, first.SessionID, 0)
	require.NoError(t, err)

	f.clock.advance(30 * 24 * time.Hour)
	second, err := f.orch.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, second.DecayFactor)
	assert.Less(t, second.Weights.Strength, 1.5)

	nodes, err := f.store.AllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Less(t, nodes[0].Weight, 1.0, "start decays the graph")
}

func TestResetCompletesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	start, _ := f.orch.Start(ctx)

	snap, err := f.orch.Reset(ctx, start.SessionID)
	require.NoError(t, err)
	assert.True(t, snap.Completed)

	stored, _ := f.store.GetSession(ctx, start.SessionID)
	assert.True(t, stored.Completed)

	_, err = f.orch.ToggleCell(ctx, start.SessionID, 0)
	assert.ErrorIs(t, err, ErrSessionCompleted)
	_, err = f.orch.AdvanceDepth(ctx, start.SessionID)
	assert.ErrorIs(t, err, ErrSessionCompleted)

	got, err := f.orch.Snapshot(ctx, start.SessionID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
}

func TestSessionRehydratesFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	start, _ := f.orch.Start(ctx)
	last, err := f.orch.AdvanceDepth(ctx, start.SessionID)
	require.NoError(t, err)

	other := newFixture(t, f.store, nil)
	snap, err := other.orch.Snapshot(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, last.Pattern, snap.Pattern)
	assert.Equal(t, 1, snap.Depth)

	next, err := other.orch.AdvanceDepth(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Depth)
}

func TestObserverSeesStepsAndUnlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)

	var steps int
	unlocked := map[string]int{}
	f.orch.SetObserver(ObserverFuncs{
		Step: func(Snapshot) { steps++ },
		Unlock: func(_ string, codes []string) {
			for _, c := range codes {
				unlocked[c]++
			}
		},
	})

	start, _ := f.orch.Start(ctx)
	var snap *Snapshot
	var err error
	for i := 0; i < 5; i++ {
		f.clock.advance(10 * time.Second)
		snap, err = f.orch.AdvanceDepth(ctx, start.SessionID)
		require.NoError(t, err)
	}

	assert.Equal(t, 5, steps)
	assert.Equal(t, 1, unlocked[achievement.CodeSpeedRunner])
	for code, n := range unlocked {
		assert.Equal(t, 1, n, "code %s reported more than once", code)
	}
	assert.Contains(t, snap.Achievements, achievement.CodeSpeedRunner)

	earned, err := f.store.ListAchievements(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Len(t, earned, len(unlocked))
}

type failingSessions struct {
	*store.SQLiteStore
}

func (failingSessions) SaveSession(context.Context, *model.Session) error {
	return errors.New("disk full")
}

func TestPersistFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, func(st *store.SQLiteStore) store.Store { return failingSessions{st} })

	start, err := f.orch.Start(ctx)
	require.NoError(t, err)

	snap, err := f.orch.ToggleCell(ctx, start.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Metadata.InteractionCount)
	assert.NotEqual(t, start.Pattern, snap.Pattern)

	// Still live in memory
	again, err := f.orch.Snapshot(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, snap.Pattern, again.Pattern)

	_, err = f.store.GetSession(ctx, start.SessionID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type failingNodes struct {
	*store.SQLiteStore
}

func (failingNodes) InsertNode(context.Context, *model.MemoryNode) error {
	return errors.New("disk full")
}

func (failingNodes) TouchNode(context.Context, string, float64, time.Time) error {
	return errors.New("disk full")
}

func TestNodeWriteFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, func(st *store.SQLiteStore) store.Store { return failingNodes{st} })
	failures := persistFailures.WithLabelValues("create_node")
	before := testutil.ToFloat64(failures)

	start, err := f.orch.Start(ctx)
	require.NoError(t, err)
	snap, err := f.orch.ToggleCell(ctx, start.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Metadata.InteractionCount)
	assert.Equal(t, before+1, testutil.ToFloat64(failures))

	stored, err := f.store.GetSession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, snap.Pattern, stored.Pattern)

	nodes, err := f.store.AllNodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

type failingAchievements struct {
	*store.SQLiteStore
}

func (failingAchievements) PutAchievement(context.Context, *model.Achievement) (bool, error) {
	return false, errors.New("disk full")
}

func TestAchievementWriteFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, func(st *store.SQLiteStore) store.Store { return failingAchievements{st} })

	var unlocks int
	f.orch.SetObserver(ObserverFuncs{Unlock: func(string, []string) { unlocks++ }})

	start, err := f.orch.Start(ctx)
	require.NoError(t, err)
	var snap *Snapshot
	for i := 0; i < 5; i++ {
		f.clock.advance(10 * time.Second)
		snap, err = f.orch.AdvanceDepth(ctx, start.SessionID)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, snap.Depth)
	assert.Empty(t, snap.Achievements)
	assert.Zero(t, unlocks)

	earned, err := f.store.ListAchievements(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Empty(t, earned)
}

func TestSnapshotDescribesCurrentPattern(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	start, err := f.orch.Start(ctx)
	require.NoError(t, err)

	snap, err := f.orch.ToggleCell(ctx, start.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, analyzer.Entropy(snap.Pattern), snap.Entropy)

	snap, err = f.orch.AdvanceDepth(ctx, start.SessionID)
	require.NoError(t, err)
	a := f.engine.Analyze(snap.Pattern)
	w := evolve.CalculateWeights(snap.Depth, a.Entropy, a.ClusterDensity, snap.DecayFactor, f.engine.Options().Symbols)
	assert.Equal(t, a.Entropy, snap.Entropy)
	assert.Equal(t, a.NormalizedEntropy, snap.NormalizedEntropy)
	assert.Equal(t, w, snap.Weights)
	assert.Equal(t, w.Chaos, snap.Chaos)

	live, err := f.orch.Snapshot(ctx, start.SessionID)
	require.NoError(t, err)
	reloaded, err := newFixture(t, f.store, nil).orch.Snapshot(ctx, start.SessionID)
	require.NoError(t, err)

	assert.Equal(t, live.Pattern, reloaded.Pattern)
	assert.Equal(t, live.Depth, reloaded.Depth)
	assert.Equal(t, live.Entropy, reloaded.Entropy)
	assert.Equal(t, live.NormalizedEntropy, reloaded.NormalizedEntropy)
	assert.Equal(t, live.Weights, reloaded.Weights)
	assert.Equal(t, live.Chaos, reloaded.Chaos)
	assert.Equal(t, live.Metadata, reloaded.Metadata)
}

func TestSessionsIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	a, _ := f.orch.Start(ctx)
	b, _ := f.orch.Start(ctx)

	var wg sync.WaitGroup
	for _, id := range []string{a.SessionID, b.SessionID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				f.orch.ToggleCell(ctx, id, i)
			}
		}(id)
	}
	wg.Wait()

	sa, _ := f.orch.Snapshot(ctx, a.SessionID)
	sb, _ := f.orch.Snapshot(ctx, b.SessionID)
	assert.Equal(t, 4, sa.Metadata.InteractionCount)
	assert.Equal(t, 4, sb.Metadata.InteractionCount)
}
