package achievement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/pattern-memory/internal/model"
	"github.com/rcliao/pattern-memory/internal/store"
)

// Store is what the evaluator reads and writes.
type Store interface {
	store.NodeStore
	store.SessionStore
	store.AchievementStore
}

// Evaluator checks the rule table against a session.
type Evaluator struct {
	store      Store
	minWeight  float64
	thresholds Thresholds
	now        func() time.Time
	logger     *zap.Logger
}

// NewEvaluator creates an Evaluator. minWeight is the graph's weight floor.
func NewEvaluator(st Store, minWeight float64, th Thresholds, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{store: st, minWeight: minWeight, thresholds: th, now: time.Now, logger: logger}
}

// SetClock replaces the time source.
func (e *Evaluator) SetClock(now func() time.Time) {
	e.now = now
}

type unlockMeta struct {
	Depth            int `json:"depth"`
	InteractionCount int `json:"interactionCount"`
}

// Check evaluates every rule not yet earned by the session and records the
// ones now satisfied. It returns the newly earned codes in table order.
// A code whose write fails is logged and left out.
func (e *Evaluator) Check(ctx context.Context, sessionID string) ([]string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	in, err := e.input(ctx, sess)
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, in)
}

// CheckSession is Check for a session the caller already holds.
func (e *Evaluator) CheckSession(ctx context.Context, sess *model.Session) ([]string, error) {
	in, err := e.input(ctx, sess)
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, in)
}

func (e *Evaluator) input(ctx context.Context, sess *model.Session) (Input, error) {
	sessionNodes, err := e.store.NodesBySession(ctx, sess.ID)
	if err != nil {
		return Input{}, fmt.Errorf("session nodes: %w", err)
	}
	allNodes, err := e.store.AllNodes(ctx)
	if err != nil {
		return Input{}, fmt.Errorf("all nodes: %w", err)
	}
	return Input{
		Session:      sess,
		History:      sess.History(),
		SessionNodes: sessionNodes,
		AllNodes:     allNodes,
		MinWeight:    e.minWeight,
		Now:          e.now(),
		Thresholds:   e.thresholds,
	}, nil
}

func (e *Evaluator) evaluate(ctx context.Context, in Input) ([]string, error) {
	earned, err := e.store.ListAchievements(ctx, in.Session.ID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	have := make(map[string]bool, len(earned))
	for _, a := range earned {
		have[a.Code] = true
	}

	meta, err := json.Marshal(unlockMeta{
		Depth:            in.Session.Depth,
		InteractionCount: in.Session.Metadata.InteractionCount,
	})
	if err != nil {
		return nil, fmt.Errorf("encode achievement metadata: %w", err)
	}

	unlocked := []string{}
	for _, r := range rules {
		if have[r.Code] || !r.Check(in) {
			continue
		}
		created, err := e.store.PutAchievement(ctx, &model.Achievement{
			Code:      r.Code,
			SessionID: in.Session.ID,
			Metadata:  string(meta),
			CreatedAt: in.Now,
		})
		if err != nil {
			e.logger.Warn("record achievement failed",
				zap.String("session", in.Session.ID),
				zap.String("code", r.Code),
				zap.Error(err))
			continue
		}
		if !created {
			continue
		}
		e.logger.Info("achievement unlocked",
			zap.String("session", in.Session.ID),
			zap.String("code", r.Code))
		unlocked = append(unlocked, r.Code)
	}
	return unlocked, nil
}
