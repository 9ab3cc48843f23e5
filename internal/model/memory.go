package model

import (
	"strconv"
	"time"
)

// Decision id prefixes recorded in Session.Decisions.
const (
	DecisionCell  = "cell:"
	DecisionDepth = "depth:"
)

// CellDecision is the decision id for toggling cell i.
func CellDecision(i int) string { return DecisionCell + strconv.Itoa(i) }

// DepthDecision is the decision id for advancing to depth d.
func DepthDecision(d int) string { return DecisionDepth + strconv.Itoa(d) }

// MemoryNode is a persisted, weighted record of one distinct pattern signature.
// DecayedAt is when batch decay last ran over the node; zero if never.
type MemoryNode struct {
	ID           string    `json:"id"`
	Signature    string    `json:"signature"`
	Pattern      Pattern   `json:"pattern"`
	Depth        int       `json:"depth"`
	Weight       float64   `json:"weight"`
	Connections  []string  `json:"connections"`
	LastAccessed time.Time `json:"lastAccessed"`
	SessionID    string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	DecayedAt    time.Time `json:"decayedAt"`
}

// SessionMetadata holds running counters for a session.
type SessionMetadata struct {
	Duration         int64 `json:"duration"` // seconds
	InteractionCount int   `json:"interactionCount"`
	UniquePatterns   int   `json:"uniquePatterns"`
}

// Session is one user run from start to reset.
type Session struct {
	ID          string          `json:"id"`
	Depth       int             `json:"depth"`
	Decisions   []string        `json:"decisions"`
	Patterns    []int           `json:"patterns"`
	Pattern     Pattern         `json:"pattern"`
	Completed   bool            `json:"completed"`
	DecayFactor float64         `json:"decayFactor"`
	Metadata    SessionMetadata `json:"metadata"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// History splits the flattened pattern history into individual patterns.
// A trailing partial chunk is dropped.
func (s *Session) History() []Pattern {
	n := len(s.Pattern)
	if n == 0 {
		return nil
	}
	out := make([]Pattern, 0, len(s.Patterns)/n)
	for i := 0; i+n <= len(s.Patterns); i += n {
		out = append(out, Pattern(s.Patterns[i:i+n]))
	}
	return out
}

// Achievement is a once-only milestone recorded against a session.
type Achievement struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	SessionID string    `json:"sessionId"`
	Metadata  string    `json:"metadata,omitempty"`
	Revealed  bool      `json:"revealed"`
	CreatedAt time.Time `json:"createdAt"`
}
