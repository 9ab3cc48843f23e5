// Package achievement evaluates a fixed table of milestones over a session
// and the memory graph, recording each one at most once per session.
package achievement

import (
	"strings"
	"time"

	"github.com/rcliao/pattern-memory/internal/graph"
	"github.com/rcliao/pattern-memory/internal/model"
)

// Achievement codes, in evaluation order.
const (
	CodeEchoChamber     = "echo_chamber"
	CodeNoveltySeeker   = "novelty_seeker"
	CodeDeepDiver       = "deep_diver"
	CodeStutter         = "stutter"
	CodePalindrome      = "palindrome"
	CodePatientObserver = "patient_observer"
	CodeWebWeaver       = "web_weaver"
	CodeFadedMemories   = "faded_memories"
	CodeSpeedRunner     = "speed_runner"
	CodeMarathon        = "marathon"
)

// weightEpsilon absorbs float error when comparing against the weight floor.
const weightEpsilon = 1e-9

// Thresholds are the tunable limits of the rule table.
type Thresholds struct {
	EchoRepeats          int           `yaml:"echo_repeats" validate:"gte=2"`
	NoveltyMinEntries    int           `yaml:"novelty_min_entries" validate:"gte=1"`
	NoveltyRatio         float64       `yaml:"novelty_ratio" validate:"gt=0,lte=1"`
	DeepDiverDepth       int           `yaml:"deep_diver_depth" validate:"gte=1"`
	PatientInteractions  int           `yaml:"patient_interactions" validate:"gte=1"`
	WebWeaverConnections int           `yaml:"web_weaver_connections" validate:"gte=1"`
	SpeedRunDepth        int           `yaml:"speed_run_depth" validate:"gte=1"`
	SpeedRunWindow       time.Duration `yaml:"speed_run_window" validate:"gt=0"`
	MarathonInteractions int           `yaml:"marathon_interactions" validate:"gte=1"`
}

// DefaultThresholds returns the standard limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EchoRepeats:          3,
		NoveltyMinEntries:    10,
		NoveltyRatio:         0.8,
		DeepDiverDepth:       10,
		PatientInteractions:  15,
		WebWeaverConnections: 10,
		SpeedRunDepth:        5,
		SpeedRunWindow:       2 * time.Minute,
		MarathonInteractions: 100,
	}
}

// Input is everything a rule may look at.
type Input struct {
	Session      *model.Session
	History      []model.Pattern
	SessionNodes []model.MemoryNode
	AllNodes     []model.MemoryNode
	MinWeight    float64
	Now          time.Time
	Thresholds   Thresholds
}

// Rule is one milestone.
type Rule struct {
	Code        string
	Name        string
	Description string
	Check       func(Input) bool
}

// Info is the listable part of a Rule.
type Info struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var rules = []Rule{
	{CodeEchoChamber, "Echo Chamber", "Return to the same pattern again and again.", echoChamber},
	{CodeNoveltySeeker, "Novelty Seeker", "Keep finding patterns you have not seen this session.", noveltySeeker},
	{CodeDeepDiver, "Deep Diver", "Descend far below the surface.", deepDiver},
	{CodeStutter, "Stutter", "Produce the same pattern twice in a row.", stutter},
	{CodePalindrome, "Palindrome", "Find a pattern that reads the same both ways.", palindrome},
	{CodePatientObserver, "Patient Observer", "Linger at the surface before the first descent.", patientObserver},
	{CodeWebWeaver, "Web Weaver", "Connect your memories into a dense web.", webWeaver},
	{CodeFadedMemories, "Faded Memories", "Let every memory fade to its faintest.", fadedMemories},
	{CodeSpeedRunner, "Speed Runner", "Descend quickly after starting.", speedRunner},
	{CodeMarathon, "Marathon", "Keep going for a very long time.", marathon},
}

// Rules returns the rule table in evaluation order.
func Rules() []Info {
	out := make([]Info, len(rules))
	for i, r := range rules {
		out[i] = Info{Code: r.Code, Name: r.Name, Description: r.Description}
	}
	return out
}

func signatureCounts(history []model.Pattern) map[string]int {
	counts := make(map[string]int, len(history))
	for _, p := range history {
		counts[graph.Signature(p)]++
	}
	return counts
}

func echoChamber(in Input) bool {
	for _, c := range signatureCounts(in.History) {
		if c >= in.Thresholds.EchoRepeats {
			return true
		}
	}
	return false
}

func noveltySeeker(in Input) bool {
	n := len(in.History)
	if n < in.Thresholds.NoveltyMinEntries {
		return false
	}
	unique := len(signatureCounts(in.History))
	return float64(unique)/float64(n) > in.Thresholds.NoveltyRatio
}

func deepDiver(in Input) bool {
	return in.Session.Depth >= in.Thresholds.DeepDiverDepth
}

func stutter(in Input) bool {
	for i := 1; i < len(in.History); i++ {
		if in.History[i].Equal(in.History[i-1]) {
			return true
		}
	}
	return false
}

func palindrome(in Input) bool {
	for _, p := range in.History {
		if len(p) >= 2 && isPalindrome(p) {
			return true
		}
	}
	return false
}

func isPalindrome(p model.Pattern) bool {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		if p[i] != p[j] {
			return false
		}
	}
	return true
}

// patientObserver counts cell interactions made before the first depth advance.
func patientObserver(in Input) bool {
	count := 0
	for _, d := range in.Session.Decisions {
		if strings.HasPrefix(d, model.DecisionDepth) {
			break
		}
		if strings.HasPrefix(d, model.DecisionCell) {
			count++
		}
	}
	return count >= in.Thresholds.PatientInteractions
}

func webWeaver(in Input) bool {
	total := 0
	for _, n := range in.SessionNodes {
		total += len(n.Connections)
	}
	return total >= in.Thresholds.WebWeaverConnections
}

func fadedMemories(in Input) bool {
	if len(in.AllNodes) == 0 {
		return false
	}
	for _, n := range in.AllNodes {
		if n.Weight > in.MinWeight+weightEpsilon {
			return false
		}
	}
	return true
}

func speedRunner(in Input) bool {
	if in.Session.Depth < in.Thresholds.SpeedRunDepth {
		return false
	}
	return in.Now.Sub(in.Session.CreatedAt) <= in.Thresholds.SpeedRunWindow
}

func marathon(in Input) bool {
	return in.Session.Metadata.InteractionCount >= in.Thresholds.MarathonInteractions
}
