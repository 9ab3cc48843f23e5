package orchestrator

// Observer receives one-way notifications for rendering and audio consumers.
// Calls happen while the session is locked; implementations must not call
// back into the Orchestrator for the same session.
type Observer interface {
	OnStep(Snapshot)
	OnUnlock(sessionID string, codes []string)
}

type nopObserver struct{}

func (nopObserver) OnStep(Snapshot)           {}
func (nopObserver) OnUnlock(string, []string) {}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Step   func(Snapshot)
	Unlock func(sessionID string, codes []string)
}

func (f ObserverFuncs) OnStep(s Snapshot) {
	if f.Step != nil {
		f.Step(s)
	}
}

func (f ObserverFuncs) OnUnlock(sessionID string, codes []string) {
	if f.Unlock != nil {
		f.Unlock(sessionID, codes)
	}
}
