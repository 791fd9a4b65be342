package domain

// SessionPhase is the lifecycle phase of one payment session.
type SessionPhase string

const (
	PhaseIdle       SessionPhase = "idle"
	PhasePending    SessionPhase = "pending"
	PhaseProcessing SessionPhase = "processing"
	PhaseCompleted  SessionPhase = "completed"
	PhaseTimedOut   SessionPhase = "timed_out"
	PhaseFailed     SessionPhase = "failed"
)

// allowedTransitions lists every forward edge. Terminal phases have none.
var allowedTransitions = map[SessionPhase][]SessionPhase{
	PhaseIdle:       {PhasePending, PhaseFailed},
	PhasePending:    {PhaseProcessing, PhaseCompleted, PhaseTimedOut, PhaseFailed},
	PhaseProcessing: {PhaseCompleted, PhaseTimedOut, PhaseFailed},
}

func (p SessionPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseTimedOut || p == PhaseFailed
}

// CanTransition reports whether from -> to is an edge of the lifecycle table.
// Self-transitions are never allowed, which makes duplicate signals no-ops.
func CanTransition(from, to SessionPhase) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PricingLock tells whether the fiat amount still drives the settlement amount.
type PricingLock string

const (
	PricingEditable PricingLock = "editable"
	PricingLocked   PricingLock = "locked"
)

type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeTimeout NoticeKind = "timeout"
	NoticeSuccess NoticeKind = "success"
)

// Notice is the user-visible message attached to a session.
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	Message     string     `json:"message"`
	Dismissible bool       `json:"dismissible"`
}
