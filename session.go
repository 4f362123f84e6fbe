package packgate

import "time"

// Phase is a session's position in the cognitive state machine. Escalation
// is monotonic toward more severe phases; relaxation happens one step at a
// time after consecutive clean checks, never as a jump.
type Phase int

const (
	// PhaseOK is the initial phase: no violations observed.
	PhaseOK Phase = iota

	// PhaseWarn is logged only; the worker is nudged, not interrupted.
	PhaseWarn

	// PhaseSoft blocks the next critical operation pending bounded
	// automatic correction.
	PhaseSoft

	// PhaseHard blocks all further operations until an explicit retry
	// with a revised pack.
	PhaseHard

	// PhaseRescue is terminal for the session. Automatic correction is
	// disabled; only a fresh curation pass restarts work, at PhaseOK, in
	// a new session.
	PhaseRescue
)

// String returns the phase's wire name.
func (p Phase) String() string {
	switch p {
	case PhaseOK:
		return "ok"
	case PhaseWarn:
		return "warn"
	case PhaseSoft:
		return "soft"
	case PhaseHard:
		return "hard"
	case PhaseRescue:
		return "rescue"
	}
	return "unknown"
}

// Transition records one state machine transition for the session history.
type Transition struct {
	// From and To are the phases before and after the transition.
	From Phase
	To   Phase

	// Reason explains the transition.
	Reason string

	// SignalID is the ID of the signal that caused it, empty for
	// transitions not driven by a signal (cancellation, retry).
	SignalID string

	// At is when the transition happened.
	At time.Time
}

// SessionState is the single mutable entity in the system. It is owned
// exclusively by the cognitive state machine; every other component only
// reads snapshots of it or submits signals. Loss of session state on crash
// forces the session to PhaseRescue on resume - no other component needs
// persistence for correctness.
type SessionState struct {
	// ID identifies the session.
	ID string

	// Current is the session's phase.
	Current Phase

	// History is the ordered list of transitions taken so far.
	History []Transition

	// Profile names the active thresholds profile (e.g. "conservative").
	Profile string

	// CleanStreak counts consecutive clean checks since the last
	// violation, used to decide one-step relaxation.
	CleanStreak int
}
