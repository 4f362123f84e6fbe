package packgate

import "time"

// Severity classifies how serious a drift signal is. Severities are ordered:
// a higher value always dominates a lower one when concurrent signals are
// resolved.
type Severity int

const (
	// SeverityInfo marks informational signals, including clean checks.
	SeverityInfo Severity = iota

	// SeverityWarn is logged and nudges the worker but does not interrupt.
	SeverityWarn

	// SeveritySoft blocks the next critical operation pending a bounded
	// automatic correction.
	SeveritySoft

	// SeverityHard blocks all further operations; resuming requires an
	// explicit retry with a revised pack.
	SeverityHard
)

// String returns the severity's wire name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeveritySoft:
		return "soft"
	case SeverityHard:
		return "hard"
	}
	return "unknown"
}

// SignalKind names what a drift signal is reporting.
type SignalKind string

const (
	// SignalClean reports a check that found no violation.
	SignalClean SignalKind = "clean_check"

	// SignalDrift reports topical drift of worker output away from the
	// pack's expectations.
	SignalDrift SignalKind = "drift"

	// SignalFidelityCollapse reports fidelity below the absolute floor.
	// Always a global rule violation.
	SignalFidelityCollapse SignalKind = "fidelity_collapse"

	// SignalForbiddenOp reports a critical operation outside the
	// allowlist. Always a global rule violation, never auto-corrected.
	SignalForbiddenOp SignalKind = "forbidden_operation"

	// SignalScopeWrite reports a write outside the task's scope.
	// Always a global rule violation.
	SignalScopeWrite SignalKind = "out_of_scope_write"

	// SignalPackRejected reports that pack validation failed during a
	// retry, feeding the packer's validation step into the state machine.
	SignalPackRejected SignalKind = "pack_rejected"
)

// Span locates the offending region of worker output that triggered a
// signal, so a blocked session can be retried in a targeted way.
type Span struct {
	// Start and End are rune offsets into the sampled output.
	Start int
	End   int

	// Excerpt is the offending text itself, possibly shortened.
	Excerpt string
}

// DriftSignal is the message the drift monitor (and the packer's validation
// step) publishes on the event bus. Signals are ephemeral and consumed at
// most once per ID: the state machine ignores re-deliveries of an ID it has
// already processed, so idempotent re-delivery never double-penalizes.
type DriftSignal struct {
	// ID is the idempotency key. Two deliveries with the same ID produce
	// at most one state transition.
	ID string

	// SessionID routes the signal to the owning session's consumer.
	SessionID string

	// Kind names what is being reported.
	Kind SignalKind

	// Severity classifies the signal.
	Severity Severity

	// TokenOffset is the position in the worker's output stream at which
	// the triggering sample ended.
	TokenOffset int

	// DriftScore is 1 - similarity to the acceptance expectations.
	DriftScore float64

	// Fidelity is the similarity to acceptance expectations (coverage of
	// what "done right" looks like).
	Fidelity float64

	// EvidenceCoverage is the similarity to constraint expectations.
	EvidenceCoverage float64

	// Section scopes the signal to a pack section. Empty means the signal
	// applies to the session as a whole.
	Section string

	// Span references the offending output region, nil when none was
	// identified. When two concurrent signals tie on severity, the one
	// carrying a span wins.
	Span *Span

	// Global marks a signal that violates a global rule (forbidden
	// operation, out-of-scope write, fidelity collapse). Global signals
	// bypass section-level resolution entirely.
	Global bool

	// Reason is the human-readable explanation carried into decisions.
	Reason string

	// Timestamp is when the signal was produced.
	Timestamp time.Time
}

// DecisionAction enumerates the control decisions the state machine hands
// to the execution harness.
type DecisionAction string

const (
	// ActionContinue lets the worker proceed unchanged.
	ActionContinue DecisionAction = "continue"

	// ActionNudge asks the harness to inject a corrective message without
	// interrupting execution.
	ActionNudge DecisionAction = "nudge"

	// ActionSoftBlock pauses the next critical operation pending a
	// bounded automatic correction.
	ActionSoftBlock DecisionAction = "soft_block"

	// ActionHardBlock stops all further operations; an explicit retry
	// with a revised pack is required.
	ActionHardBlock DecisionAction = "hard_block"

	// ActionRescue stops everything and demands a fresh curation pass.
	// Automatic correction is disabled.
	ActionRescue DecisionAction = "rescue"
)

// ControlDecision is the state machine's asynchronous verdict after
// consuming signals. A blocking decision always carries a human-readable
// reason plus the offending span (when known) so retries can be targeted.
type ControlDecision struct {
	// SessionID identifies the session the decision applies to.
	SessionID string

	// Action is what the harness should do.
	Action DecisionAction

	// Phase is the session phase after the decision.
	Phase Phase

	// Reason explains the decision in human-readable form.
	Reason string

	// Scope narrows a nudge to a pack section. Empty means session-wide.
	Scope string

	// Span references the offending output, when one was identified.
	Span *Span
}
