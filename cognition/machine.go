package cognition

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/packgate/packgate"
	"github.com/packgate/packgate/bus"
)

// Machine is the cognitive state machine: the single authority over a
// session's state. It consumes drift signals (from the monitor and the
// packer's validation step) and decides whether the worker continues, is
// nudged, soft-blocked, hard-blocked, or rescued.
//
// # State model
//
// Phases escalate monotonically OK → WARN → SOFT → HARD → RESCUE on
// violations. Relaxation happens one step at a time after
// CleanChecksToRelax consecutive clean checks - never a jump from HARD
// back to OK. RESCUE is terminal: the session needs a fresh curation pass.
// HARD additionally requires an explicit RetryWithPack with a revised pack
// before the session may run again.
//
// # Hierarchical resolution
//
// The decision policy is a tree, not a flat broadcast. A signal scoped to
// a pack section is resolved at the section level - it produces a scoped
// nudge or soft block and updates the section ledger without escalating
// session state. Only signals that violate a global rule (forbidden
// operation, out-of-scope write, fidelity collapse) short-circuit straight
// to HARD - or to RESCUE when the session is already at HARD - regardless
// of any section-level state. Section-local signals of hard severity also
// escalate the session: localized damage is still damage.
//
// # Delivery semantics
//
// Signals are consumed at most once per ID: a re-delivered ID is ignored
// without a transition, so idempotent re-delivery never double-penalizes.
// When several signals arrive concurrently, Resolve picks the winner by
// highest severity; on equal severity the signal carrying a concrete
// offending-span reference wins over one without.
type Machine struct {
	mu         sync.Mutex
	state      packgate.SessionState
	thresholds packgate.Thresholds
	bus        *bus.Bus
	seen       map[string]struct{}
	sections   map[string]packgate.Phase
}

// New creates a Machine for the session in PhaseOK.
func New(sessionID string, thresholds packgate.Thresholds) *Machine {
	if thresholds.CleanChecksToRelax < 1 {
		thresholds.CleanChecksToRelax = 1
	}
	return &Machine{
		state: packgate.SessionState{
			ID:      sessionID,
			Current: packgate.PhaseOK,
		},
		thresholds: thresholds,
		seen:       make(map[string]struct{}),
		sections:   make(map[string]packgate.Phase),
	}
}

// WithBus attaches the event bus Run consumes from.
func (m *Machine) WithBus(b *bus.Bus) *Machine {
	m.bus = b
	return m
}

// WithProfile records the active thresholds profile name on the session
// state, for observability.
func (m *Machine) WithProfile(name string) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Profile = name
	return m
}

// Run consumes the session's signals from the bus in publish order until
// the bus closes the session or ctx is cancelled, sending each resulting
// decision to decisions (if non-nil). Context cancellation transitions the
// session to RESCUE with a recorded reason - cancellation never bypasses
// the history log.
func (m *Machine) Run(
	ctx context.Context,
	decisions chan<- packgate.ControlDecision,
) {
	signals := m.bus.Subscribe(m.state.ID)
	for {
		select {
		case <-ctx.Done():
			d := m.Cancel("context cancelled: " + ctx.Err().Error())
			if decisions != nil {
				decisions <- d
			}
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			d := m.HandleSignal(sig)
			if decisions != nil {
				decisions <- d
			}
		}
	}
}

// HandleSignal applies one signal and returns the resulting decision.
func (m *Machine) HandleSignal(sig packgate.DriftSignal) packgate.ControlDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Current == packgate.PhaseRescue {
		return m.decisionLocked("session is in rescue, awaiting fresh curation", nil, "")
	}
	if sig.ID != "" {
		if _, dup := m.seen[sig.ID]; dup {
			return m.decisionLocked("duplicate signal ignored", nil, "")
		}
		m.seen[sig.ID] = struct{}{}
	}

	if sig.Severity == packgate.SeverityInfo {
		return m.cleanCheckLocked(sig)
	}

	m.state.CleanStreak = 0

	// Global rule violations short-circuit the section tree entirely.
	if sig.Global {
		target := packgate.PhaseHard
		if m.state.Current == packgate.PhaseHard {
			target = packgate.PhaseRescue
		}
		m.escalateLocked(target, sig)
		return m.decisionLocked(sig.Reason, sig.Span, "")
	}

	target := phaseFor(sig.Severity)

	// Section-local signals below hard severity resolve at the section
	// level: scoped decision, no session escalation.
	if sig.Section != "" && sig.Severity < packgate.SeverityHard {
		if target > m.sections[sig.Section] {
			m.sections[sig.Section] = target
		}
		action := packgate.ActionNudge
		if target >= packgate.PhaseSoft {
			action = packgate.ActionSoftBlock
		}
		return packgate.ControlDecision{
			SessionID: m.state.ID,
			Action:    action,
			Phase:     m.state.Current,
			Reason:    sig.Reason,
			Scope:     sig.Section,
			Span:      sig.Span,
		}
	}

	m.escalateLocked(target, sig)
	return m.decisionLocked(sig.Reason, sig.Span, sig.Section)
}

// Resolve applies a batch of concurrently-arrived signals: the winner
// (highest severity, span presence breaking ties) drives the transition;
// the rest are marked consumed so a later re-delivery cannot re-penalize.
func (m *Machine) Resolve(sigs []packgate.DriftSignal) packgate.ControlDecision {
	if len(sigs) == 0 {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.decisionLocked("no signals", nil, "")
	}

	ordered := make([]packgate.DriftSignal, len(sigs))
	copy(ordered, sigs)
	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].Severity != ordered[b].Severity {
			return ordered[a].Severity > ordered[b].Severity
		}
		return ordered[a].Span != nil && ordered[b].Span == nil
	})

	decision := m.HandleSignal(ordered[0])

	m.mu.Lock()
	for _, sig := range ordered[1:] {
		if sig.ID != "" {
			m.seen[sig.ID] = struct{}{}
		}
	}
	m.mu.Unlock()
	return decision
}

// Cancel transitions the session directly to RESCUE with the recorded
// reason. Cancellation is a transition like any other, never an unwind
// that bypasses the history log.
func (m *Machine) Cancel(reason string) packgate.ControlDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Current != packgate.PhaseRescue {
		m.transitionLocked(packgate.PhaseRescue, "cancelled: "+reason, "")
	}
	return m.decisionLocked("cancelled: "+reason, nil, "")
}

// RetryWithPack resumes a hard-blocked session with a revised pack
// version, returning the session to OK. It is the only way out of HARD.
// RESCUE sessions cannot retry: they need a fresh curation pass (a new
// session), so ErrSessionRescued is returned.
func (m *Machine) RetryWithPack(packVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state.Current {
	case packgate.PhaseRescue:
		return packgate.ErrSessionRescued
	case packgate.PhaseHard:
		m.transitionLocked(
			packgate.PhaseOK,
			fmt.Sprintf("explicit retry with pack v%d", packVersion),
			"",
		)
		m.sections = make(map[string]packgate.Phase)
		m.state.CleanStreak = 0
	}
	return nil
}

// State returns a snapshot of the session state.
func (m *Machine) State() packgate.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state
	snapshot.History = make([]packgate.Transition, len(m.state.History))
	copy(snapshot.History, m.state.History)
	return snapshot
}

// SectionPhase returns the section-level phase of one pack section.
func (m *Machine) SectionPhase(section string) packgate.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sections[section]
}

// cleanCheckLocked counts a clean check and relaxes one step when the
// streak is long enough. HARD and RESCUE do not relax on clean checks:
// HARD needs an explicit retry, RESCUE a fresh curation pass.
func (m *Machine) cleanCheckLocked(sig packgate.DriftSignal) packgate.ControlDecision {
	m.state.CleanStreak++
	if m.state.CleanStreak >= m.thresholds.CleanChecksToRelax {
		switch m.state.Current {
		case packgate.PhaseWarn, packgate.PhaseSoft:
			m.transitionLocked(
				m.state.Current-1,
				"consecutive clean checks",
				sig.ID,
			)
			m.state.CleanStreak = 0
		}
		// Section ledgers decay with the same cadence.
		for section, phase := range m.sections {
			if phase > packgate.PhaseOK {
				m.sections[section] = phase - 1
			}
		}
	}
	return m.decisionLocked(sig.Reason, nil, "")
}

// escalateLocked raises the session phase to target if that is an
// escalation; de-escalation never happens on a violation.
func (m *Machine) escalateLocked(target packgate.Phase, sig packgate.DriftSignal) {
	if target > m.state.Current {
		m.transitionLocked(target, sig.Reason, sig.ID)
	}
}

func (m *Machine) transitionLocked(to packgate.Phase, reason, signalID string) {
	m.state.History = append(m.state.History, packgate.Transition{
		From:     m.state.Current,
		To:       to,
		Reason:   reason,
		SignalID: signalID,
		At:       time.Now(),
	})
	m.state.Current = to
}

// decisionLocked renders the session's standing decision for its current
// phase.
func (m *Machine) decisionLocked(reason string, span *packgate.Span, scope string) packgate.ControlDecision {
	return packgate.ControlDecision{
		SessionID: m.state.ID,
		Action:    actionFor(m.state.Current),
		Phase:     m.state.Current,
		Reason:    reason,
		Scope:     scope,
		Span:      span,
	}
}

func phaseFor(severity packgate.Severity) packgate.Phase {
	switch severity {
	case packgate.SeverityWarn:
		return packgate.PhaseWarn
	case packgate.SeveritySoft:
		return packgate.PhaseSoft
	case packgate.SeverityHard:
		return packgate.PhaseHard
	}
	return packgate.PhaseOK
}

func actionFor(phase packgate.Phase) packgate.DecisionAction {
	switch phase {
	case packgate.PhaseWarn:
		return packgate.ActionNudge
	case packgate.PhaseSoft:
		return packgate.ActionSoftBlock
	case packgate.PhaseHard:
		return packgate.ActionHardBlock
	case packgate.PhaseRescue:
		return packgate.ActionRescue
	}
	return packgate.ActionContinue
}
