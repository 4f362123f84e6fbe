package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/packgate/packgate"
	"github.com/packgate/packgate/bus"
	"github.com/packgate/packgate/expect"
)

// Milestone names the fixed checkpoints at which a check always runs,
// independent of the adaptive window.
type Milestone string

const (
	// MilestoneBeforeStart runs before the worker produces any output.
	MilestoneBeforeStart Milestone = "before_start"

	// MilestoneMidExecution is the harness-chosen mid-point check.
	MilestoneMidExecution Milestone = "mid_execution"

	// MilestoneBeforeCommit runs before any output commit.
	MilestoneBeforeCommit Milestone = "before_commit"

	// MilestoneAfterCompletion runs after the worker finishes.
	MilestoneAfterCompletion Milestone = "after_completion"
)

// Monitor samples a running worker's output, scores it against the
// expectation cache, and publishes DriftSignals on the event bus. It is an
// independent observer: it never blocks the worker's execution thread, and
// pausing is only ever requested through the state machine's decisions.
//
// # Adaptive window
//
// Checks run whenever the tokens observed since the last check reach the
// current interval. The interval starts at the configured base, halves
// after any warning-or-worse signal (floored at the minimum), and relaxes
// by half steps toward the ceiling after clean checks. Overhead stays
// bounded while scrutiny tightens exactly when risk is elevated.
//
// # Example
//
//	obs := monitor.New(sessionID, ns, cache, b).
//	    WithThresholds(cfg.Thresholds()).
//	    WithWindow(cfg.Window).
//	    WithAllowlist("read", "search").
//	    WithWriteScope("src/", "docs/")
//
//	obs.Milestone(ctx, monitor.MilestoneBeforeStart)
//	obs.Observe(ctx, chunk) // for each output chunk
type Monitor struct {
	sessionID  string
	ns         expect.Namespace
	cache      *expect.Cache
	bus        *bus.Bus
	thresholds packgate.Thresholds
	window     packgate.WindowConfig
	counter    packgate.TokenCounter
	allowlist  map[string]bool
	writeScope []string

	mu         sync.Mutex
	interval   int
	sinceCheck int
	offset     int
	pending    strings.Builder
	seq        int
}

// New creates a Monitor for one session, scoring against the given pack
// namespace. Defaults: conservative thresholds, the default window, and
// the heuristic token counter.
func New(
	sessionID string,
	ns expect.Namespace,
	cache *expect.Cache,
	b *bus.Bus,
) *Monitor {
	cfg := packgate.DefaultConfig()
	return &Monitor{
		sessionID:  sessionID,
		ns:         ns,
		cache:      cache,
		bus:        b,
		thresholds: cfg.Thresholds(),
		window:     cfg.Window,
		counter:    packgate.NewHeuristicCounter(),
		interval:   cfg.Window.Base,
	}
}

// WithThresholds sets the active thresholds profile.
func (m *Monitor) WithThresholds(t packgate.Thresholds) *Monitor {
	m.thresholds = t
	return m
}

// WithWindow sets the adaptive window configuration and resets the current
// interval to its base.
func (m *Monitor) WithWindow(w packgate.WindowConfig) *Monitor {
	m.window = w
	m.interval = w.Base
	return m
}

// WithCounter sets the token counter used for offsets and window
// accounting.
func (m *Monitor) WithCounter(counter packgate.TokenCounter) *Monitor {
	if counter != nil {
		m.counter = counter
	}
	return m
}

// WithAllowlist sets the critical operations the worker may perform.
// With no allowlist configured, CriticalOp only runs a drift check.
func (m *Monitor) WithAllowlist(ops ...string) *Monitor {
	m.allowlist = make(map[string]bool, len(ops))
	for _, op := range ops {
		m.allowlist[op] = true
	}
	return m
}

// WithWriteScope sets the path prefixes the worker may write under.
func (m *Monitor) WithWriteScope(prefixes ...string) *Monitor {
	m.writeScope = prefixes
	return m
}

// Interval returns the current adaptive check interval in tokens.
func (m *Monitor) Interval() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Offset returns the total tokens of worker output observed so far.
func (m *Monitor) Offset() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

// Observe feeds a chunk of worker output to the monitor. When the tokens
// accumulated since the last check reach the adaptive interval, a check
// runs and its signal is published. Observe never blocks on the consumer.
func (m *Monitor) Observe(ctx context.Context, chunk string) {
	m.mu.Lock()
	tokens := m.counter.Count(chunk)
	m.offset += tokens
	m.sinceCheck += tokens
	m.pending.WriteString(chunk)
	due := m.sinceCheck >= m.interval
	m.mu.Unlock()

	if due {
		m.check(ctx, "window")
	}
}

// Milestone forces a check at one of the four fixed milestones.
func (m *Monitor) Milestone(ctx context.Context, milestone Milestone) {
	m.check(ctx, string(milestone))
}

// CriticalOp checks before an operation tagged critical (write, execute,
// network-affecting). An operation outside the allowlist publishes an
// immediate global hard signal - forbidden operations are never
// auto-corrected. Allowed operations still force a drift check.
func (m *Monitor) CriticalOp(ctx context.Context, op string) {
	if m.allowlist != nil && !m.allowlist[op] {
		m.publishViolation(
			packgate.SignalForbiddenOp,
			fmt.Sprintf("critical operation %q is outside the allowlist", op),
		)
		return
	}
	m.check(ctx, "critical:"+op)
}

// CriticalWrite checks a write against the configured scope. Writes outside
// every scope prefix publish an immediate global hard signal.
func (m *Monitor) CriticalWrite(ctx context.Context, path string) {
	if len(m.writeScope) > 0 {
		inScope := false
		for _, prefix := range m.writeScope {
			if strings.HasPrefix(path, prefix) {
				inScope = true
				break
			}
		}
		if !inScope {
			m.publishViolation(
				packgate.SignalScopeWrite,
				fmt.Sprintf("write to %q is outside the task scope", path),
			)
			return
		}
	}
	m.check(ctx, "critical:write")
}

// check scores the output accumulated since the last check and publishes
// the resulting signal.
func (m *Monitor) check(ctx context.Context, trigger string) {
	m.mu.Lock()
	sample := m.pending.String()
	m.pending.Reset()
	m.sinceCheck = 0
	offset := m.offset
	m.mu.Unlock()

	if strings.TrimSpace(sample) == "" {
		m.publishClean(offset, trigger+": no output to score")
		return
	}
	if _, ok := m.cache.BestMatch(m.ns, expect.KindAcceptance, sample); !ok {
		m.publishClean(offset, trigger+": no expectations recorded")
		return
	}

	fidelity, _ := m.cache.Similarity(ctx, m.ns, expect.KindAcceptance, sample)
	evidence, _ := m.cache.Similarity(ctx, m.ns, expect.KindConstraint, sample)
	drift := 1 - fidelity

	// The evidence floor only binds when constraint fingerprints exist. A
	// task with none would otherwise score 0 coverage on every check and
	// the window could never relax.
	_, hasConstraints := m.cache.BestMatch(m.ns, expect.KindConstraint, sample)

	sig := packgate.DriftSignal{
		SessionID:        m.sessionID,
		TokenOffset:      offset,
		DriftScore:       drift,
		Fidelity:         fidelity,
		EvidenceCoverage: evidence,
		Timestamp:        time.Now(),
	}

	t := m.thresholds
	switch {
	case fidelity < t.FidelityFloor:
		sig.Kind = packgate.SignalFidelityCollapse
		sig.Severity = packgate.SeverityHard
		sig.Global = true
		sig.Reason = fmt.Sprintf(
			"%s: fidelity %.2f below absolute floor %.2f",
			trigger, fidelity, t.FidelityFloor,
		)
	case drift >= t.DriftHard:
		sig.Kind = packgate.SignalDrift
		sig.Severity = packgate.SeverityHard
		sig.Reason = fmt.Sprintf(
			"%s: drift %.2f at or above hard threshold %.2f",
			trigger, drift, t.DriftHard,
		)
	case drift >= t.DriftSoft:
		sig.Kind = packgate.SignalDrift
		sig.Severity = packgate.SeveritySoft
		sig.Reason = fmt.Sprintf(
			"%s: drift %.2f at or above soft threshold %.2f",
			trigger, drift, t.DriftSoft,
		)
	case drift >= t.DriftWarn || (hasConstraints && evidence < t.EvidenceMin):
		sig.Kind = packgate.SignalDrift
		sig.Severity = packgate.SeverityWarn
		sig.Reason = fmt.Sprintf(
			"%s: drift %.2f, evidence coverage %.2f",
			trigger, drift, evidence,
		)
	default:
		m.adjustInterval(false)
		sig.Kind = packgate.SignalClean
		sig.Severity = packgate.SeverityInfo
		sig.Reason = trigger + ": clean"
		sig.ID = m.nextID()
		m.bus.Publish(sig)
		return
	}

	if best, ok := m.cache.BestMatch(m.ns, expect.KindAcceptance, sample); ok {
		sig.Span = offendingSpan(sample, best.Text)
	}
	m.adjustInterval(true)
	sig.ID = m.nextID()
	m.bus.Publish(sig)
}

// publishViolation emits a global hard signal for a policy violation,
// bypassing scoring entirely.
func (m *Monitor) publishViolation(kind packgate.SignalKind, reason string) {
	m.mu.Lock()
	offset := m.offset
	m.mu.Unlock()
	m.adjustInterval(true)
	m.bus.Publish(packgate.DriftSignal{
		ID:          m.nextID(),
		SessionID:   m.sessionID,
		Kind:        kind,
		Severity:    packgate.SeverityHard,
		TokenOffset: offset,
		DriftScore:  1,
		Global:      true,
		Reason:      reason,
		Timestamp:   time.Now(),
	})
}

func (m *Monitor) publishClean(offset int, reason string) {
	m.adjustInterval(false)
	m.bus.Publish(packgate.DriftSignal{
		ID:          m.nextID(),
		SessionID:   m.sessionID,
		Kind:        packgate.SignalClean,
		Severity:    packgate.SeverityInfo,
		TokenOffset: offset,
		Reason:      reason,
		Timestamp:   time.Now(),
	})
}

// adjustInterval halves the window after a violation (floored at min) and
// relaxes it by a half step toward the ceiling after a clean check.
func (m *Monitor) adjustInterval(violation bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if violation {
		m.interval /= 2
		if m.interval < m.window.Min {
			m.interval = m.window.Min
		}
		return
	}
	m.interval += m.interval / 2
	if m.window.Max > 0 && m.interval > m.window.Max {
		m.interval = m.window.Max
	}
}

func (m *Monitor) nextID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return fmt.Sprintf("%s#%d", m.sessionID, m.seq)
}
