package cognition

import (
	"context"
	"fmt"
	"testing"

	"github.com/packgate/packgate"
	"github.com/packgate/packgate/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thresholds() packgate.Thresholds {
	return packgate.DefaultConfig().Thresholds() // relax after 3 clean checks
}

var signalSeq int

func sig(severity packgate.Severity) packgate.DriftSignal {
	signalSeq++
	return packgate.DriftSignal{
		ID:        fmt.Sprintf("sig-%d", signalSeq),
		SessionID: "s1",
		Kind:      packgate.SignalDrift,
		Severity:  severity,
		Reason:    "test signal",
	}
}

func clean() packgate.DriftSignal {
	s := sig(packgate.SeverityInfo)
	s.Kind = packgate.SignalClean
	return s
}

func global(kind packgate.SignalKind) packgate.DriftSignal {
	s := sig(packgate.SeverityHard)
	s.Kind = kind
	s.Global = true
	return s
}

func TestMachine_MonotonicEscalation(t *testing.T) {
	m := New("s1", thresholds())

	m.HandleSignal(sig(packgate.SeverityWarn))
	assert.Equal(t, packgate.PhaseWarn, m.State().Current)

	m.HandleSignal(sig(packgate.SeveritySoft))
	assert.Equal(t, packgate.PhaseSoft, m.State().Current)

	// A later warn never de-escalates.
	m.HandleSignal(sig(packgate.SeverityWarn))
	assert.Equal(t, packgate.PhaseSoft, m.State().Current)

	m.HandleSignal(sig(packgate.SeverityHard))
	assert.Equal(t, packgate.PhaseHard, m.State().Current)
}

func TestMachine_RelaxationOneStepAtATime(t *testing.T) {
	m := New("s1", thresholds())
	m.HandleSignal(sig(packgate.SeveritySoft))
	require.Equal(t, packgate.PhaseSoft, m.State().Current)

	// Two clean checks are not enough.
	m.HandleSignal(clean())
	m.HandleSignal(clean())
	assert.Equal(t, packgate.PhaseSoft, m.State().Current)

	// The third relaxes exactly one step, never a jump to OK.
	m.HandleSignal(clean())
	assert.Equal(t, packgate.PhaseWarn, m.State().Current)

	// The streak resets: three more cleans reach OK.
	m.HandleSignal(clean())
	m.HandleSignal(clean())
	assert.Equal(t, packgate.PhaseWarn, m.State().Current)
	m.HandleSignal(clean())
	assert.Equal(t, packgate.PhaseOK, m.State().Current)
}

func TestMachine_ViolationResetsCleanStreak(t *testing.T) {
	m := New("s1", thresholds())
	m.HandleSignal(sig(packgate.SeverityWarn))
	m.HandleSignal(clean())
	m.HandleSignal(clean())
	m.HandleSignal(sig(packgate.SeverityWarn))

	// The streak restarted, so two cleans must not relax.
	m.HandleSignal(clean())
	m.HandleSignal(clean())
	assert.Equal(t, packgate.PhaseWarn, m.State().Current)
}

func TestMachine_HardDoesNotRelaxOnCleanChecks(t *testing.T) {
	m := New("s1", thresholds())
	m.HandleSignal(sig(packgate.SeverityHard))

	for i := 0; i < 10; i++ {
		m.HandleSignal(clean())
	}
	assert.Equal(t, packgate.PhaseHard, m.State().Current,
		"only an explicit retry leaves HARD")
}

func TestMachine_IdempotentDelivery(t *testing.T) {
	m := New("s1", thresholds())
	s := sig(packgate.SeverityWarn)

	m.HandleSignal(s)
	m.HandleSignal(s) // re-delivered

	state := m.State()
	assert.Equal(t, packgate.PhaseWarn, state.Current)
	assert.Len(t, state.History, 1, "duplicate delivery never double-penalizes")
}

func TestMachine_SectionLocalResolution(t *testing.T) {
	m := New("s1", thresholds())

	s := sig(packgate.SeverityWarn)
	s.Section = "docs"
	decision := m.HandleSignal(s)

	assert.Equal(t, packgate.ActionNudge, decision.Action)
	assert.Equal(t, "docs", decision.Scope)
	assert.Equal(t, packgate.PhaseOK, m.State().Current,
		"section-local signals do not escalate session state")
	assert.Equal(t, packgate.PhaseWarn, m.SectionPhase("docs"))

	soft := sig(packgate.SeveritySoft)
	soft.Section = "docs"
	decision = m.HandleSignal(soft)
	assert.Equal(t, packgate.ActionSoftBlock, decision.Action)
	assert.Equal(t, packgate.PhaseOK, m.State().Current)
}

func TestMachine_SectionHardEscalatesSession(t *testing.T) {
	m := New("s1", thresholds())

	s := sig(packgate.SeverityHard)
	s.Section = "docs"
	decision := m.HandleSignal(s)

	assert.Equal(t, packgate.ActionHardBlock, decision.Action)
	assert.Equal(t, packgate.PhaseHard, m.State().Current)
}

// A global rule violation short-circuits past any section-level state.
func TestMachine_GlobalViolationBypassesSections(t *testing.T) {
	m := New("s1", thresholds())

	warn := sig(packgate.SeverityWarn)
	warn.Section = "docs"
	m.HandleSignal(warn)
	require.Equal(t, packgate.PhaseOK, m.State().Current)

	decision := m.HandleSignal(global(packgate.SignalForbiddenOp))
	assert.Equal(t, packgate.PhaseHard, m.State().Current)
	assert.Equal(t, packgate.ActionHardBlock, decision.Action)

	// A second global violation while HARD escalates to RESCUE.
	decision = m.HandleSignal(global(packgate.SignalScopeWrite))
	assert.Equal(t, packgate.PhaseRescue, m.State().Current)
	assert.Equal(t, packgate.ActionRescue, decision.Action)
}

func TestMachine_ResolveTieBreak(t *testing.T) {
	tests := []struct {
		name    string
		signals []packgate.DriftSignal
		want    packgate.Phase
		span    bool
	}{
		{
			name: "highest severity wins",
			signals: []packgate.DriftSignal{
				sig(packgate.SeverityWarn),
				sig(packgate.SeveritySoft),
			},
			want: packgate.PhaseSoft,
		},
		{
			name: "equal severity, span wins",
			signals: []packgate.DriftSignal{
				sig(packgate.SeverityWarn),
				func() packgate.DriftSignal {
					s := sig(packgate.SeverityWarn)
					s.Span = &packgate.Span{Start: 10, End: 20, Excerpt: "off"}
					return s
				}(),
			},
			want: packgate.PhaseWarn,
			span: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := New("s1", thresholds())
			decision := m.Resolve(tc.signals)
			assert.Equal(t, tc.want, m.State().Current)
			if tc.span {
				require.NotNil(t, decision.Span)
				assert.Equal(t, "off", decision.Span.Excerpt)
			}
		})
	}
}

func TestMachine_ResolveMarksLosersConsumed(t *testing.T) {
	m := New("s1", thresholds())
	loser := sig(packgate.SeverityWarn)
	winner := sig(packgate.SeveritySoft)

	m.Resolve([]packgate.DriftSignal{loser, winner})
	historyLen := len(m.State().History)

	// Re-delivering the losing signal must not transition anything.
	m.HandleSignal(loser)
	assert.Len(t, m.State().History, historyLen)
}

func TestMachine_CancelTransitionsToRescue(t *testing.T) {
	m := New("s1", thresholds())
	m.HandleSignal(sig(packgate.SeverityWarn))

	decision := m.Cancel("operator abort")

	state := m.State()
	assert.Equal(t, packgate.PhaseRescue, state.Current)
	assert.Equal(t, packgate.ActionRescue, decision.Action)
	require.NotEmpty(t, state.History)
	last := state.History[len(state.History)-1]
	assert.Equal(t, packgate.PhaseWarn, last.From)
	assert.Equal(t, packgate.PhaseRescue, last.To)
	assert.Contains(t, last.Reason, "operator abort")
}

func TestMachine_RetryWithPack(t *testing.T) {
	t.Run("hard resumes to OK", func(t *testing.T) {
		m := New("s1", thresholds())
		m.HandleSignal(sig(packgate.SeverityHard))

		require.NoError(t, m.RetryWithPack(2))
		state := m.State()
		assert.Equal(t, packgate.PhaseOK, state.Current)

		last := state.History[len(state.History)-1]
		assert.Contains(t, last.Reason, "pack v2",
			"retried pack version is recorded in the transition")
	})

	t.Run("rescue cannot retry", func(t *testing.T) {
		m := New("s1", thresholds())
		m.Cancel("gone")

		assert.ErrorIs(t, m.RetryWithPack(2), packgate.ErrSessionRescued)
	})
}

func TestMachine_RescueIsTerminal(t *testing.T) {
	m := New("s1", thresholds())
	m.Cancel("done for")

	decision := m.HandleSignal(sig(packgate.SeverityWarn))
	assert.Equal(t, packgate.ActionRescue, decision.Action)
	assert.Equal(t, packgate.PhaseRescue, m.State().Current)
	for i := 0; i < 5; i++ {
		m.HandleSignal(clean())
	}
	assert.Equal(t, packgate.PhaseRescue, m.State().Current)
}

func TestMachine_RunConsumesBusInOrder(t *testing.T) {
	b := bus.New()
	defer b.Close()

	// Publishing first creates the session queue, so Run's subscription
	// receives the buffered signals in publish order.
	b.Publish(sig(packgate.SeverityWarn))
	b.Publish(sig(packgate.SeveritySoft))

	m := New("s1", thresholds()).WithBus(b)
	decisions := make(chan packgate.ControlDecision, 8)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx, decisions)
	}()

	first := <-decisions
	second := <-decisions
	assert.Equal(t, packgate.ActionNudge, first.Action)
	assert.Equal(t, packgate.ActionSoftBlock, second.Action)

	// Cancellation transitions to RESCUE and ends the loop.
	cancel()
	final := <-decisions
	<-done
	assert.Equal(t, packgate.ActionRescue, final.Action)
	assert.Equal(t, packgate.PhaseRescue, m.State().Current)
}
