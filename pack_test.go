package packgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextPack_CheckBudget(t *testing.T) {
	tests := []struct {
		name    string
		pack    ContextPack
		wantErr bool
	}{
		{
			name: "within budget and caps",
			pack: ContextPack{
				TaskID:        "t",
				Budget:        100,
				TotalTokens:   80,
				SectionCaps:   map[string]int{"docs": 50},
				SectionTotals: map[string]int{"docs": 40, "code": 40},
			},
		},
		{
			name: "total over budget",
			pack: ContextPack{
				TaskID:      "t",
				Budget:      100,
				TotalTokens: 120,
			},
			wantErr: true,
		},
		{
			name: "section over cap",
			pack: ContextPack{
				TaskID:        "t",
				Budget:        100,
				TotalTokens:   60,
				SectionCaps:   map[string]int{"docs": 50},
				SectionTotals: map[string]int{"docs": 60},
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pack.CheckBudget()
			if tc.wantErr {
				var verr *BudgetViolationError
				require.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContextPack_Contains(t *testing.T) {
	pack := ContextPack{
		Items: []PackItem{
			ScoredCandidate{Candidate: Candidate{ID: "present"}},
		},
	}

	assert.True(t, pack.Contains("present"))
	assert.False(t, pack.Contains("absent"))
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "ok", PhaseOK.String())
	assert.Equal(t, "warn", PhaseWarn.String())
	assert.Equal(t, "soft", PhaseSoft.String())
	assert.Equal(t, "hard", PhaseHard.String())
	assert.Equal(t, "rescue", PhaseRescue.String())
}

func TestBudgetViolationError_Message(t *testing.T) {
	global := &BudgetViolationError{TaskID: "t", PackVersion: 2, Budget: 100, TotalTokens: 150}
	assert.Contains(t, global.Error(), "150")
	assert.Contains(t, global.Error(), "100")

	section := &BudgetViolationError{
		TaskID: "t", PackVersion: 2,
		Section: "docs", SectionCap: 50, SectionTotal: 70,
	}
	assert.Contains(t, section.Error(), "docs")
}
