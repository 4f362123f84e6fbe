package packgate

import "time"

// ContextPack is the final, budget-compliant bundle of content handed to a
// worker. Packs are immutable after emission: a retry or auto-fix produces a
// successor version, it never patches an existing pack in place. That makes
// a pack trivially safe to hand to concurrent readers.
//
// Hard guarantee: TotalTokens <= Budget, and SectionTotals[s] <= cap for
// every capped section. The packer re-verifies this postcondition before
// emitting; a violation is a defect (see BudgetViolationError), never a
// best-effort outcome.
type ContextPack struct {
	// TaskID identifies the task this pack was curated for.
	TaskID string

	// Version is the pack version, starting at 1. Each recuration or
	// auto-fix emits Version+1.
	Version int

	// Items are the admitted items in admission order.
	Items []PackItem

	// TotalTokens is the sum of item sizes.
	TotalTokens int

	// Budget is the global token budget the pack was built against.
	Budget int

	// SectionCaps are the per-section caps that applied (absent = unbounded).
	SectionCaps map[string]int

	// SectionTotals maps section tag to admitted tokens for that section.
	SectionTotals map[string]int

	// Utilization is TotalTokens / Budget, or 0 when Budget is 0.
	Utilization float64

	// CreatedAt is when the pack was emitted.
	CreatedAt time.Time
}

// CheckBudget verifies the pack's hard budget invariants. A non-nil return
// is always a *BudgetViolationError and indicates a bug in the packer, not
// a user error.
func (p *ContextPack) CheckBudget() error {
	if p.TotalTokens > p.Budget {
		return &BudgetViolationError{
			TaskID:      p.TaskID,
			PackVersion: p.Version,
			Budget:      p.Budget,
			TotalTokens: p.TotalTokens,
		}
	}
	for section, limit := range p.SectionCaps {
		if p.SectionTotals[section] > limit {
			return &BudgetViolationError{
				TaskID:       p.TaskID,
				PackVersion:  p.Version,
				Budget:       p.Budget,
				TotalTokens:  p.TotalTokens,
				Section:      section,
				SectionCap:   limit,
				SectionTotal: p.SectionTotals[section],
			}
		}
	}
	return nil
}

// Contains reports whether the pack admitted an item with the given ID.
func (p *ContextPack) Contains(id string) bool {
	for _, item := range p.Items {
		if item.ItemID() == id {
			return true
		}
	}
	return false
}
