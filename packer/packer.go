package packer

import (
	"sort"
	"time"

	"github.com/packgate/packgate"
)

// Packer selects a budget-compliant subset of items by greedy value
// density. This is a fractional-knapsack approximation, not an exact 0/1
// optimum: exactness is NP-hard, and callers only rely on the hard budget
// guarantee plus reasonable value density.
//
// Items are atomic - a rejected item is dropped, never partially included.
// Truncation is the compressor's job, applied upstream.
//
// # Determinism
//
// Items are sorted by density descending with a stable sort, so equal
// densities keep their input order and identical inputs always produce the
// same pack.
type Packer struct{}

// New creates a Packer.
func New() *Packer {
	return &Packer{}
}

// Pack admits items in density order while the global budget and every
// per-section cap hold. An absent section cap means unbounded.
//
// Edge cases: a zero budget yields an empty pack with utilization 0 - not
// an error. An item whose size alone exceeds the budget is skipped. A pack
// with zero admitted items is valid.
//
// The budget postcondition is re-verified before returning; a violation is
// a defect surfaced as *packgate.BudgetViolationError.
func (p *Packer) Pack(
	items []packgate.PackItem,
	budget int,
	sectionCaps map[string]int,
) (*packgate.ContextPack, error) {
	ordered := make([]packgate.PackItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(a, b int) bool {
		return density(ordered[a]) > density(ordered[b])
	})

	pack := &packgate.ContextPack{
		Budget:        budget,
		SectionCaps:   cloneCaps(sectionCaps),
		SectionTotals: make(map[string]int),
		CreatedAt:     time.Now(),
	}

	for _, item := range ordered {
		size := item.TokenSize()
		if size < 0 {
			continue
		}
		if pack.TotalTokens+size > budget {
			continue
		}
		if limit, capped := sectionCaps[item.SectionTag()]; capped {
			if pack.SectionTotals[item.SectionTag()]+size > limit {
				continue
			}
		}
		pack.Items = append(pack.Items, item)
		pack.TotalTokens += size
		pack.SectionTotals[item.SectionTag()] += size
	}

	if budget > 0 {
		pack.Utilization = float64(pack.TotalTokens) / float64(budget)
	}

	if err := pack.CheckBudget(); err != nil {
		// Unreachable unless the admission loop above is broken; treat
		// as fatal rather than emitting a violating pack.
		return nil, err
	}
	return pack, nil
}

// density is the greedy sort key: score per token, with a floor of one
// token so free items do not divide by zero.
func density(item packgate.PackItem) float64 {
	size := item.TokenSize()
	if size < 1 {
		size = 1
	}
	return item.PackScore() / float64(size)
}

func cloneCaps(caps map[string]int) map[string]int {
	if caps == nil {
		return nil
	}
	out := make(map[string]int, len(caps))
	for k, v := range caps {
		out[k] = v
	}
	return out
}
