package packgate

import (
	"errors"
	"fmt"
)

// BudgetViolationError reports a context pack that exceeds its token budget
// or a section cap. The packer's postcondition forbids this, so any
// occurrence is a defect: it aborts the curation request and must be logged,
// never swallowed. Drift and policy issues are NOT errors - they travel
// through the state machine's signal vocabulary instead.
type BudgetViolationError struct {
	TaskID      string
	PackVersion int
	Budget      int
	TotalTokens int

	// Section fields are set when a section cap (rather than the global
	// budget) was violated.
	Section      string
	SectionCap   int
	SectionTotal int
}

func (e *BudgetViolationError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf(
			"pack %s v%d: section %q total %d exceeds cap %d",
			e.TaskID, e.PackVersion, e.Section, e.SectionTotal, e.SectionCap,
		)
	}
	return fmt.Sprintf(
		"pack %s v%d: total %d tokens exceeds budget %d",
		e.TaskID, e.PackVersion, e.TotalTokens, e.Budget,
	)
}

// MalformedCandidateError reports a corrupted or invalid candidate record in
// the scanner feed. Like BudgetViolationError it is a defect: the curation
// request that contains it is aborted.
type MalformedCandidateError struct {
	// ID is the candidate ID if one could be read.
	ID string

	// Reason describes what was wrong with the record.
	Reason string
}

func (e *MalformedCandidateError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed candidate: %s", e.Reason)
	}
	return fmt.Sprintf("malformed candidate %q: %s", e.ID, e.Reason)
}

// ErrCacheUnavailable indicates the durable expectation store is
// unreachable. The cache degrades to fast-tier-only operation and the
// session continues; callers observe the condition via Cache.Degraded.
var ErrCacheUnavailable = errors.New("durable expectation store unavailable")

// ErrSessionRescued indicates an operation was attempted on a session whose
// state machine reached RESCUE. RESCUE is terminal: only a fresh curation
// pass (a new session) can resume work.
var ErrSessionRescued = errors.New("session is in rescue state")
