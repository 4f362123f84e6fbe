package packgate

import "fmt"

// Candidate is a unit of content eligible for inclusion in a context pack.
// Candidates are produced by an external scanner and are immutable once
// constructed - the curation pipeline reads them, it never mutates them.
type Candidate struct {
	// ID uniquely identifies the candidate within one curation request.
	ID string

	// Content is the raw text of the candidate (file contents, snippet, etc.).
	Content string

	// RawSize is the candidate's size in tokens. If the scanner did not
	// provide a size, the curator fills it in with its TokenCounter.
	RawSize int

	// Relevance is the scanner-assigned relevance score in [0, 1].
	Relevance float64

	// Section tags the candidate with a pack section (e.g. "code", "docs",
	// "tests"). Sections can carry independent token caps during packing.
	Section string

	// Origin is the path or source identifier the candidate came from.
	// The default similarity function uses its path components.
	Origin string
}

// Validate checks the structural invariants a scanner-supplied candidate
// must satisfy. A violation is a defect in the feed, not a recoverable
// condition: the curation request that contains it is aborted.
func (c *Candidate) Validate() error {
	if c.ID == "" {
		return &MalformedCandidateError{Reason: "empty candidate id"}
	}
	if c.Relevance < 0 || c.Relevance > 1 {
		return &MalformedCandidateError{
			ID:     c.ID,
			Reason: fmt.Sprintf("relevance %v outside [0, 1]", c.Relevance),
		}
	}
	if c.RawSize < 0 {
		return &MalformedCandidateError{
			ID:     c.ID,
			Reason: fmt.Sprintf("negative raw size %d", c.RawSize),
		}
	}
	return nil
}

// ScoredCandidate is a Candidate plus the diversity-adjusted score computed
// by the ranker relative to the already-selected set.
//
// Invariant: DiversityAdjusted <= Relevance. The diversity term is always
// subtracted, never added.
type ScoredCandidate struct {
	Candidate

	// DiversityAdjusted is the marginal-relevance score used for packing.
	DiversityAdjusted float64
}

// CompressedCandidate is the condensed form of an oversized Candidate,
// produced by the density compressor.
//
// Invariant: AchievedSize <= TargetSize whenever compression was requested.
// If even the minimal seed summary exceeds the target, the summary is
// truncated to the target and Incompressible is set instead of silently
// violating the budget.
type CompressedCandidate struct {
	// SourceID is the ID of the candidate this summary was derived from.
	SourceID string

	// Summary is the condensed text.
	Summary string

	// AchievedSize is the token size of Summary.
	AchievedSize int

	// TargetSize is the token budget compression was asked to meet.
	TargetSize int

	// Iterations is the number of density iterations used (0 when the
	// input was empty or already under target).
	Iterations int

	// Incompressible is set when the minimal achievable form still
	// exceeded TargetSize and the summary had to be truncated.
	Incompressible bool

	// Section and Origin are carried over from the source candidate.
	Section string
	Origin  string

	// Score is the packing score carried over from the source candidate
	// (the diversity-adjusted score when ranking ran upstream).
	Score float64
}

// PackItem is the uniform view the budget packer has of its inputs. Both
// ScoredCandidate and CompressedCandidate implement it; the packer does not
// care which form an item arrived in.
type PackItem interface {
	// ItemID identifies the item (candidate ID or compression source ID).
	ItemID() string

	// Body is the text that would be placed into the pack.
	Body() string

	// TokenSize is the item's size in tokens.
	TokenSize() int

	// PackScore is the value the packer maximizes.
	PackScore() float64

	// SectionTag is the pack section the item belongs to.
	SectionTag() string
}

// ItemID implements PackItem.
func (c ScoredCandidate) ItemID() string { return c.ID }

// Body implements PackItem.
func (c ScoredCandidate) Body() string { return c.Content }

// TokenSize implements PackItem.
func (c ScoredCandidate) TokenSize() int { return c.RawSize }

// PackScore implements PackItem.
func (c ScoredCandidate) PackScore() float64 { return c.DiversityAdjusted }

// SectionTag implements PackItem.
func (c ScoredCandidate) SectionTag() string { return c.Section }

// ItemID implements PackItem.
func (c CompressedCandidate) ItemID() string { return c.SourceID }

// Body implements PackItem.
func (c CompressedCandidate) Body() string { return c.Summary }

// TokenSize implements PackItem.
func (c CompressedCandidate) TokenSize() int { return c.AchievedSize }

// PackScore implements PackItem.
func (c CompressedCandidate) PackScore() float64 { return c.Score }

// SectionTag implements PackItem.
func (c CompressedCandidate) SectionTag() string { return c.Section }

// Compile-time checks.
var (
	_ PackItem = ScoredCandidate{}
	_ PackItem = CompressedCandidate{}
)
