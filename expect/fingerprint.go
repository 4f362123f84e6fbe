package expect

import (
	"fmt"
	"time"

	"github.com/packgate/packgate"
)

// Kind classifies what an expectation fingerprint describes.
type Kind string

const (
	// KindAcceptance fingerprints what on-topic, correct output should
	// resemble.
	KindAcceptance Kind = "acceptance"

	// KindConstraint fingerprints the constraints output must respect;
	// the monitor reports similarity to these as evidence coverage.
	KindConstraint Kind = "constraint"

	// KindFailureMotif fingerprints recurring bad output, recorded on
	// hard blocks so future curation passes can down-rank similar
	// candidates.
	KindFailureMotif Kind = "failure_motif"
)

// Namespace keys expectation fingerprints by task and pack version. Each
// pack version carries its own reference expectations, so a retry with a
// revised pack is scored against the revised expectations.
type Namespace struct {
	TaskID      string
	PackVersion int
}

// PackNamespace derives the namespace of an emitted pack.
func PackNamespace(p *packgate.ContextPack) Namespace {
	return Namespace{TaskID: p.TaskID, PackVersion: p.Version}
}

// Key renders the namespace as a single cache key component.
func (n Namespace) Key() string {
	return fmt.Sprintf("%s@v%d", n.TaskID, n.PackVersion)
}

// Fingerprint is a stored reference for similarity comparison: the original
// text plus an optional embedding vector. Fingerprints are written once at
// pack emission and read many times during monitoring.
type Fingerprint struct {
	// ID uniquely identifies the record in the durable tier.
	ID string

	// Text is the reference text the fingerprint was built from.
	Text string

	// Vector is the embedding of Text, nil when no embedder was
	// configured (or the embedder failed; the lexical path still works).
	Vector []float32

	// CreatedAt is when the fingerprint was recorded.
	CreatedAt time.Time
}

// Similarity scores a sample against the fingerprint in [0, 1]. When both
// sides have vectors the score is cosine similarity; otherwise it falls
// back to token-set overlap, which keeps the oracle usable without any
// embedding backend.
func (f Fingerprint) Similarity(sample string, sampleVector []float32) float64 {
	if len(f.Vector) > 0 && len(sampleVector) > 0 {
		return packgate.Cosine(f.Vector, sampleVector)
	}
	return packgate.TokenOverlap(f.Text, sample)
}
