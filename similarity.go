package packgate

import (
	"context"
	"math"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
)

// Similarity scores how alike two candidates are, in [0, 1]. It must be
// symmetric. The ranker subtracts the maximum similarity to the selected
// set from a candidate's relevance, so higher similarity means stronger
// redundancy penalties.
type Similarity func(a, b *Candidate) float64

// DefaultSimilarity returns the standard lexical similarity: a weighted
// blend of path-component overlap (weight 0.4) and token-set overlap
// (weight 0.6). It is deterministic and needs no network access, which
// keeps ranking reproducible in tests.
func DefaultSimilarity() Similarity {
	return BlendSimilarity(0.4, 0.6)
}

// BlendSimilarity returns a similarity that blends path-component overlap
// of the candidates' origins with token-set overlap of their contents,
// using the given weights. Weights are normalized so they sum to 1.
func BlendSimilarity(pathWeight, tokenWeight float64) Similarity {
	total := pathWeight + tokenWeight
	if total <= 0 {
		pathWeight, tokenWeight, total = 0.4, 0.6, 1.0
	}
	pathWeight /= total
	tokenWeight /= total

	return func(a, b *Candidate) float64 {
		pathSim := jaccard(pathComponents(a.Origin), pathComponents(b.Origin))
		tokenSim := jaccard(tokenSet(a.Content), tokenSet(b.Content))
		return pathWeight*pathSim + tokenWeight*tokenSim
	}
}

// EmbeddingSimilarity builds a semantic similarity over the given
// candidates by embedding their contents once up front. The returned
// function is a pure cosine lookup over the precomputed vectors, so ranking
// stays synchronous and deterministic; candidates outside the embedded set
// fall back to DefaultSimilarity.
func EmbeddingSimilarity(
	ctx context.Context,
	embedder embeddings.Embedder,
	candidates []Candidate,
) (Similarity, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	byID := make(map[string][]float32, len(candidates))
	for i, c := range candidates {
		if i < len(vectors) {
			byID[c.ID] = vectors[i]
		}
	}
	fallback := DefaultSimilarity()

	return func(a, b *Candidate) float64 {
		va, okA := byID[a.ID]
		vb, okB := byID[b.ID]
		if !okA || !okB {
			return fallback(a, b)
		}
		return Cosine(va, vb)
	}, nil
}

// Cosine computes cosine similarity between two vectors, clamped to [0, 1].
// Mismatched lengths or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// TokenOverlap is the token-set Jaccard similarity of two texts. Exposed
// for use by the expectation cache's lexical fingerprints.
func TokenOverlap(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

// tokenSet lowercases the text and splits it on non-alphanumeric runes.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range splitTokens(text) {
		set[tok] = struct{}{}
	}
	return set
}

// splitTokens returns the lowercased alphanumeric tokens of a text.
func splitTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// pathComponents splits an origin path into its components, dropping
// empties.
func pathComponents(origin string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, part := range strings.FieldsFunc(origin, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if part != "" {
			set[strings.ToLower(part)] = struct{}{}
		}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|; two empty sets score 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
