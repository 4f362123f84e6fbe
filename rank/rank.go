package rank

import (
	"github.com/packgate/packgate"
)

// DefaultLambda is the standard relevance/diversity trade-off.
const DefaultLambda = 0.7

// Ranker orders candidates by Maximal Marginal Relevance: each pick
// maximizes λ·relevance − (1−λ)·maxSimilarityToSelected. λ=1 is pure
// relevance ordering, λ=0 is pure diversity.
//
// Rank is a pure function over its inputs: identical candidates, λ, and
// similarity always produce the same order. Ties are broken by original
// relevance, then by stable input order.
//
// # Example
//
//	ranked := rank.New().
//	    WithLambda(0.7).
//	    WithSimilarity(packgate.DefaultSimilarity()).
//	    Rank(candidates)
type Ranker struct {
	lambda float64
	sim    packgate.Similarity
}

// New creates a Ranker with DefaultLambda and the default lexical
// similarity (path-component overlap blended with token-set overlap).
func New() *Ranker {
	return &Ranker{
		lambda: DefaultLambda,
		sim:    packgate.DefaultSimilarity(),
	}
}

// WithLambda sets the relevance/diversity trade-off. Values outside [0, 1]
// are clamped.
func (r *Ranker) WithLambda(lambda float64) *Ranker {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	r.lambda = lambda
	return r
}

// WithSimilarity sets the similarity function. It must be symmetric and
// score in [0, 1]. Plug in packgate.EmbeddingSimilarity for a semantic
// oracle.
func (r *Ranker) WithSimilarity(sim packgate.Similarity) *Ranker {
	if sim != nil {
		r.sim = sim
	}
	return r
}

// Rank greedily orders the candidates by marginal relevance.
//
// The first pick is the highest raw relevance candidate, its score
// unchanged. Each subsequent pick maximizes the MMR objective against the
// already-selected set. The diversity term is subtracted, never added, so
// every DiversityAdjusted score is <= its candidate's Relevance.
//
// Empty input returns an empty slice; a single candidate is returned with
// its score unchanged.
func (r *Ranker) Rank(candidates []packgate.Candidate) []packgate.ScoredCandidate {
	if len(candidates) == 0 {
		return []packgate.ScoredCandidate{}
	}

	remaining := make([]int, len(candidates))
	for i := range candidates {
		remaining[i] = i
	}

	ranked := make([]packgate.ScoredCandidate, 0, len(candidates))
	var selected []int

	for len(remaining) > 0 {
		bestPos := 0
		bestScore := r.objective(candidates, remaining[0], selected)
		for pos := 1; pos < len(remaining); pos++ {
			score := r.objective(candidates, remaining[pos], selected)
			if r.better(candidates, score, bestScore, remaining[pos], remaining[bestPos]) {
				bestPos = pos
				bestScore = score
			}
		}

		idx := remaining[bestPos]
		ranked = append(ranked, packgate.ScoredCandidate{
			Candidate:         candidates[idx],
			DiversityAdjusted: bestScore,
		})
		selected = append(selected, idx)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return ranked
}

// objective computes the MMR score of candidate idx against the selected
// set. With nothing selected yet the score is the raw relevance, so the
// first pick's score is unchanged.
func (r *Ranker) objective(
	candidates []packgate.Candidate,
	idx int,
	selected []int,
) float64 {
	if len(selected) == 0 {
		return candidates[idx].Relevance
	}
	maxSim := 0.0
	for _, s := range selected {
		sim := r.sim(&candidates[idx], &candidates[s])
		if sim > maxSim {
			maxSim = sim
		}
	}
	return r.lambda*candidates[idx].Relevance - (1-r.lambda)*maxSim
}

// better reports whether score beats bestScore, breaking ties by original
// relevance and then by stable input order (the incumbent wins on a full
// tie because it has the lower input index).
func (r *Ranker) better(
	candidates []packgate.Candidate,
	score, bestScore float64,
	idx, bestIdx int,
) bool {
	if score != bestScore {
		return score > bestScore
	}
	if candidates[idx].Relevance != candidates[bestIdx].Relevance {
		return candidates[idx].Relevance > candidates[bestIdx].Relevance
	}
	return idx < bestIdx
}
