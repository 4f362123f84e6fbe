package rank

import (
	"fmt"
	"testing"

	"github.com/packgate/packgate"
	"github.com/packgate/packgate/internal/tt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRanker_Rank_Degenerate(t *testing.T) {
	tests := []struct {
		name  string
		input []packgate.Candidate
		want  int
	}{
		{
			name:  "empty input yields empty output",
			input: nil,
			want:  0,
		},
		{
			name:  "single item returned unchanged",
			input: []packgate.Candidate{tt.Cand("only", "some content here", 0.8)},
			want:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ranked := New().Rank(tc.input)
			require.Len(t, ranked, tc.want)
			if tc.want == 1 {
				assert.Equal(t, "only", ranked[0].ID)
				assert.Equal(t, 0.8, ranked[0].DiversityAdjusted)
			}
		})
	}
}

func TestRanker_Rank_Deterministic(t *testing.T) {
	candidates := []packgate.Candidate{
		tt.CandAt("a", "alpha beta gamma", 0.9, "code", "src/a.go"),
		tt.CandAt("b", "alpha beta delta", 0.9, "code", "src/b.go"),
		tt.CandAt("c", "totally different words", 0.5, "docs", "docs/c.md"),
		tt.CandAt("d", "alpha beta gamma", 0.7, "code", "src/d.go"),
	}

	r := New()
	first := r.Rank(candidates)
	second := r.Rank(candidates)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].DiversityAdjusted, second[i].DiversityAdjusted)
	}
}

func TestRanker_Rank_AdjustedNeverAboveRelevance(t *testing.T) {
	candidates := []packgate.Candidate{
		tt.CandAt("a", "shared words everywhere", 0.9, "code", "pkg/a.go"),
		tt.CandAt("b", "shared words everywhere", 0.8, "code", "pkg/b.go"),
		tt.CandAt("c", "shared words everywhere", 0.7, "code", "pkg/c.go"),
		tt.CandAt("d", "something else entirely", 0.4, "docs", "docs/d.md"),
	}

	for _, sc := range New().Rank(candidates) {
		assert.LessOrEqual(t, sc.DiversityAdjusted, sc.Relevance,
			"diversity term must only ever subtract")
	}
}

// Ten near-duplicate test files plus one diverse source file: after the
// first duplicate is picked on raw relevance, the diverse item must outrank
// the remaining duplicates despite its lower relevance.
func TestRanker_Rank_NearDuplicatesDiversified(t *testing.T) {
	content := "def test_login():\n    assert login(user) == expected"
	candidates := make([]packgate.Candidate, 0, 11)
	for i := 0; i < 10; i++ {
		candidates = append(candidates, tt.CandAt(
			fmt.Sprintf("test-%d", i),
			content,
			0.9,
			"tests",
			fmt.Sprintf("tests/test_%d.py", i),
		))
	}
	candidates = append(candidates, tt.CandAt(
		"svc",
		"func StartServer(addr string) error { return srv.ListenAndServe() }",
		0.7,
		"code",
		"src/server/server.go",
	))

	ranked := New().WithLambda(0.7).Rank(candidates)

	require.Len(t, ranked, 11)
	assert.Equal(t, "test-0", ranked[0].ID, "first pick is raw relevance")
	assert.Equal(t, 0.9, ranked[0].DiversityAdjusted, "first pick score unchanged")
	assert.Equal(t, "svc", ranked[1].ID,
		"diverse item outranks remaining near-duplicates")
}

func TestRanker_WithLambda_Clamped(t *testing.T) {
	candidates := []packgate.Candidate{
		tt.Cand("a", "alpha", 0.9),
		tt.Cand("b", "alpha", 0.5),
	}

	// Out-of-range lambdas are clamped rather than rejected.
	for _, lambda := range []float64{-1, 2} {
		ranked := New().WithLambda(lambda).Rank(candidates)
		require.Len(t, ranked, 2)
	}
}
