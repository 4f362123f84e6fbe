package expect

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/packgate/packgate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "expect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCache_PutAndSimilarity(t *testing.T) {
	ctx := context.Background()
	c := New(8)
	ns := Namespace{TaskID: "task", PackVersion: 1}

	_, err := c.Put(ctx, ns, KindAcceptance, "alpha beta gamma delta")
	require.NoError(t, err)

	tests := []struct {
		name   string
		sample string
		want   func(t *testing.T, score float64)
	}{
		{
			name:   "identical sample scores 1",
			sample: "alpha beta gamma delta",
			want: func(t *testing.T, score float64) {
				assert.Equal(t, 1.0, score)
			},
		},
		{
			name:   "disjoint sample scores 0",
			sample: "completely unrelated words",
			want: func(t *testing.T, score float64) {
				assert.Equal(t, 0.0, score)
			},
		},
		{
			name:   "partial overlap lands between",
			sample: "alpha beta something else",
			want: func(t *testing.T, score float64) {
				assert.Greater(t, score, 0.0)
				assert.Less(t, score, 1.0)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, err := c.Similarity(ctx, ns, KindAcceptance, tc.sample)
			require.NoError(t, err)
			tc.want(t, score)
		})
	}
}

func TestCache_EmptyNamespaceScoresZero(t *testing.T) {
	c := New(8)
	score, err := c.Similarity(
		context.Background(),
		Namespace{TaskID: "never-seen", PackVersion: 3},
		KindAcceptance,
		"anything",
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c := New(2) // fast tier holds two namespace+kind entries

	for v := 1; v <= 3; v++ {
		ns := Namespace{TaskID: "task", PackVersion: v}
		_, err := c.Put(ctx, ns, KindAcceptance, fmt.Sprintf("expectation v%d", v))
		require.NoError(t, err)
	}

	// Oldest entry evicted; without a durable tier it is gone.
	score, err := c.Similarity(
		ctx, Namespace{TaskID: "task", PackVersion: 1}, KindAcceptance, "expectation v1",
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	// Newest entries survive.
	score, err = c.Similarity(
		ctx, Namespace{TaskID: "task", PackVersion: 3}, KindAcceptance, "expectation v3",
	)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestCache_WriteThroughOnRead(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	ns := Namespace{TaskID: "task", PackVersion: 1}

	writer := New(8).WithDurable(store)
	_, err := writer.Put(ctx, ns, KindAcceptance, "alpha beta gamma")
	require.NoError(t, err)

	// A fresh cache misses its fast tier, hits the durable tier, and
	// re-populates the fast tier.
	reader := New(8).WithDurable(store)
	score, err := reader.Similarity(ctx, ns, KindAcceptance, "alpha beta gamma")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	// After re-population the fast tier serves reads even if the durable
	// tier goes away.
	require.NoError(t, store.Close())
	score, err = reader.Similarity(ctx, ns, KindAcceptance, "alpha beta gamma")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestCache_PutMergesDurableHistory(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	ns := Namespace{TaskID: "task", PackVersion: 1}

	writer := New(8).WithDurable(store)
	_, err := writer.Put(ctx, ns, KindAcceptance, "alpha beta gamma delta")
	require.NoError(t, err)

	// A fresh cache writes to a cold fast tier. The new fingerprint must
	// join the durable records under the key, not hide them.
	restarted := New(8).WithDurable(store)
	_, err = restarted.Put(ctx, ns, KindAcceptance, "epsilon zeta eta theta")
	require.NoError(t, err)

	score, err := restarted.Similarity(ctx, ns, KindAcceptance, "alpha beta gamma delta")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "pre-restart fingerprint still scored")

	score, err = restarted.Similarity(ctx, ns, KindAcceptance, "epsilon zeta eta theta")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "new fingerprint scored too")
}

func TestCache_DegradedOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	require.NoError(t, store.Close())

	c := New(8).WithDurable(store)
	ns := Namespace{TaskID: "task", PackVersion: 1}

	_, err := c.Put(ctx, ns, KindAcceptance, "alpha beta")
	require.NoError(t, err, "durable failure degrades, it does not fail the session")
	assert.True(t, c.Degraded())
	assert.ErrorIs(t, c.Err(), packgate.ErrCacheUnavailable)

	// Fast tier still serves.
	score, err := c.Similarity(ctx, ns, KindAcceptance, "alpha beta")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestCache_FailureMotifsAcrossVersions(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	c := New(8).WithDurable(store)

	_, err := c.Put(ctx, Namespace{TaskID: "task", PackVersion: 1}, KindFailureMotif, "bad pattern one")
	require.NoError(t, err)
	_, err = c.Put(ctx, Namespace{TaskID: "task", PackVersion: 2}, KindFailureMotif, "bad pattern two")
	require.NoError(t, err)

	motifs := c.FailureMotifs("task")
	require.Len(t, motifs, 2, "motifs are read across pack versions")

	assert.Empty(t, c.FailureMotifs("other-task"))
}

func TestFingerprint_Similarity(t *testing.T) {
	lexical := Fingerprint{Text: "alpha beta gamma"}
	assert.Equal(t, 1.0, lexical.Similarity("alpha beta gamma", nil))

	withVector := Fingerprint{Text: "ignored", Vector: []float32{1, 0}}
	assert.InDelta(t, 1.0, withVector.Similarity("anything", []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, withVector.Similarity("anything", []float32{0, 1}), 1e-9)
}
