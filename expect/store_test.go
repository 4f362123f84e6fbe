package expect

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Roundtrip(t *testing.T) {
	store := testStore(t)
	ns := Namespace{TaskID: "task", PackVersion: 1}

	fp := Fingerprint{
		ID:        "fp-1",
		Text:      "the handler must return 404 for unknown ids",
		Vector:    []float32{0.5, -1.25, 3},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Put(ns, KindAcceptance, fp))

	got, err := store.Get(ns, KindAcceptance)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fp.ID, got[0].ID)
	assert.Equal(t, fp.Text, got[0].Text)
	assert.Equal(t, fp.Vector, got[0].Vector)
}

func TestStore_GetScopedToNamespaceAndKind(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.Put(
		Namespace{TaskID: "task", PackVersion: 1},
		KindAcceptance,
		Fingerprint{ID: "a", Text: "v1 acceptance", CreatedAt: time.Now()},
	))
	require.NoError(t, store.Put(
		Namespace{TaskID: "task", PackVersion: 2},
		KindAcceptance,
		Fingerprint{ID: "b", Text: "v2 acceptance", CreatedAt: time.Now()},
	))
	require.NoError(t, store.Put(
		Namespace{TaskID: "task", PackVersion: 1},
		KindConstraint,
		Fingerprint{ID: "c", Text: "v1 constraint", CreatedAt: time.Now()},
	))

	got, err := store.Get(Namespace{TaskID: "task", PackVersion: 1}, KindAcceptance)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expect.db")
	ns := Namespace{TaskID: "task", PackVersion: 1}

	store, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ns, KindFailureMotif, Fingerprint{
		ID: "motif", Text: "recurring bad pattern", CreatedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	motifs, err := reopened.FailureMotifs("task")
	require.NoError(t, err)
	require.Len(t, motifs, 1)
	assert.Equal(t, "recurring bad pattern", motifs[0].Text)
}
