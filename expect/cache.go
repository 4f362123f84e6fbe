package expect

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/packgate/packgate"
	"github.com/tmc/langchaingo/embeddings"
)

// Cache is the two-tier expectation cache: a bounded LRU fast tier in front
// of an unbounded durable SQLite tier. Fingerprints are written to both
// tiers; a fast-tier miss that hits the durable tier re-populates the fast
// tier (write-through on read).
//
// A durable-tier failure never fails the session: the cache flags itself
// degraded, keeps serving from the fast tier, and callers can surface the
// condition via Degraded and Err (which reports
// packgate.ErrCacheUnavailable-wrapped detail).
//
// An optional embedder upgrades similarity scoring from token-set overlap
// to cosine similarity over embedding vectors. Embeddings are treated as an
// opaque oracle: embedder failures silently fall back to the lexical path.
type Cache struct {
	fast     *lruTier
	durable  *Store
	embedder embeddings.Embedder

	mu       sync.Mutex
	degraded bool
	lastErr  error
}

// New creates a Cache with the given fast-tier capacity and no durable
// tier.
func New(capacity int) *Cache {
	return &Cache{fast: newLRUTier(capacity)}
}

// WithDurable attaches the durable tier.
func (c *Cache) WithDurable(store *Store) *Cache {
	c.durable = store
	return c
}

// WithEmbedder attaches an embedding backend for semantic similarity.
func (c *Cache) WithEmbedder(embedder embeddings.Embedder) *Cache {
	c.embedder = embedder
	return c
}

// Put records a reference fingerprint for the namespace and kind. The
// fingerprint lands in the fast tier always and in the durable tier when
// one is attached and reachable.
func (c *Cache) Put(
	ctx context.Context,
	ns Namespace,
	kind Kind,
	text string,
) (Fingerprint, error) {
	fp := Fingerprint{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now(),
	}
	if c.embedder != nil {
		if vec, err := c.embedder.EmbedQuery(ctx, text); err == nil {
			fp.Vector = vec
		}
	}

	// Seed a cold fast tier from the durable records first, so the new
	// fingerprint appends to the namespace's history instead of shadowing
	// records written before a restart.
	c.lookup(ns, kind)
	c.fast.Append(cacheKey(ns, kind), fp)

	if c.durable != nil {
		if err := c.durable.Put(ns, kind, fp); err != nil {
			c.markDegraded(err)
		}
	}
	return fp, nil
}

// Similarity scores a sample of worker output against the stored
// fingerprints of the namespace and kind, returning the maximum score in
// [0, 1]. No stored fingerprints score 0.
func (c *Cache) Similarity(
	ctx context.Context,
	ns Namespace,
	kind Kind,
	sample string,
) (float64, error) {
	fps := c.lookup(ns, kind)
	if len(fps) == 0 {
		return 0, nil
	}

	var sampleVec []float32
	if c.embedder != nil {
		if vec, err := c.embedder.EmbedQuery(ctx, sample); err == nil {
			sampleVec = vec
		}
	}

	best := 0.0
	for _, fp := range fps {
		if score := fp.Similarity(sample, sampleVec); score > best {
			best = score
		}
	}
	return best, nil
}

// BestMatch returns the stored fingerprint most similar to the sample, for
// evidence extraction. ok is false when nothing is stored.
func (c *Cache) BestMatch(
	ns Namespace,
	kind Kind,
	sample string,
) (Fingerprint, bool) {
	fps := c.lookup(ns, kind)
	if len(fps) == 0 {
		return Fingerprint{}, false
	}
	best, bestScore := fps[0], -1.0
	for _, fp := range fps {
		if score := fp.Similarity(sample, nil); score > bestScore {
			best, bestScore = fp, score
		}
	}
	return best, true
}

// FailureMotifs returns the task's recorded failure motifs across all pack
// versions, or nil when the durable tier is absent or unavailable.
func (c *Cache) FailureMotifs(taskID string) []Fingerprint {
	if c.durable == nil {
		return nil
	}
	fps, err := c.durable.FailureMotifs(taskID)
	if err != nil {
		c.markDegraded(err)
		return nil
	}
	return fps
}

// Degraded reports whether the durable tier has failed and the cache is
// running fast-tier-only.
func (c *Cache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Err returns the degradation cause wrapped in
// packgate.ErrCacheUnavailable, or nil.
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.degraded {
		return nil
	}
	return &cacheError{cause: c.lastErr}
}

// lookup reads from the fast tier, falling back to the durable tier and
// re-populating the fast tier on a hit.
func (c *Cache) lookup(ns Namespace, kind Kind) []Fingerprint {
	key := cacheKey(ns, kind)
	if fps, ok := c.fast.Get(key); ok {
		return fps
	}
	if c.durable == nil {
		return nil
	}
	fps, err := c.durable.Get(ns, kind)
	if err != nil {
		c.markDegraded(err)
		return nil
	}
	if len(fps) > 0 {
		c.fast.Replace(key, fps)
	}
	return fps
}

func (c *Cache) markDegraded(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degraded = true
	c.lastErr = err
}

func cacheKey(ns Namespace, kind Kind) string {
	return ns.Key() + "|" + string(kind)
}

// cacheError wraps a durable-tier failure so errors.Is(err,
// packgate.ErrCacheUnavailable) holds.
type cacheError struct {
	cause error
}

func (e *cacheError) Error() string {
	if e.cause == nil {
		return packgate.ErrCacheUnavailable.Error()
	}
	return packgate.ErrCacheUnavailable.Error() + ": " + e.cause.Error()
}

func (e *cacheError) Is(target error) bool {
	return target == packgate.ErrCacheUnavailable
}

func (e *cacheError) Unwrap() error {
	return e.cause
}
