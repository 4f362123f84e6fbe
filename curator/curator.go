package curator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/packgate/packgate"
	"github.com/packgate/packgate/bus"
	"github.com/packgate/packgate/compress"
	"github.com/packgate/packgate/expect"
	"github.com/packgate/packgate/packer"
	"github.com/packgate/packgate/rank"
)

// ErrAutoFixExhausted is returned when a session has used up its bounded
// auto-fix attempts. The only remaining path is a full curation pass.
var ErrAutoFixExhausted = errors.New("auto-fix attempts exhausted")

// Request describes one curation pass.
type Request struct {
	// TaskID namespaces pack versions and expectation fingerprints.
	TaskID string

	// SessionID, when set, is attached to pack-rejection signals published
	// on the bus.
	SessionID string

	// Candidates is the scanner's feed. Read-only for the duration of the
	// request.
	Candidates []packgate.Candidate

	// Expectations are the acceptance criteria recorded as fingerprints at
	// pack-emission time, for the monitor to score against.
	Expectations []string

	// Constraints are recorded alongside as constraint fingerprints.
	Constraints []string
}

// Curator runs the full curation pipeline: validate the feed, fold past
// failure motifs into candidate scores, rank for diversity, compress
// oversized items, pack under budget, stamp a version, and record the
// request's expectations in the cache. Each pass produces a new immutable
// pack version; revision never patches an existing pack in place.
type Curator struct {
	cfg        packgate.Config
	ranker     *rank.Ranker
	compressor *compress.Compressor
	packer     *packer.Packer
	cache      *expect.Cache
	counter    packgate.TokenCounter
	bus        *bus.Bus

	mu       sync.Mutex
	versions map[string]int
	fixes    map[string]int
	last     map[string]Request
}

// New creates a Curator from the configuration. Defaults: MMR ranker with
// the configured λ and the blended lexical similarity, extractive-only
// compressor, and the heuristic token counter.
func New(cfg packgate.Config, cache *expect.Cache) *Curator {
	counter := packgate.NewHeuristicCounter()
	return &Curator{
		cfg:        cfg,
		ranker:     rank.New().WithLambda(cfg.Lambda),
		compressor: compress.New(counter),
		packer:     packer.New(),
		cache:      cache,
		counter:    counter,
		versions:   make(map[string]int),
		fixes:      make(map[string]int),
		last:       make(map[string]Request),
	}
}

// WithRanker replaces the ranker, e.g. to plug in embedding similarity.
func (c *Curator) WithRanker(r *rank.Ranker) *Curator {
	c.ranker = r
	return c
}

// WithCompressor replaces the compressor, e.g. to attach a model for the
// abstractive path.
func (c *Curator) WithCompressor(comp *compress.Compressor) *Curator {
	c.compressor = comp
	return c
}

// WithCounter replaces the token counter used for candidate sizing.
func (c *Curator) WithCounter(counter packgate.TokenCounter) *Curator {
	if counter != nil {
		c.counter = counter
	}
	return c
}

// WithBus attaches the event bus pack-rejection signals are published on.
func (c *Curator) WithBus(b *bus.Bus) *Curator {
	c.bus = b
	return c
}

// Curate runs one full pipeline pass and emits a new pack version.
//
// A malformed candidate or a budget violation aborts the request with an
// error; everything recoverable (oversized items, incompressible items)
// is resolved inside the pipeline instead.
func (c *Curator) Curate(ctx context.Context, req Request) (*packgate.ContextPack, error) {
	candidates, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	ranked := c.ranker.Rank(candidates)

	target := c.cfg.OversizeTargetTokens()
	items := make([]packgate.PackItem, 0, len(ranked))
	for _, sc := range ranked {
		if target > 0 && sc.RawSize > target {
			compressed, cerr := c.compressor.Compress(ctx, sc.Candidate, target)
			if cerr != nil {
				return nil, cerr
			}
			compressed.Score = sc.DiversityAdjusted
			items = append(items, compressed)
			continue
		}
		items = append(items, sc)
	}

	pack, err := c.packer.Pack(items, c.cfg.Budget, c.cfg.SectionCaps)
	if err != nil {
		c.publishRejection(req, err)
		return nil, err
	}

	pack.TaskID = req.TaskID
	pack.Version = c.nextVersion(req.TaskID)

	c.mu.Lock()
	c.last[req.TaskID] = req
	c.mu.Unlock()

	c.recordExpectations(ctx, pack, req)
	return pack, nil
}

// Recurate records the failed output as a failure motif, then runs a fresh
// pass. The motif read happens inside Curate, so candidates resembling the
// failure are down-ranked in the new version.
func (c *Curator) Recurate(
	ctx context.Context,
	req Request,
	failedOutput string,
) (*packgate.ContextPack, error) {
	if failedOutput != "" {
		if err := c.RecordFailure(ctx, req.TaskID, failedOutput); err != nil {
			return nil, err
		}
	}
	return c.Curate(ctx, req)
}

// RecordFailure stores a failure motif fingerprint under the task's current
// pack version. Future curation passes for the task read these motifs and
// down-rank similar candidates.
func (c *Curator) RecordFailure(ctx context.Context, taskID, sample string) error {
	c.mu.Lock()
	version := c.versions[taskID]
	c.mu.Unlock()

	ns := expect.Namespace{TaskID: taskID, PackVersion: version}
	_, err := c.cache.Put(ctx, ns, expect.KindFailureMotif, sample)
	return err
}

// AutoFix applies a bounded automatic correction to a soft-blocked pack:
// the lowest-value items are dropped, up to the configured trim limit,
// and a new pack version is emitted without a full pipeline re-run.
// Attempts are bounded per task; past the bound only Recurate remains.
func (c *Curator) AutoFix(ctx context.Context, pack *packgate.ContextPack) (*packgate.ContextPack, error) {
	c.mu.Lock()
	c.fixes[pack.TaskID]++
	attempts := c.fixes[pack.TaskID]
	req := c.last[pack.TaskID]
	c.mu.Unlock()

	if c.cfg.AutoFix.MaxAttempts > 0 && attempts > c.cfg.AutoFix.MaxAttempts {
		return nil, fmt.Errorf(
			"task %s: %w after %d attempts",
			pack.TaskID, ErrAutoFixExhausted, c.cfg.AutoFix.MaxAttempts,
		)
	}

	kept, trimmed := trim(pack.Items, c.cfg.AutoFix.MaxTrimTokens)
	if trimmed == 0 {
		return nil, fmt.Errorf(
			"task %s: no item small enough to trim within %d tokens",
			pack.TaskID, c.cfg.AutoFix.MaxTrimTokens,
		)
	}

	fixed := &packgate.ContextPack{
		TaskID:        pack.TaskID,
		Version:       c.nextVersion(pack.TaskID),
		Items:         kept,
		Budget:        pack.Budget,
		SectionCaps:   pack.SectionCaps,
		SectionTotals: make(map[string]int),
		CreatedAt:     time.Now(),
	}
	for _, item := range kept {
		fixed.TotalTokens += item.TokenSize()
		fixed.SectionTotals[item.SectionTag()] += item.TokenSize()
	}
	if fixed.Budget > 0 {
		fixed.Utilization = float64(fixed.TotalTokens) / float64(fixed.Budget)
	}
	if err := fixed.CheckBudget(); err != nil {
		return nil, err
	}

	c.recordExpectations(ctx, fixed, req)
	return fixed, nil
}

// Version returns the task's current pack version, zero when the task has
// never been curated.
func (c *Curator) Version(taskID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[taskID]
}

// prepare validates the feed, fills in missing sizes, and folds past
// failure motifs into relevance scores. The request's candidate slice is
// never mutated.
func (c *Curator) prepare(req Request) ([]packgate.Candidate, error) {
	motifs := c.cache.FailureMotifs(req.TaskID)

	out := make([]packgate.Candidate, len(req.Candidates))
	for i := range req.Candidates {
		cand := req.Candidates[i]
		if err := cand.Validate(); err != nil {
			return nil, err
		}
		if cand.RawSize == 0 && cand.Content != "" {
			cand.RawSize = c.counter.Count(cand.Content)
		}
		if penalty := motifPenalty(cand, motifs); penalty > 0 {
			cand.Relevance *= 1 - penalty/2
		}
		out[i] = cand
	}
	return out, nil
}

func (c *Curator) nextVersion(taskID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[taskID]++
	return c.versions[taskID]
}

// recordExpectations writes the request's acceptance and constraint
// fingerprints under the emitted pack's namespace. Cache degradation is
// surfaced via Cache.Degraded, never as a curation failure.
func (c *Curator) recordExpectations(
	ctx context.Context,
	pack *packgate.ContextPack,
	req Request,
) {
	ns := expect.PackNamespace(pack)
	for _, text := range req.Expectations {
		c.cache.Put(ctx, ns, expect.KindAcceptance, text)
	}
	for _, text := range req.Constraints {
		c.cache.Put(ctx, ns, expect.KindConstraint, text)
	}
}

func (c *Curator) publishRejection(req Request, err error) {
	if c.bus == nil || req.SessionID == "" {
		return
	}
	c.bus.Publish(packgate.DriftSignal{
		ID:        fmt.Sprintf("%s!pack-rejected-%d", req.SessionID, time.Now().UnixNano()),
		SessionID: req.SessionID,
		Kind:      packgate.SignalPackRejected,
		Severity:  packgate.SeverityHard,
		Global:    true,
		Reason:    err.Error(),
		Timestamp: time.Now(),
	})
}

// motifPenalty is the candidate's strongest similarity to any recorded
// failure motif, in [0, 1].
func motifPenalty(cand packgate.Candidate, motifs []expect.Fingerprint) float64 {
	best := 0.0
	for _, motif := range motifs {
		if score := motif.Similarity(cand.Content, nil); score > best {
			best = score
		}
	}
	return best
}

// trim drops the lowest-value items whose combined size fits the trim
// budget, returning the kept items in their original pack order and the
// tokens trimmed.
func trim(items []packgate.PackItem, maxTokens int) ([]packgate.PackItem, int) {
	trimmed := 0
	dropped := make(map[int]bool)
	for trimmed < maxTokens {
		pick := -1
		for i, item := range items {
			if dropped[i] || trimmed+item.TokenSize() > maxTokens {
				continue
			}
			if pick < 0 || item.PackScore() < items[pick].PackScore() {
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		dropped[pick] = true
		trimmed += items[pick].TokenSize()
	}

	kept := make([]packgate.PackItem, 0, len(items)-len(dropped))
	for i, item := range items {
		if !dropped[i] {
			kept = append(kept, item)
		}
	}
	return kept, trimmed
}
