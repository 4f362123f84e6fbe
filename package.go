// Package packgate curates bounded-size context packs for LLM-driven
// workers and guards their in-flight output against drift from the task's
// intent.
//
// # Pipeline
//
// A curation request flows through three stages:
//
//  1. rank: Maximal Marginal Relevance ordering that balances relevance
//     against redundancy (see the rank package).
//  2. compress: chain-of-density condensation of oversized candidates
//     under a token target (see the compress package).
//  3. packer: greedy knapsack selection under a hard global budget and
//     per-section caps (see the packer package).
//
// The curator package wires the stages together and emits an immutable,
// versioned ContextPack.
//
// # Guarding execution
//
// At pack emission, acceptance and constraint fingerprints are written to
// the expectation cache (expect package). While the worker runs, the drift
// monitor (monitor package) samples its output at an adaptive token window,
// scores it against those fingerprints, and publishes DriftSignals on the
// event bus (bus package). The cognitive state machine (cognition package)
// is the single consumer of a session's signals; it owns SessionState and
// escalates OK → WARN → SOFT → HARD → RESCUE, emitting ControlDecisions
// the execution harness acts on.
//
// # Quick start
//
//	cfg := packgate.DefaultConfig()
//	cache := expect.New(cfg.FastTierCapacity)
//	cur := curator.New(cfg, cache)
//
//	pack, err := cur.Curate(ctx, curator.Request{
//	    TaskID:       "task-42",
//	    Candidates:   candidates,
//	    Expectations: []string{"refactor the parser without API changes"},
//	})
//
//	b := bus.New()
//	machine := cognition.New(sessionID, cfg.Thresholds()).WithBus(b)
//	obs := monitor.New(sessionID, expect.PackNamespace(pack), cache, b).
//	    WithThresholds(cfg.Thresholds()).
//	    WithWindow(cfg.Window)
//
//	go machine.Run(ctx, decisions)
//	// harness feeds worker output:
//	obs.Observe(ctx, chunk)
//
// This package holds the shared data model (Candidate, ContextPack,
// DriftSignal, SessionState, Config) and small shared capabilities
// (TokenCounter, Similarity, Model). The subpackages hold the components.
package packgate
