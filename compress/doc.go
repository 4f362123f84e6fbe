// Package compress condenses oversized candidates under a token target
// with chain-of-density iteration, preserving salient entities, signatures,
// and control flow over prose.
package compress
