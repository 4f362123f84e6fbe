// Package cognition implements the hierarchical cognitive state machine
// that owns SessionState, consumes drift signals, and emits control
// decisions for the execution harness.
package cognition
