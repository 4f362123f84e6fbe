// Package bus provides the in-process event bus with ordered per-session
// delivery of drift signals to a single consumer.
package bus
