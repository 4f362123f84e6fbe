// Package monitor observes a running worker's output at an adaptive
// token-count window, scores it against the expectation cache, and
// publishes drift signals on the event bus. It observes, it never blocks
// the worker.
package monitor
