// Package feed decodes and validates the scanner's candidate feed. The
// engine treats the feed as opaque input; everything it trusts about a
// record is checked here first.
package feed
