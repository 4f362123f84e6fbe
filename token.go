package packgate

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text size in tokens. All budgets, caps, and
// compression targets in the engine are expressed in tokens from the same
// counter, so pipeline stages agree on sizes.
type TokenCounter interface {
	// Count returns the token count of the text.
	Count(text string) int
}

// HeuristicCounter approximates token counts as ceil(len/CharsPerToken).
// It is the default counter: deterministic, dependency-free at runtime, and
// close enough for budget enforcement when no tokenizer is configured.
type HeuristicCounter struct {
	// CharsPerToken is the assumed characters-per-token ratio (default 4).
	CharsPerToken int
}

// NewHeuristicCounter creates a HeuristicCounter with the standard 4
// characters-per-token ratio.
func NewHeuristicCounter() *HeuristicCounter {
	return &HeuristicCounter{CharsPerToken: 4}
}

// Count implements TokenCounter.
func (c *HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	per := c.CharsPerToken
	if per <= 0 {
		per = 4
	}
	return (len(text) + per - 1) / per
}

// TiktokenCounter counts tokens with a real BPE tokenizer. Use it when the
// worker's model family is known and exact budget accounting matters.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given encoding name
// (e.g. "cl100k_base").
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// TruncateToTokens cuts text to at most target tokens under the given
// counter, respecting rune boundaries. A non-positive target returns the
// empty string. The cut is found by binary search so it works with any
// counter, exact or heuristic.
func TruncateToTokens(counter TokenCounter, text string, target int) string {
	if target <= 0 {
		return ""
	}
	if counter.Count(text) <= target {
		return text
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.Count(string(runes[:mid])) <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

// Compile-time checks.
var (
	_ TokenCounter = (*HeuristicCounter)(nil)
	_ TokenCounter = (*TiktokenCounter)(nil)
)
