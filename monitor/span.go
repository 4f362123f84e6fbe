package monitor

import (
	"strings"

	"github.com/packgate/packgate"
	"github.com/pmezard/go-difflib/difflib"
)

// maxExcerptRunes bounds the excerpt carried on a span so signals stay
// small on the bus.
const maxExcerptRunes = 240

// offendingSpan locates the largest region of the sample that has no
// counterpart in the expectation text, so a blocked session can point at
// what went wrong instead of forcing a full restart. Returns nil when the
// diff finds no inserted or replaced region.
func offendingSpan(sample, expected string) *packgate.Span {
	sampleLines := strings.SplitAfter(sample, "\n")
	expectedLines := strings.SplitAfter(expected, "\n")

	matcher := difflib.NewMatcher(expectedLines, sampleLines)

	bestLen := 0
	bestJ1, bestJ2 := 0, 0
	for _, op := range matcher.GetOpCodes() {
		// 'i' = inserted into the sample, 'r' = replaced: both are
		// sample text the expectations do not account for.
		if op.Tag != 'i' && op.Tag != 'r' {
			continue
		}
		if op.J2-op.J1 > bestLen {
			bestLen = op.J2 - op.J1
			bestJ1, bestJ2 = op.J1, op.J2
		}
	}
	if bestLen == 0 {
		return nil
	}

	start := 0
	for _, line := range sampleLines[:bestJ1] {
		start += len([]rune(line))
	}
	excerpt := strings.Join(sampleLines[bestJ1:bestJ2], "")
	end := start + len([]rune(excerpt))

	if runes := []rune(excerpt); len(runes) > maxExcerptRunes {
		excerpt = string(runes[:maxExcerptRunes])
	}
	return &packgate.Span{
		Start:   start,
		End:     end,
		Excerpt: excerpt,
	}
}
