package compress

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/packgate/packgate"
	"github.com/tmc/langchaingo/llms"
)

// MaxIterations caps the number of density iterations per compression, to
// bound cost. The seed summary does not count as an iteration.
const MaxIterations = 5

// DefaultPrompt is the prompt used when a Model is attached for abstractive
// condensation. It takes two placeholders: the token target and the text.
//
// The prompt tells the model which details compress poorly and must survive
// verbatim - exact identifiers cannot be recovered once paraphrased away.
const DefaultPrompt = `Condense the following content to at most %d ` +
	`tokens. Preserve exact identifiers: names, file paths, function ` +
	`signatures, error messages, and configuration values. Prefer ` +
	`signatures and control flow over prose. Write ONLY the condensed ` +
	`content, no preamble.

%s`

// Compressor condenses oversized candidates under a token target using
// chain-of-density iteration: a minimal seed summary first, then repeated
// proposals to add the next-most-important missing detail, accepted only
// while the result stays under target.
//
// The result grows monotonically and never exceeds the target. If even the
// seed exceeds the target, the output is the seed truncated to the target
// with Incompressible set - the budget is never silently violated.
//
// An optional Model switches the first attempt to abstractive condensation;
// the deterministic extractive path remains the fallback when the model
// errors or overshoots the target.
//
// # Example
//
//	c := compress.New(counter).WithModel(model)
//	cc, err := c.Compress(ctx, cand, 1250)
type Compressor struct {
	counter packgate.TokenCounter
	model   packgate.Model
	prompt  string
}

// New creates a Compressor using the given token counter. A nil counter
// falls back to the heuristic counter.
func New(counter packgate.TokenCounter) *Compressor {
	if counter == nil {
		counter = packgate.NewHeuristicCounter()
	}
	return &Compressor{
		counter: counter,
		prompt:  DefaultPrompt,
	}
}

// WithModel attaches a model for abstractive condensation.
func (c *Compressor) WithModel(model packgate.Model) *Compressor {
	c.model = model
	return c
}

// WithPrompt sets a custom abstractive prompt. The prompt receives the
// token target and the input text via fmt.Sprintf.
func (c *Compressor) WithPrompt(prompt string) *Compressor {
	c.prompt = prompt
	return c
}

// Compress condenses the candidate's content to at most targetTokens.
//
// Degenerate cases: empty input returns an empty summary with zero
// iterations; input already under target is returned unchanged with zero
// iterations and AchievedSize equal to the raw size.
func (c *Compressor) Compress(
	ctx context.Context,
	cand packgate.Candidate,
	targetTokens int,
) (packgate.CompressedCandidate, error) {
	result := packgate.CompressedCandidate{
		SourceID:   cand.ID,
		TargetSize: targetTokens,
		Section:    cand.Section,
		Origin:     cand.Origin,
		Score:      cand.Relevance,
	}

	if cand.Content == "" {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	raw := c.counter.Count(cand.Content)
	if raw <= targetTokens {
		result.Summary = cand.Content
		result.AchievedSize = raw
		return result, nil
	}

	if c.model != nil {
		if done, ok := c.abstractive(ctx, cand.Content, targetTokens); ok {
			result.Summary = done
			result.AchievedSize = c.counter.Count(done)
			result.Iterations = 1
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}

	c.extractive(&result, cand.Content, targetTokens)
	return result, nil
}

// abstractive asks the model for a condensed form. It returns ok=false when
// the model errors, returns nothing, or overshoots the target - the caller
// then falls back to the deterministic extractive path.
func (c *Compressor) abstractive(
	ctx context.Context,
	text string,
	targetTokens int,
) (string, bool) {
	prompt := fmt.Sprintf(c.prompt, targetTokens, text)
	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextContent{Text: prompt},
			},
		},
	}
	response, err := c.model.GenerateContent(ctx, messages)
	if err != nil || response == nil || len(response.Choices) == 0 {
		return "", false
	}
	out := strings.TrimSpace(response.Choices[0].Content)
	if out == "" || c.counter.Count(out) > targetTokens {
		return "", false
	}
	return out, true
}

// extractive runs the deterministic chain-of-density loop over the input's
// lines.
func (c *Compressor) extractive(
	result *packgate.CompressedCandidate,
	text string,
	targetTokens int,
) {
	lines := strings.Split(text, "\n")

	// Rank line indices by importance, stable on input order.
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scoreLine(lines[order[a]]) > scoreLine(lines[order[b]])
	})

	// Seed: the highest-importance lines that fit a quarter of the
	// target, always at least the single best line. Broad coverage,
	// cheap to build.
	seedBudget := targetTokens / 4
	if seedBudget < 1 {
		seedBudget = targetTokens
	}
	included := map[int]bool{}
	for _, idx := range order {
		if strings.TrimSpace(lines[idx]) == "" {
			continue
		}
		trial := c.join(lines, included, idx)
		if len(included) > 0 && c.counter.Count(trial) > seedBudget {
			continue
		}
		included[idx] = true
		if c.counter.Count(c.join(lines, included, -1)) >= seedBudget {
			break
		}
	}

	seed := c.join(lines, included, -1)
	if c.counter.Count(seed) > targetTokens {
		// Even the minimal form exceeds target: truncate, flag, stop.
		result.Summary = packgate.TruncateToTokens(c.counter, seed, targetTokens)
		result.AchievedSize = c.counter.Count(result.Summary)
		result.Incompressible = true
		return
	}

	// Density iterations: propose the next-most-important missing line,
	// accept only while the result stays under target, stop at the first
	// rejection.
	iterations := 0
	for _, idx := range order {
		if iterations >= MaxIterations {
			break
		}
		if included[idx] || strings.TrimSpace(lines[idx]) == "" {
			continue
		}
		trial := c.join(lines, included, idx)
		if c.counter.Count(trial) > targetTokens {
			break
		}
		included[idx] = true
		iterations++
	}

	result.Summary = c.join(lines, included, -1)
	result.AchievedSize = c.counter.Count(result.Summary)
	result.Iterations = iterations
}

// join renders the included lines in original order, optionally adding one
// extra index (extra = -1 for none).
func (c *Compressor) join(lines []string, included map[int]bool, extra int) string {
	idxs := make([]int, 0, len(included)+1)
	for idx := range included {
		idxs = append(idxs, idx)
	}
	if extra >= 0 && !included[extra] {
		idxs = append(idxs, extra)
	}
	sort.Ints(idxs)

	parts := make([]string, 0, len(idxs))
	for _, idx := range idxs {
		parts = append(parts, lines[idx])
	}
	return strings.Join(parts, "\n")
}
