package packgate

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Model is the engine's slim LLM interface. It wraps LangChainGo's
// llms.Model with normalized token usage so callers (the abstractive
// compressor, mainly) do not depend on provider-specific response shapes.
//
// The engine treats the model as an external collaborator: it never manages
// backend selection, retries, or billing.
type Model interface {
	// GenerateContent generates content from a sequence of messages.
	GenerateContent(
		ctx context.Context,
		messages []llms.MessageContent,
		options ...llms.CallOption,
	) (*ContentResponse, error)
}

// ContentResponse is the response from a GenerateContent call.
type ContentResponse struct {
	// Choices contains the generated content choices.
	Choices []*ContentChoice

	// Info contains generation metadata with normalized token counts.
	Info *GenerationInfo
}

// ContentChoice is a single content choice from the model.
type ContentChoice struct {
	// Content is the textual content of the response.
	Content string

	// StopReason is the reason the model stopped generating.
	StopReason string
}

// GenerationInfo contains normalized generation metadata.
type GenerationInfo struct {
	// InputTokens is the number of input/prompt tokens used.
	InputTokens int

	// OutputTokens is the number of output/completion tokens generated.
	OutputTokens int

	// TotalTokens is InputTokens + OutputTokens unless the provider
	// reported it directly.
	TotalTokens int

	// Duration is how long the generation took.
	Duration time.Duration
}
