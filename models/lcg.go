// Package models adapts LangChainGo model backends to the engine's slim
// Model interface, normalizing token usage across providers.
package models

import (
	"context"
	"time"

	"github.com/packgate/packgate"
	"github.com/tmc/langchaingo/llms"
)

// LCG wraps an llms.Model and implements packgate.Model.
//
// Example usage:
//
//	llm, _ := openai.New(openai.WithToken(apiKey))
//	model := models.NewLCG(llm).WithModelName("gpt-4o-mini")
//	comp := compress.New(counter).WithModel(model)
type LCG struct {
	model     llms.Model
	modelName string
}

// NewLCG creates an LCG wrapping the given llms.Model.
func NewLCG(model llms.Model) *LCG {
	return &LCG{model: model}
}

// WithModelName sets the model name, for logging by the caller.
func (m *LCG) WithModelName(name string) *LCG {
	m.modelName = name
	return m
}

// ModelName returns the configured model name.
func (m *LCG) ModelName() string {
	return m.modelName
}

// Unwrap returns the underlying llms.Model.
func (m *LCG) Unwrap() llms.Model {
	return m.model
}

// GenerateContent implements packgate.Model. Token usage is normalized
// across providers.
func (m *LCG) GenerateContent(
	ctx context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*packgate.ContentResponse, error) {
	start := time.Now()
	raw, err := m.model.GenerateContent(ctx, messages, options...)
	duration := time.Since(start)

	var response *packgate.ContentResponse
	if raw != nil {
		response = convert(raw, duration)
	}
	return response, err
}

// convert maps an llms.ContentResponse into the engine's response shape
// with normalized token counts.
func convert(raw *llms.ContentResponse, duration time.Duration) *packgate.ContentResponse {
	response := &packgate.ContentResponse{
		Choices: make([]*packgate.ContentChoice, len(raw.Choices)),
		Info:    &packgate.GenerationInfo{Duration: duration},
	}
	for i, choice := range raw.Choices {
		response.Choices[i] = &packgate.ContentChoice{
			Content:    choice.Content,
			StopReason: choice.StopReason,
		}
	}

	if len(raw.Choices) > 0 && raw.Choices[0].GenerationInfo != nil {
		info := raw.Choices[0].GenerationInfo
		response.Info.InputTokens = extractInputTokens(info)
		response.Info.OutputTokens = extractOutputTokens(info)
		response.Info.TotalTokens = extractTotalTokens(
			info,
			response.Info.InputTokens,
			response.Info.OutputTokens,
		)
	}
	return response
}

// extractInputTokens handles the different key names providers use for
// input/prompt token counts.
func extractInputTokens(info map[string]any) int {
	// OpenAI / Ollama / Google (compat)
	if v := intFromMap(info, "PromptTokens"); v > 0 {
		return v
	}
	// Anthropic
	if v := intFromMap(info, "InputTokens"); v > 0 {
		return v
	}
	// Google / Bedrock
	return intFromMap(info, "input_tokens")
}

func extractOutputTokens(info map[string]any) int {
	if v := intFromMap(info, "CompletionTokens"); v > 0 {
		return v
	}
	if v := intFromMap(info, "OutputTokens"); v > 0 {
		return v
	}
	return intFromMap(info, "output_tokens")
}

func extractTotalTokens(info map[string]any, input, output int) int {
	if v := intFromMap(info, "TotalTokens"); v > 0 {
		return v
	}
	if v := intFromMap(info, "total_tokens"); v > 0 {
		return v
	}
	return input + output
}

func intFromMap(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}

// Compile-time check that LCG implements packgate.Model.
var _ packgate.Model = (*LCG)(nil)
