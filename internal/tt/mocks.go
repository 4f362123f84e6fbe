// Package tt provides shared test helpers: mock models, a deterministic
// embedder, and candidate builders.
package tt

import (
	"context"
	"hash/fnv"

	"github.com/packgate/packgate"
	"github.com/tmc/langchaingo/llms"
)

// -----------------------------------------------------------------------------
// MockModel - implements packgate.Model
// -----------------------------------------------------------------------------

// MockModel is a configurable mock that implements packgate.Model.
type MockModel struct {
	responses []*packgate.ContentResponse
	errors    []error
	callCount int

	// CapturedMessages stores the messages passed to each GenerateContent
	// call. Populated automatically on every call.
	CapturedMessages [][]llms.MessageContent
}

// NewMockModel creates a new MockModel.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// AddResponse queues a response with the given content.
func (m *MockModel) AddResponse(content string) *MockModel {
	m.responses = append(m.responses, &packgate.ContentResponse{
		Choices: []*packgate.ContentChoice{{Content: content}},
		Info:    &packgate.GenerationInfo{InputTokens: 10, OutputTokens: 5},
	})
	return m
}

// AddError queues an error for the next call.
func (m *MockModel) AddError(err error) *MockModel {
	for len(m.responses) <= len(m.errors) {
		m.responses = append(m.responses, nil)
	}
	m.errors = append(m.errors, err)
	return m
}

// CallCount returns the number of times GenerateContent has been called.
func (m *MockModel) CallCount() int {
	return m.callCount
}

// GenerateContent implements packgate.Model.
func (m *MockModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*packgate.ContentResponse, error) {
	idx := m.callCount
	m.callCount++
	m.CapturedMessages = append(m.CapturedMessages, messages)

	if idx < len(m.errors) && m.errors[idx] != nil {
		return nil, m.errors[idx]
	}
	if idx < len(m.responses) && m.responses[idx] != nil {
		return m.responses[idx], nil
	}
	return &packgate.ContentResponse{
		Choices: []*packgate.ContentChoice{{Content: ""}},
		Info:    &packgate.GenerationInfo{},
	}, nil
}

// Compile-time check that MockModel implements packgate.Model.
var _ packgate.Model = (*MockModel)(nil)

// -----------------------------------------------------------------------------
// MockEmbedder - deterministic embeddings.Embedder
// -----------------------------------------------------------------------------

// MockEmbedder implements embeddings.Embedder with deterministic vectors
// derived from token hashes: identical texts embed identically, texts
// sharing tokens land near each other. No network, no randomness.
type MockEmbedder struct {
	// Dim is the vector dimension, 16 when zero.
	Dim int

	// Fail, when set, makes every call return this error.
	Fail error
}

// NewMockEmbedder creates a MockEmbedder with the default dimension.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// EmbedDocuments embeds each text independently.
func (e *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.Fail != nil {
		return nil, e.Fail
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedQuery embeds one text.
func (e *MockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.Fail != nil {
		return nil, e.Fail
	}
	dim := e.Dim
	if dim == 0 {
		dim = 16
	}
	vec := make([]float32, dim)
	token := make([]rune, 0, 16)
	flush := func() {
		if len(token) == 0 {
			return
		}
		h := fnv.New32a()
		h.Write([]byte(string(token)))
		vec[int(h.Sum32())%dim]++
		token = token[:0]
	}
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			flush()
			continue
		}
		token = append(token, r)
	}
	flush()
	return vec, nil
}

// -----------------------------------------------------------------------------
// Candidate builders
// -----------------------------------------------------------------------------

// Cand builds a candidate with sensible defaults for tests.
func Cand(id, content string, relevance float64) packgate.Candidate {
	return packgate.Candidate{
		ID:        id,
		Content:   content,
		RawSize:   packgate.NewHeuristicCounter().Count(content),
		Relevance: relevance,
		Section:   "main",
		Origin:    id,
	}
}

// CandAt is Cand with an explicit section and origin path.
func CandAt(id, content string, relevance float64, section, origin string) packgate.Candidate {
	c := Cand(id, content, relevance)
	c.Section = section
	c.Origin = origin
	return c
}

// Sized builds a candidate with an explicit token size and filler content.
func Sized(id string, tokens int, relevance float64, section string) packgate.Candidate {
	return packgate.Candidate{
		ID:        id,
		Content:   id,
		RawSize:   tokens,
		Relevance: relevance,
		Section:   section,
		Origin:    id,
	}
}
