package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/packgate/packgate"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// record is the wire form of one scanner candidate.
type record struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	RawSize   int     `json:"raw_size"`
	Relevance float64 `json:"relevance"`
	Section   string  `json:"section"`
	Origin    string  `json:"origin"`
}

// candidateSchema validates one feed record before it is trusted. Anything
// the schema rejects surfaces as a MalformedCandidateError and aborts the
// curation request.
var candidateSchema = mustCompile(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":        map[string]any{"type": "string", "minLength": 1},
		"content":   map[string]any{"type": "string"},
		"raw_size":  map[string]any{"type": "integer", "minimum": 0},
		"relevance": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"section":   map[string]any{"type": "string"},
		"origin":    map[string]any{"type": "string"},
	},
	"required": []any{"id", "content", "relevance"},
})

// Decode reads a scanner feed, a JSON array of candidate records, and
// returns the validated candidates in feed order.
func Decode(r io.Reader) ([]packgate.Candidate, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &packgate.MalformedCandidateError{
			Reason: fmt.Sprintf("feed is not a JSON array: %v", err),
		}
	}

	candidates := make([]packgate.Candidate, 0, len(raw))
	for i, entry := range raw {
		cand, err := decodeRecord(entry)
		if err != nil {
			if merr, ok := err.(*packgate.MalformedCandidateError); ok && merr.ID == "" {
				merr.Reason = fmt.Sprintf("record %d: %s", i, merr.Reason)
			}
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// DecodeFile reads a scanner feed from a file.
func DecodeFile(path string) ([]packgate.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func decodeRecord(raw json.RawMessage) (packgate.Candidate, error) {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return packgate.Candidate{}, &packgate.MalformedCandidateError{
			Reason: fmt.Sprintf("invalid JSON: %v", err),
		}
	}
	if err := candidateSchema.Validate(value); err != nil {
		var rec record
		json.Unmarshal(raw, &rec)
		return packgate.Candidate{}, &packgate.MalformedCandidateError{
			ID:     rec.ID,
			Reason: fmt.Sprintf("schema validation failed: %v", err),
		}
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return packgate.Candidate{}, &packgate.MalformedCandidateError{
			Reason: fmt.Sprintf("invalid record: %v", err),
		}
	}

	cand := packgate.Candidate{
		ID:        rec.ID,
		Content:   rec.Content,
		RawSize:   rec.RawSize,
		Relevance: rec.Relevance,
		Section:   rec.Section,
		Origin:    rec.Origin,
	}
	if err := cand.Validate(); err != nil {
		return packgate.Candidate{}, err
	}
	return cand, nil
}

// mustCompile compiles a raw schema map, panicking on error. Used only for
// schemas defined at init time.
func mustCompile(raw map[string]any) *jsonschema.Schema {
	data, err := json.Marshal(raw)
	if err != nil {
		panic(err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("feed.json", doc); err != nil {
		panic(err)
	}
	schema, err := c.Compile("feed.json")
	if err != nil {
		panic(err)
	}
	return schema
}
