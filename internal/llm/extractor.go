package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engramdb/engram/pkg/types"
)

// Extractor turns conversation transcripts into candidate memories using
// a text generation model. Malformed candidates are skipped rather than
// failing the whole batch.
type Extractor struct {
	generator TextGenerator
}

// NewExtractor creates an Extractor backed by the given text generator.
func NewExtractor(generator TextGenerator) *Extractor {
	return &Extractor{generator: generator}
}

// Extract asks the model for candidate memories from the conversation.
// Returns an empty slice when the conversation is empty.
func (e *Extractor) Extract(ctx context.Context, messages []types.ConversationMessage) ([]types.CandidateMemory, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	prompt := BuildExtractionPrompt(messages)
	response, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extraction completion failed: %w", err)
	}

	return ParseCandidates(response)
}

// ParseCandidates parses the model response into candidate memories.
// The response may wrap the JSON array in markdown fences or prose; the
// parser locates the array and ignores surrounding text. Candidates with
// empty content or an unknown memory type are dropped, and scores are
// clamped to [0,1].
func ParseCandidates(response string) ([]types.CandidateMemory, error) {
	jsonStr := extractJSONArray(response)

	var raw []types.CandidateMemory
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response as JSON: %w", err)
	}

	candidates := make([]types.CandidateMemory, 0, len(raw))
	for _, c := range raw {
		c.Content = strings.TrimSpace(c.Content)
		if c.Content == "" {
			continue
		}
		if !types.IsValidMemoryType(c.MemoryType) {
			continue
		}
		if c.Importance == 0 {
			c.Importance = 0.5
		}
		if c.Confidence == 0 {
			c.Confidence = 0.8
		}
		c.Importance = types.Clamp01(c.Importance)
		c.Confidence = types.Clamp01(c.Confidence)

		contexts := c.Contexts[:0]
		for _, cx := range c.Contexts {
			if types.IsValidContext(cx) {
				contexts = append(contexts, cx)
			}
		}
		c.Contexts = contexts

		candidates = append(candidates, c)
	}

	return candidates, nil
}

// extractJSONArray finds the first complete JSON array in text, skipping
// markdown code block markers and any leading or trailing prose.
func extractJSONArray(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "[")
	if start == -1 {
		return text // No array found, return as-is and let parser fail
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete array found, return as-is
}
