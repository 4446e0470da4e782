package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sashabaranov/go-openai"
)

// Extracted is the structured record produced by an extraction call.
// Fields are pointers so that a field the model did not produce stays
// unresolved instead of collapsing into an empty string.
type Extracted struct {
	URL     *string `json:"url"`
	Summary *string `json:"summary"`
}

// HasURL reports whether the model resolved a non-empty URL.
func (e *Extracted) HasURL() bool {
	return e != nil && e.URL != nil && strings.TrimSpace(*e.URL) != ""
}

// HasSummary reports whether the model produced a non-empty summary.
func (e *Extracted) HasSummary() bool {
	return e != nil && e.Summary != nil && strings.TrimSpace(*e.Summary) != ""
}

// extractedSchema type-checks the response record. Neither field is
// required: absence is a legitimate "unresolved" outcome handled by the
// caller, while a present field of the wrong type is a protocol error.
const extractedSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string"},
		"summary": {"type": "string"}
	}
}`

var compiledExtractedSchema = jsonschema.MustCompileString("extracted.schema.json", extractedSchema)

// Extract sends instruction+input to the model with the response format
// pinned to a JSON object and parses the result into an Extracted record.
// Each call is an ephemeral sub-session: no history is kept between calls
// and nothing said here ever reaches a persisted conversation.
//
// An error means the call or the parse failed; an Extracted with nil
// fields means the model could not resolve them. Callers must treat both
// as "extraction failed" outcomes, not exceptions.
func (c *Client) Extract(ctx context.Context, instruction, input string) (*Extracted, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm: extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: extraction returned no choices")
	}

	return decodeExtracted(resp.Choices[0].Message.Content)
}

// decodeExtracted parses and schema-validates the model's JSON output.
func decodeExtracted(content string) (*Extracted, error) {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("llm: extraction output is not JSON: %w (raw: %.200s)", err, content)
	}
	if err := compiledExtractedSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("llm: extraction output rejected by schema: %w", err)
	}

	var e Extracted
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return nil, fmt.Errorf("llm: decode extraction record: %w", err)
	}
	return &e, nil
}

