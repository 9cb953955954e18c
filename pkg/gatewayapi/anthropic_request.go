// Package gatewayapi defines the client-facing request/response shapes
// for both protocols the gateway accepts (spec §6's "request-shape
// carrier structs", noted in SPEC_FULL.md §3 as an addition the
// distilled spec leaves to an external collaborator) and the §4.D
// input-token estimation that reads them.
package gatewayapi

import (
	"encoding/json"

	"github.com/kiro-gateway/gateway/pkg/gatewaystream"
)

// AnthropicContentBlock covers the block shapes that appear in request
// message content: text, tool_use (assistant history), tool_result
// (user history).
type AnthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // tool_result: string or []block
}

// AnthropicMessage is one turn; Content may arrive as a bare string or
// as an array of AnthropicContentBlock.
type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// AnthropicTool is a client-declared tool definition.
type AnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// AnthropicRequest is the POST /v1/messages body (spec §6).
type AnthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        json.RawMessage    `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []AnthropicTool    `json:"tools,omitempty"`
	ToolChoice    json.RawMessage    `json:"tool_choice,omitempty"`
}

// EstimateInputTokens implements spec §4.D's request-side accountancy:
// 4 structural tokens per message plus recursive content tokens, plus
// a 20-token structural surcharge per declared tool.
func (r *AnthropicRequest) EstimateInputTokens() int {
	total := 0
	if len(r.System) > 0 {
		total += gatewaystream.MessageStructuralTokens(systemTokens(r.System))
	}
	for _, m := range r.Messages {
		total += gatewaystream.MessageStructuralTokens(messageContentTokens(m.Content))
	}
	for _, t := range r.Tools {
		total += gatewaystream.ToolDefinitionTokens(t.Name, t.Description, string(t.InputSchema))
	}
	return total
}

func systemTokens(raw json.RawMessage) int {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return gatewaystream.TextTokens(s)
	}
	// System prompts may also arrive as an array of content blocks.
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return contentBlockTokens(blocks)
	}
	return 0
}

// messageContentTokens accepts either a bare string or an array of
// content blocks, mirroring the client wire shape's flexibility.
func messageContentTokens(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return gatewaystream.TextTokens(s)
	}
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return contentBlockTokens(blocks)
	}
	return 0
}

func contentBlockTokens(blocks []AnthropicContentBlock) int {
	total := 0
	for _, b := range blocks {
		switch b.Type {
		case "text":
			total += gatewaystream.TextTokens(b.Text)
		case "tool_use":
			total += gatewaystream.ToolUseStartTokens(b.Name) + gatewaystream.TextTokens(string(b.Input))
		case "tool_result":
			total += gatewaystream.ToolResultTokens(toolResultInnerTexts(b.Content))
		}
	}
	return total
}

func toolResultInnerTexts(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		texts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Type == "text" {
				texts = append(texts, b.Text)
			}
		}
		return texts
	}
	return nil
}
