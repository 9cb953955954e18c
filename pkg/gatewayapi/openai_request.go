package gatewayapi

import (
	"encoding/json"

	"github.com/kiro-gateway/gateway/pkg/gatewaystream"
)

// OpenAIFunction is one function declaration inside an OpenAI tools entry.
type OpenAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// OpenAITool is the OpenAI tools array's per-entry wrapper.
type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

// OpenAIMessage is one chat message; Content may be a bare string or
// an array of {type, text} parts.
type OpenAIMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// OpenAIRequest is the POST /v1/chat/completions body (spec §6).
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []OpenAITool    `json:"tools,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

// EstimateInputTokens mirrors AnthropicRequest's estimator (spec §4.D)
// over the OpenAI wire shape.
func (r *OpenAIRequest) EstimateInputTokens() int {
	total := 0
	for _, m := range r.Messages {
		total += gatewaystream.MessageStructuralTokens(openAIContentTokens(m.Content))
	}
	for _, t := range r.Tools {
		total += gatewaystream.ToolDefinitionTokens(t.Function.Name, t.Function.Description, string(t.Function.Parameters))
	}
	return total
}

func openAIContentTokens(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return gatewaystream.TextTokens(s)
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		total := 0
		for _, p := range parts {
			if p.Type == "text" {
				total += gatewaystream.TextTokens(p.Text)
			}
		}
		return total
	}
	return 0
}
