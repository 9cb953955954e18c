package gatewayapi

import "encoding/json"

// BuildUpstreamBody assembles the JSON body the upstream eventstream
// endpoint expects. Spec §2 calls the request-shape converter an
// external collaborator, out of the core's scope; this is a minimal,
// direct translation so the binary in cmd/gatewaysrv is runnable
// end-to-end, not a faithful reimplementation of that external piece.
func (r *AnthropicRequest) BuildUpstreamBody() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"model":         r.Model,
		"messages":      r.Messages,
		"maxTokens":     r.MaxTokens,
		"system":        json.RawMessage(r.System),
		"temperature":   r.Temperature,
		"topP":          r.TopP,
		"topK":          r.TopK,
		"stopSequences": r.StopSequences,
		"tools":         r.Tools,
		"toolChoice":    json.RawMessage(r.ToolChoice),
	})
}

func (r *OpenAIRequest) BuildUpstreamBody() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"model":     r.Model,
		"messages":  r.Messages,
		"tools":     r.Tools,
		"maxTokens": r.MaxTokens,
	})
}
