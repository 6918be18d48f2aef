package contract

import (
	"encoding/json"
	"strings"
)

type ToolRequest struct {
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
}

// ToolResult is the dual-channel answer of a tool: Content is what the model
// reads, Artifact is the structured payload kept for follow-up reasoning.
type ToolResult struct {
	Tool      string `json:"tool"`
	Content   string `json:"content,omitempty"`
	Artifact  any    `json:"artifact,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (r ToolResult) Failed() bool {
	return strings.TrimSpace(r.Error) != ""
}

// ModelContent renders the result as the text handed back to the chat model.
func (r ToolResult) ModelContent() string {
	if !r.Failed() {
		return r.Content
	}

	payload := map[string]any{"error": r.Error}
	if r.ErrorKind != "" {
		payload["kind"] = r.ErrorKind
	}
	if r.Artifact != nil {
		payload["details"] = r.Artifact
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return r.Error
	}
	return string(b)
}
