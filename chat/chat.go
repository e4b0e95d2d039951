// Package chat provides the OpenAI-chat-completions wire types and the
// completion backend client used by the chat proxy. The proxy forwards
// requests and advertises registered tools; it never executes tool calls
// itself. Those come back verbatim for the caller to invoke and feed into
// a follow-up turn.
package chat

import "encoding/json"

// CompletionRequest is the body of POST /v1/chat/completions.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  any       `json:"tool_choice,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	User        string    `json:"user,omitempty"`
}

// Message is one turn in the conversation, optionally carrying prior
// tool-call records.
type Message struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a backend request to invoke a tool by name with arguments.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a function declaration advertised to the backend.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes one invocable function.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// CompletionResponse is the backend's non-streaming response, returned to
// the caller verbatim.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage holds token usage reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CountableText exposes the billable text of the request for usage-derived
// pricing: every message content plus any embedded tool-call arguments.
func (r *CompletionRequest) CountableText() []string {
	var texts []string
	for _, msg := range r.Messages {
		switch content := msg.Content.(type) {
		case string:
			texts = append(texts, content)
		case []any:
			// Multi-part content: collect the text parts.
			for _, part := range content {
				m, ok := part.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := m["text"].(string); ok {
					texts = append(texts, text)
				}
			}
		}
		for _, call := range msg.ToolCalls {
			texts = append(texts, call.Function.Name, call.Function.Arguments)
		}
	}
	return texts
}
