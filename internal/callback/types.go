package callback

import "strings"

// Serialized identifies the component that started a run by its
// namespace path, e.g. ["workflow", "chat_models", "openai", "ChatOpenAI"].
type Serialized struct {
	ID []string `json:"id"`
}

func (s Serialized) name() string {
	return strings.Join(s.ID, ".")
}

// provider is the third path element, where model integrations put their vendor
func (s Serialized) provider() string {
	if len(s.ID) > 2 {
		return s.ID[2]
	}
	return ""
}

// Run carries the identity of a callback invocation
type Run struct {
	RunID       string
	ParentRunID string
	Tags        []string
	Metadata    map[string]any
}

// Role of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a chat message in request format
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// InvocationParams are the model settings a run was started with
type InvocationParams struct {
	Model            string
	MaxTokens        *int64
	Temperature      *float64
	TopP             *float64
	Stop             []string
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// Generation is one candidate produced by a model run.
// Chat models set Message, text models set Text.
type Generation struct {
	Text    string
	Message *Message
}

// LLMResult is the output of a model run, one generation list per prompt
type LLMResult struct {
	Generations [][]Generation
}

func (r LLMResult) last() (Generation, bool) {
	if len(r.Generations) == 0 {
		return Generation{}, false
	}
	gens := r.Generations[len(r.Generations)-1]
	if len(gens) == 0 {
		return Generation{}, false
	}
	return gens[len(gens)-1], true
}

// Document is a retrieved document
type Document struct {
	PageContent string         `json:"pageContent"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
