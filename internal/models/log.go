package models

import (
	"fmt"
	"time"
)

// LogType classifies what kind of operation a log entry describes
type LogType string

const (
	LogTypeChatCompletion LogType = "CHATCOMPLETION"
	LogTypeCompletion     LogType = "COMPLETION"
	LogTypeTool           LogType = "TOOL"
	LogTypeEmbedding      LogType = "EMBEDDING"
	LogTypeOther          LogType = "OTHER"
)

// Valid reports whether t is one of the known log types
func (t LogType) Valid() bool {
	switch t {
	case LogTypeChatCompletion, LogTypeCompletion, LogTypeTool, LogTypeEmbedding, LogTypeOther:
		return true
	}
	return false
}

// ParseLogType converts a string into a LogType. An empty string maps to OTHER.
func ParseLogType(s string) (LogType, error) {
	if s == "" {
		return LogTypeOther, nil
	}
	t := LogType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown log type %q", s)
	}
	return t, nil
}

// ModelParameters are the sampling parameters the model was called with.
// Field names follow the ingestion API, which uses snake_case here.
type ModelParameters struct {
	Provider         string   `json:"provider,omitempty"`
	Model            string   `json:"model,omitempty"`
	MaxTokens        *int64   `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// LogCreatePayload describes a new log entry
type LogCreatePayload struct {
	ID               string           `json:"id"`
	ParentID         string           `json:"parentId,omitempty"`
	Name             string           `json:"name,omitempty"`
	Tags             []string         `json:"tags"`
	Model            string           `json:"model,omitempty"`
	Provider         string           `json:"provider,omitempty"`
	Source           string           `json:"source,omitempty"`
	ProjectID        string           `json:"projectId"`
	ModelParameters  *ModelParameters `json:"modelParameters,omitempty"`
	Type             LogType          `json:"type"`
	Input            any              `json:"input,omitempty"`
	Output           any              `json:"output,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	Error            string           `json:"error,omitempty"`
	LatencyMs        int64            `json:"latencyMs"`
	InputTokenCount  int64            `json:"inputTokenCount,omitempty"`
	OutputTokenCount int64            `json:"outputTokenCount,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// LogUpdatePayload describes a partial change to an existing log entry.
// Only ID is required; nil or empty fields are left untouched by the server.
type LogUpdatePayload struct {
	ID               string           `json:"id"`
	ParentID         string           `json:"parentId,omitempty"`
	Name             string           `json:"name,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	Model            string           `json:"model,omitempty"`
	Provider         string           `json:"provider,omitempty"`
	Source           string           `json:"source,omitempty"`
	ProjectID        string           `json:"projectId,omitempty"`
	ModelParameters  *ModelParameters `json:"modelParameters,omitempty"`
	Type             LogType          `json:"type,omitempty"`
	Input            any              `json:"input,omitempty"`
	Output           any              `json:"output,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	Error            string           `json:"error,omitempty"`
	LatencyMs        *int64           `json:"latencyMs,omitempty"`
	InputTokenCount  *int64           `json:"inputTokenCount,omitempty"`
	OutputTokenCount *int64           `json:"outputTokenCount,omitempty"`
	UpdatedAt        *time.Time       `json:"updatedAt,omitempty"`
}

// Ptr returns a pointer to v. Handy for the optional fields above.
func Ptr[T any](v T) *T {
	return &v
}
