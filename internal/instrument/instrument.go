// Package instrument wraps model SDK calls so that every call is logged
// through the ingestion queue. Logging never changes what the SDK returns.
package instrument

import (
	"encoding/json"
	"time"

	"finetunedb/internal/models"
)

// Source identifies logs produced by this package
const Source = "finetunedb-go"

// Logs is the part of the ingestion client the wrappers need
type Logs interface {
	EnqueueCreate(payload *models.LogCreatePayload) string
	EnqueueUpdate(id string, payload *models.LogUpdatePayload)
}

// LogOptions are per-call logging settings
type LogOptions struct {
	ProjectID string
	ParentID  string
	Name      string
	Tags      []string
	Metadata  map[string]any

	// Disabled skips logging for this call
	Disabled bool
}

func (o LogOptions) payload(typ models.LogType, provider string, latency time.Duration) *models.LogCreatePayload {
	return &models.LogCreatePayload{
		ProjectID: o.ProjectID,
		ParentID:  o.ParentID,
		Name:      o.Name,
		Tags:      o.Tags,
		Metadata:  o.Metadata,
		Provider:  provider,
		Source:    Source,
		Type:      typ,
		LatencyMs: latency.Milliseconds(),
	}
}

// requestParams is the provider-neutral view of a request body.
// SDK param structs are read through their JSON form.
type requestParams struct {
	Model               string          `json:"model"`
	Messages            json.RawMessage `json:"messages"`
	System              json.RawMessage `json:"system"`
	Input               json.RawMessage `json:"input"`
	MaxTokens           *int64          `json:"max_tokens"`
	MaxCompletionTokens *int64          `json:"max_completion_tokens"`
	Temperature         *float64        `json:"temperature"`
	TopP                *float64        `json:"top_p"`
	Stop                json.RawMessage `json:"stop"`
	StopSequences       []string        `json:"stop_sequences"`
	PresencePenalty     *float64        `json:"presence_penalty"`
	FrequencyPenalty    *float64        `json:"frequency_penalty"`
}

func readParams(params any) requestParams {
	var rp requestParams
	data, err := json.Marshal(params)
	if err != nil {
		return rp
	}
	json.Unmarshal(data, &rp)
	return rp
}

func (rp requestParams) modelParameters(provider string) *models.ModelParameters {
	mp := &models.ModelParameters{
		Provider:         provider,
		Model:            rp.Model,
		MaxTokens:        rp.MaxTokens,
		Temperature:      rp.Temperature,
		TopP:             rp.TopP,
		StopSequences:    rp.stopSequences(),
		PresencePenalty:  rp.PresencePenalty,
		FrequencyPenalty: rp.FrequencyPenalty,
	}
	if mp.MaxTokens == nil {
		mp.MaxTokens = rp.MaxCompletionTokens
	}
	return mp
}

// stopSequences accepts the single string and the array forms of "stop"
func (rp requestParams) stopSequences() []string {
	if len(rp.StopSequences) > 0 {
		return rp.StopSequences
	}
	if len(rp.Stop) == 0 {
		return nil
	}
	var many []string
	if err := json.Unmarshal(rp.Stop, &many); err == nil {
		return many
	}
	var one string
	if err := json.Unmarshal(rp.Stop, &one); err == nil && one != "" {
		return []string{one}
	}
	return nil
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
