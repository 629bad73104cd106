package instrument

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"finetunedb/internal/models"
)

const providerAnthropic = "anthropic"

// Anthropic wraps an Anthropic client
type Anthropic struct {
	client *anthropic.Client
	logs   Logs
}

// NewAnthropic creates a wrapper around client that logs to logs
func NewAnthropic(client *anthropic.Client, logs Logs) *Anthropic {
	return &Anthropic{client: client, logs: logs}
}

// Message calls the messages API and logs the call as a chat completion
func (a *Anthropic) Message(ctx context.Context, params anthropic.MessageNewParams, opts LogOptions) (*anthropic.Message, string, error) {
	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	latency := time.Since(start)

	var apiErr *anthropic.Error
	if opts.Disabled || (err != nil && !errors.As(err, &apiErr)) {
		return resp, "", err
	}

	rp := readParams(params)
	payload := opts.payload(models.LogTypeChatCompletion, providerAnthropic, latency)
	payload.Model = rp.Model
	payload.ModelParameters = rp.modelParameters(providerAnthropic)
	if system := rawOrNil(rp.System); system != nil {
		payload.Input = map[string]any{"system": system, "messages": rawOrNil(rp.Messages)}
	} else {
		payload.Input = rawOrNil(rp.Messages)
	}

	switch {
	case err != nil:
		payload.Error = err.Error()
		payload.Output = []any{}
	case resp != nil:
		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		payload.Output = []any{map[string]any{"role": "assistant", "content": text.String()}}
		payload.InputTokenCount = resp.Usage.InputTokens
		payload.OutputTokenCount = resp.Usage.OutputTokens
	}

	id := a.logs.EnqueueCreate(payload)
	return resp, id, err
}
