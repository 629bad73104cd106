package instrument

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"finetunedb/internal/models"
)

const providerOpenAI = "openai"

// OpenAI wraps an OpenAI client
type OpenAI struct {
	client *openai.Client
	logs   Logs
}

// NewOpenAI creates a wrapper around client that logs to logs
func NewOpenAI(client *openai.Client, logs Logs) *OpenAI {
	return &OpenAI{client: client, logs: logs}
}

// ChatCompletion calls the chat completions API and logs the call.
// It returns the log id, which is empty when nothing was logged.
func (o *OpenAI) ChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams, opts LogOptions) (*openai.ChatCompletion, string, error) {
	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)

	if opts.Disabled || !loggableOpenAIError(err) {
		return resp, "", err
	}

	id := o.logs.EnqueueCreate(chatPayload(params, resp, err, latency, opts))
	return resp, id, err
}

// ChatCompletionStream starts a streaming chat completion. The call is logged
// once, when the stream is exhausted or closed.
func (o *OpenAI) ChatCompletionStream(ctx context.Context, params openai.ChatCompletionNewParams, opts LogOptions) *ChatStream {
	return &ChatStream{
		stream: o.client.Chat.Completions.NewStreaming(ctx, params),
		logs:   o.logs,
		params: params,
		opts:   opts,
		start:  time.Now(),
	}
}

// Embedding calls the embeddings API and logs the call
func (o *OpenAI) Embedding(ctx context.Context, params openai.EmbeddingNewParams, opts LogOptions) (*openai.CreateEmbeddingResponse, string, error) {
	start := time.Now()
	resp, err := o.client.Embeddings.New(ctx, params)
	latency := time.Since(start)

	if opts.Disabled || !loggableOpenAIError(err) {
		return resp, "", err
	}

	rp := readParams(params)
	payload := opts.payload(models.LogTypeEmbedding, providerOpenAI, latency)
	payload.Model = rp.Model
	payload.ModelParameters = &models.ModelParameters{Provider: providerOpenAI, Model: rp.Model}
	payload.Input = rawOrNil(rp.Input)

	if err != nil {
		payload.Error = err.Error()
	} else if resp != nil {
		vectors := make([][]float64, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		payload.Output = vectors
		payload.InputTokenCount = resp.Usage.PromptTokens
		if resp.Model != "" {
			payload.Model = resp.Model
		}
	}

	id := o.logs.EnqueueCreate(payload)
	return resp, id, err
}

// loggableOpenAIError reports whether a call outcome should be logged:
// successes and errors returned by the API. Transport failures and
// cancellations never reached the model and are not logged.
func loggableOpenAIError(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *openai.Error
	return errors.As(err, &apiErr)
}

func chatPayload(params openai.ChatCompletionNewParams, resp *openai.ChatCompletion, callErr error, latency time.Duration, opts LogOptions) *models.LogCreatePayload {
	rp := readParams(params)

	payload := opts.payload(models.LogTypeChatCompletion, providerOpenAI, latency)
	payload.Model = rp.Model
	payload.ModelParameters = rp.modelParameters(providerOpenAI)
	payload.Input = rawOrNil(rp.Messages)

	if callErr != nil {
		payload.Error = callErr.Error()
		payload.Output = []any{}
		return payload
	}
	if resp == nil {
		payload.Output = []any{}
		return payload
	}

	if len(resp.Choices) > 0 {
		payload.Output = []any{assistantMessage(resp.Choices[0].Message)}
	} else {
		payload.Output = []any{}
	}
	payload.InputTokenCount = resp.Usage.PromptTokens
	payload.OutputTokenCount = resp.Usage.CompletionTokens
	return payload
}

// assistantMessage renders a response message in the chat request format
func assistantMessage(msg openai.ChatCompletionMessage) map[string]any {
	out := map[string]any{
		"role":    "assistant",
		"content": msg.Content,
	}
	if msg.Refusal != "" {
		out["refusal"] = msg.Refusal
	}
	if len(msg.ToolCalls) > 0 {
		calls := make([]map[string]any, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			calls[i] = map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Function.Name,
					"arguments": tc.Function.Arguments,
				},
			}
		}
		out["tool_calls"] = calls
	}
	return out
}

// ChatStream is a streaming chat completion that logs itself when it ends
type ChatStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	acc    openai.ChatCompletionAccumulator
	logs   Logs
	params openai.ChatCompletionNewParams
	opts   LogOptions
	start  time.Time

	chunks   int
	reported bool
	logID    string
}

// Next advances to the next chunk
func (s *ChatStream) Next() bool {
	if s.stream.Next() {
		s.acc.AddChunk(s.stream.Current())
		s.chunks++
		return true
	}
	s.report()
	return false
}

// Current returns the current chunk
func (s *ChatStream) Current() openai.ChatCompletionChunk {
	return s.stream.Current()
}

// Err returns the stream error, if any
func (s *ChatStream) Err() error {
	return s.stream.Err()
}

// Close closes the stream and logs it if that has not happened yet
func (s *ChatStream) Close() error {
	err := s.stream.Close()
	s.report()
	return err
}

// LogID returns the id of the log entry, available once the stream has ended
func (s *ChatStream) LogID() string {
	return s.logID
}

func (s *ChatStream) report() {
	if s.reported {
		return
	}
	s.reported = true

	streamErr := s.stream.Err()
	if s.opts.Disabled || !loggableOpenAIError(streamErr) {
		return
	}

	var resp *openai.ChatCompletion
	if s.chunks > 0 {
		completion := s.acc.ChatCompletion
		resp = &completion
	}
	s.logID = s.logs.EnqueueCreate(chatPayload(s.params, resp, streamErr, time.Since(s.start), s.opts))
}
