// Package callback turns the start/end/error callbacks of a workflow
// framework into a tree of log entries. Chains become group entries,
// model and retriever runs become children of the chain that started them.
package callback

import (
	"strings"
	"sync"
	"time"

	"finetunedb/internal/ingest"
	"finetunedb/internal/models"
	"finetunedb/internal/utils"
)

// Source identifies logs produced by the callback handler
const Source = "workflow"

// Logs is the part of the ingestion client the handler needs
type Logs interface {
	EnqueueCreate(payload *models.LogCreatePayload) string
	EnqueueUpdate(id string, payload *models.LogUpdatePayload)
	Lookup(id string) (ingest.EventTimes, bool)
}

type run struct {
	logID   string
	logType models.LogType
	started time.Time
}

// Handler maps run ids onto log ids. It is safe for concurrent use.
type Handler struct {
	logs      Logs
	projectID string
	now       func() time.Time
	logger    *utils.Logger

	mu      sync.Mutex
	runs    map[string]*run
	rootRun string
}

// Option configures a Handler
type Option func(*Handler)

// WithClock overrides the time source used for local latency
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLogger sets the handler logger
func WithLogger(l *utils.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a handler that logs into projectID
func NewHandler(logs Logs, projectID string, opts ...Option) *Handler {
	h := &Handler{
		logs:      logs,
		projectID: projectID,
		now:       time.Now,
		logger:    utils.NewLogger("callback"),
		runs:      make(map[string]*run),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// LogID returns the log id assigned to runID
func (h *Handler) LogID(runID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.runs[runID]
	if !ok {
		return "", false
	}
	return r.logID, true
}

// ChainStart opens a chain. The first chain without a parent becomes the
// root group; runs without a parent started later attach to it.
func (h *Handler) ChainStart(chain Serialized, inputs map[string]any, info Run) {
	h.start(info, models.LogTypeOther, func(p *models.LogCreatePayload) {
		p.Name = chain.name()
		p.Input = inputs
		p.Output = ""
	}, info.ParentRunID == "")
}

// ChainEnd records the chain outputs
func (h *Handler) ChainEnd(outputs map[string]any, runID string) {
	h.end(runID, func(p *models.LogUpdatePayload, _ *run) {
		p.Output = outputs
	})
}

// ChainError records a chain failure
func (h *Handler) ChainError(err error, runID string) {
	h.end(runID, func(p *models.LogUpdatePayload, _ *run) {
		p.Error = err.Error()
	})
}

// LLMStart opens a text completion run
func (h *Handler) LLMStart(llm Serialized, prompts []string, params InvocationParams, info Run) {
	h.start(info, models.LogTypeCompletion, func(p *models.LogCreatePayload) {
		p.Name = llm.name()
		p.Provider = llm.provider()
		p.Model = params.Model
		p.ModelParameters = params.modelParameters(llm.provider())
		p.Input = map[string]any{"prompt": strings.Join(prompts, "")}
	}, false)
}

// ChatModelStart opens a chat completion run. Only the first message list is logged.
func (h *Handler) ChatModelStart(llm Serialized, messages [][]Message, params InvocationParams, info Run) {
	input := []Message{}
	if len(messages) > 0 {
		input = messages[0]
	}
	h.start(info, models.LogTypeChatCompletion, func(p *models.LogCreatePayload) {
		p.Name = llm.name()
		p.Provider = llm.provider()
		p.Model = params.Model
		p.ModelParameters = params.modelParameters(llm.provider())
		p.Input = map[string]any{"messages": input}
	}, false)
}

// LLMEnd records the last generation of a model run. A generation that
// carries a chat message is logged as a chat completion, anything else as
// plain completion text.
func (h *Handler) LLMEnd(result LLMResult, runID string) {
	h.end(runID, func(p *models.LogUpdatePayload, _ *run) {
		gen, ok := result.last()
		switch {
		case !ok:
			p.Output = ""
		case gen.Text == "" && gen.Message != nil:
			p.Type = models.LogTypeChatCompletion
			p.Output = []Message{{Role: RoleAssistant, Content: gen.Message.Content}}
		default:
			p.Type = models.LogTypeCompletion
			p.Output = gen.Text
		}
	})
}

// LLMError records a model failure
func (h *Handler) LLMError(err error, runID string) {
	h.end(runID, func(p *models.LogUpdatePayload, r *run) {
		p.Error = err.Error()
		p.Type = r.logType
	})
}

// RetrieverStart opens a retrieval run
func (h *Handler) RetrieverStart(retriever Serialized, query string, info Run) {
	h.start(info, models.LogTypeOther, func(p *models.LogCreatePayload) {
		p.Name = retriever.name()
		p.Input = query
		p.Output = ""
	}, false)
}

// RetrieverEnd records the retrieved documents
func (h *Handler) RetrieverEnd(documents []Document, runID string) {
	h.end(runID, func(p *models.LogUpdatePayload, _ *run) {
		if documents == nil {
			documents = []Document{}
		}
		p.Output = documents
	})
}

// RetrieverError records a retrieval failure
func (h *Handler) RetrieverError(err error, runID string) {
	h.end(runID, func(p *models.LogUpdatePayload, _ *run) {
		p.Error = err.Error()
	})
}

func (h *Handler) start(info Run, typ models.LogType, fill func(*models.LogCreatePayload), rootCandidate bool) {
	tags := info.Tags
	if tags == nil {
		tags = []string{}
	}
	payload := &models.LogCreatePayload{
		ProjectID: h.projectID,
		Tags:      tags,
		Source:    Source,
		Type:      typ,
		Metadata:  runMetadata(info),
	}
	fill(payload)

	h.mu.Lock()
	defer h.mu.Unlock()

	payload.ParentID = h.parentLogID(info.ParentRunID)
	id := h.logs.EnqueueCreate(payload)
	if id == "" {
		h.logger.Debug("Run not logged", "run_id", info.RunID)
		return
	}
	h.runs[info.RunID] = &run{logID: id, logType: typ, started: h.now()}
	if rootCandidate && h.rootRun == "" {
		h.rootRun = info.RunID
	}
}

// parentLogID resolves the log a new run hangs under. Caller holds h.mu.
func (h *Handler) parentLogID(parentRunID string) string {
	if parentRunID != "" {
		if r, ok := h.runs[parentRunID]; ok {
			return r.logID
		}
		return ""
	}
	if r, ok := h.runs[h.rootRun]; ok {
		return r.logID
	}
	return ""
}

func (h *Handler) end(runID string, fill func(*models.LogUpdatePayload, *run)) {
	h.mu.Lock()
	r, ok := h.runs[runID]
	if ok {
		delete(h.runs, runID)
		if runID == h.rootRun {
			h.rootRun = ""
		}
	}
	h.mu.Unlock()

	if !ok {
		h.logger.Debug("End of unknown run ignored", "run_id", runID)
		return
	}

	payload := &models.LogUpdatePayload{
		ProjectID: h.projectID,
		Source:    Source,
		LatencyMs: models.Ptr(h.latency(r).Milliseconds()),
	}
	fill(payload, r)
	h.logs.EnqueueUpdate(r.logID, payload)
}

// latency measures from the server creation time once the create has been
// acknowledged, and from the local start time before that.
func (h *Handler) latency(r *run) time.Duration {
	start := r.started
	if times, ok := h.logs.Lookup(r.logID); ok && !times.CreatedAt.IsZero() {
		start = times.CreatedAt
	}
	d := h.now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

func runMetadata(info Run) map[string]any {
	md := make(map[string]any, len(info.Metadata)+2)
	for k, v := range info.Metadata {
		md[k] = v
	}
	md["runId"] = info.RunID
	if info.ParentRunID != "" {
		md["parentRunId"] = info.ParentRunID
	}
	return md
}

func (p InvocationParams) modelParameters(provider string) *models.ModelParameters {
	return &models.ModelParameters{
		Provider:         provider,
		Model:            p.Model,
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		StopSequences:    p.Stop,
		PresencePenalty:  p.PresencePenalty,
		FrequencyPenalty: p.FrequencyPenalty,
	}
}
