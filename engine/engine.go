package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
	"github.com/vitalplane/agentmem/memory"
)

// MessagesAPI is the slice of the Anthropic client the engine needs. The
// production client satisfies it via client.Messages; tests substitute a fake.
type MessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// MessageService.New has a pointer receiver, so callers wire &client.Messages.
var _ MessagesAPI = (*anthropic.MessageService)(nil)

const defaultSystemPrompt = `You are a personal health assistant with access to the user's health data through tools.

Ground every factual claim about the user's data in tool output. When the user asks about their metrics (steps, heart rate, sleep, workouts, calories), call the relevant tool rather than guessing or recalling. Quote numeric values exactly as the tools report them.`

const tooComplexMessage = "This query needed more steps than I can run in one turn. Could you break it into smaller questions?"

const dateCorrectionPrompt = `Your previous answer mentioned a date that does not match the user's question. The user asked about: %s. Rewrite your answer using only dates taken from the question.`

const numericCorrectionPrompt = `Your previous answer contained numbers that do not appear in the tool results. Rewrite it quoting the numeric values from the tool results verbatim. Tool results:
%s`

// Engine runs the memory-augmented tool-calling loop: retrieve context, let
// the model call tools until it produces text, validate the text, store the
// interaction back into memory.
type Engine struct {
	llm          MessagesAPI
	registry     *ToolRegistry
	coordinator  *memory.Coordinator
	validator    *Validator
	cfg          *config.Config
	systemPrompt string
	log          *logrus.Entry
}

// Option configures the engine.
type Option func(*Engine)

// WithCoordinator attaches the memory coordinator. Without one the engine
// still answers, just without memory context or write-back.
func WithCoordinator(c *memory.Coordinator) Option {
	return func(e *Engine) {
		e.coordinator = c
	}
}

// WithValidator attaches a hallucination validator.
func WithValidator(v *Validator) Option {
	return func(e *Engine) {
		e.validator = v
	}
}

// WithSystemPrompt overrides the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) {
		e.log = log.WithField("component", "engine")
	}
}

// New creates an engine bound to an LLM endpoint and a tool registry.
func New(llm MessagesAPI, registry *ToolRegistry, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		llm:          llm,
		registry:     registry,
		cfg:          cfg,
		systemPrompt: defaultSystemPrompt,
		log:          logrus.New().WithField("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *ToolRegistry {
	return e.registry
}

// Input is one user turn to process.
type Input struct {
	UserID  string
	Session *Session
	Query   string
}

// Output is the result of one turn.
type Output struct {
	// Text is the final answer shown to the user.
	Text string

	// ToolsUsed records every tool invocation in execution order.
	ToolsUsed []core.ToolExecution

	// Iterations is the number of LLM round trips consumed.
	Iterations int

	// Validation is the combined validation verdict, nil when no validator
	// is attached.
	Validation *core.ValidationResult

	// Retried reports whether a correction retry was issued.
	Retried bool

	// Memory is the context that was injected into the turn.
	Memory *core.MemoryContext

	// DurationMs is wall-clock time for the whole turn.
	DurationMs int64
}

// Run processes one user turn end to end.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.Query) == "" {
		return nil, core.NewOpError("engine.run", fmt.Errorf("%w: empty query", core.ErrInvalidInput))
	}
	session := input.Session
	if session == nil {
		session = NewSession(input.UserID, uuid.NewString())
	}

	start := time.Now()
	out := &Output{}

	// Retrieve memory context before the first model call. Factual data
	// queries skip long-term lookup so stale memory can never answer a
	// question the tools should.
	var memCtx *core.MemoryContext
	if e.coordinator != nil {
		skip := e.coordinator.ClassifyQuery(input.Query)
		memCtx = e.coordinator.RetrieveContext(ctx, input.UserID, session.ConversationID, input.Query, skip)
		out.Memory = memCtx
	}

	systemPrompt := e.systemPrompt
	if memCtx != nil {
		if rendered := memCtx.Render(); rendered != "" {
			systemPrompt += "\n\n" + rendered
		}
	}

	session.AddUserMessage(input.Query)

	apiTools := e.registry.ToAPITools()

	var finalText string
	var toolOutputs []string

	for {
		if ctx.Err() != nil {
			return out, core.NewOpError("engine.run", fmt.Errorf("%w: %v", core.ErrLLMService, ctx.Err()))
		}
		if out.Iterations >= e.cfg.MaxIterations {
			e.log.WithField("iterations", out.Iterations).Warn("iteration cap reached")
			finalText = tooComplexMessage
			break
		}
		out.Iterations++

		resp, err := e.llm.New(ctx, e.newParams(session, systemPrompt, apiTools))
		if err != nil {
			return out, core.NewOpError("engine.run", fmt.Errorf("%w: %v", core.ErrLLMService, err))
		}

		var toolResults []anthropic.ContentBlockParamUnion
		var text string

		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text += block.Text

			case "tool_use":
				exec := e.executeTool(ctx, block.Name, block.Input)
				out.ToolsUsed = append(out.ToolsUsed, exec)
				if exec.Error != "" {
					toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, exec.Error, true))
				} else {
					toolOutputs = append(toolOutputs, exec.Output)
					toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, exec.Output, false))
				}
			}
		}

		session.AddAssistantResponse(resp)

		if len(toolResults) == 0 {
			finalText = text
			break
		}
		session.AddToolResults(toolResults)
	}

	if e.validator != nil && finalText != tooComplexMessage {
		finalText, out.Validation, out.Retried = e.validateAndRetry(ctx, session, systemPrompt, input.Query, finalText, toolOutputs)
	}

	out.Text = finalText
	out.DurationMs = time.Since(start).Milliseconds()

	if e.coordinator != nil {
		toolNames := make([]string, 0, len(out.ToolsUsed))
		for _, t := range out.ToolsUsed {
			toolNames = append(toolNames, t.Tool)
		}
		results := e.coordinator.StoreInteraction(ctx, input.UserID, session.ConversationID,
			input.Query, finalText, toolNames, out.DurationMs, successScore(out))
		for mem, err := range results {
			if err != nil {
				e.log.WithField("memory", mem).WithError(err).Warn("interaction store failed")
			}
		}
	}

	return out, nil
}

// executeTool runs one requested tool. Failures become error tool-results so
// the model can adapt; they never abort the turn.
func (e *Engine) executeTool(ctx context.Context, name string, rawInput json.RawMessage) core.ToolExecution {
	exec := core.ToolExecution{Tool: name}
	toolStart := time.Now()
	defer func() {
		exec.DurationMs = time.Since(toolStart).Milliseconds()
	}()

	var args map[string]any
	if len(rawInput) > 0 {
		if err := json.Unmarshal(rawInput, &args); err != nil {
			exec.Error = fmt.Sprintf("invalid tool input JSON: %s", err)
			return exec
		}
	}
	exec.Input = args

	tool, ok := e.registry.Get(name)
	if !ok {
		exec.Error = fmt.Sprintf("unknown tool: %s", name)
		return exec
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		e.log.WithField("tool", name).WithError(err).Warn("tool execution failed")
		exec.Error = fmt.Sprintf("tool %s failed: %s", name, err)
		return exec
	}
	exec.Output = result
	return exec
}

// validateAndRetry runs the date check then the numeric check, issuing at
// most one correction retry per check. A failed retry keeps the original
// answer rather than erroring; the verdict reflects the returned text.
func (e *Engine) validateAndRetry(ctx context.Context, session *Session, systemPrompt, query, text string, toolOutputs []string) (string, *core.ValidationResult, bool) {
	retried := false

	if dc := e.validator.CheckDates(query, text); !dc.ok {
		e.log.WithFields(logrus.Fields{
			"query_dates": dc.queryDates,
			"mismatches":  dc.mismatches,
		}).Warn("date mismatch, retrying")
		prompt := fmt.Sprintf(dateCorrectionPrompt, query)
		if corrected, ok := e.retry(ctx, session, systemPrompt, prompt); ok {
			text = corrected
		}
		retried = true
	}

	if !retried {
		nc := e.validator.CheckNumbers(text, toolOutputs)
		if nc.score == 0 && nc.total > 0 && len(toolOutputs) > 0 {
			e.log.WithField("unmatched", nc.unmatched).Warn("numeric mismatch, retrying")
			prompt := fmt.Sprintf(numericCorrectionPrompt, strings.Join(toolOutputs, "\n"))
			if corrected, ok := e.retry(ctx, session, systemPrompt, prompt); ok {
				text = corrected
			}
			retried = true
		}
	}

	// The retried text is re-validated, never assumed correct.
	result := e.validator.Validate(query, text, toolOutputs)
	if retried && !result.Valid {
		e.log.Warn("retry did not fix validation, returning low-confidence answer")
	}
	return text, result, retried
}

// retry asks the model to correct its previous answer once. On any failure
// the caller keeps the original text.
func (e *Engine) retry(ctx context.Context, session *Session, systemPrompt, correction string) (string, bool) {
	session.AddUserMessage(correction)

	resp, err := e.llm.New(ctx, e.newParams(session, systemPrompt, nil))
	if err != nil {
		e.log.WithError(err).Warn("correction retry failed")
		return "", false
	}
	session.AddAssistantResponse(resp)

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func (e *Engine) newParams(session *Session, systemPrompt string, tools []anthropic.ToolUnionParam) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.cfg.AnthropicModel),
		MaxTokens: int64(e.cfg.MaxResponseTokens),
		Messages:  session.Messages(),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	return params
}

// successScore folds tool failures and the validation verdict into a single
// learning signal for procedural memory.
func successScore(out *Output) float64 {
	score := 1.0
	if n := len(out.ToolsUsed); n > 0 {
		failed := 0
		for _, t := range out.ToolsUsed {
			if t.Error != "" {
				failed++
			}
		}
		score -= 0.5 * float64(failed) / float64(n)
	}
	if out.Validation != nil {
		score = (score + out.Validation.Score) / 2
		if !out.Validation.Valid {
			score *= 0.5
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
