package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
	"github.com/vitalplane/agentmem/embedding/mock"
	"github.com/vitalplane/agentmem/memory"
	chromemstore "github.com/vitalplane/agentmem/store/chromem"
	"github.com/vitalplane/agentmem/store/rediskv"
)

// fakeLLM replays a scripted sequence of responses. When the script runs out
// it returns err if set, otherwise repeats the last response.
type fakeLLM struct {
	responses []*anthropic.Message
	err       error
	calls     int
	bodies    []anthropic.MessageNewParams
}

func (f *fakeLLM) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.calls++
	f.bodies = append(f.bodies, body)
	if f.calls <= len(f.responses) {
		return f.responses[f.calls-1], nil
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	return f.responses[len(f.responses)-1], nil
}

func textMsg(text string) *anthropic.Message {
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}},
	}
}

func toolMsg(id, name, input string) *anthropic.Message {
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{
			Type:  "tool_use",
			ID:    id,
			Name:  name,
			Input: json.RawMessage(input),
		}},
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func staticTool(name, result string) core.Tool {
	return core.NewFuncTool(core.ToolDefinition{
		ToolName:        name,
		ToolDescription: "test tool",
		Schema:          map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(context.Context, map[string]any) (string, error) {
		return result, nil
	})
}

func failingTool(name string) core.Tool {
	return core.NewFuncTool(core.ToolDefinition{
		ToolName:        name,
		ToolDescription: "test tool",
		Schema:          map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(context.Context, map[string]any) (string, error) {
		return "", errors.New("backend unavailable")
	})
}

func TestRunTextOnlyResponse(t *testing.T) {
	llm := &fakeLLM{responses: []*anthropic.Message{textMsg("Hello there.")}}
	eng := New(llm, NewToolRegistry(), config.Default(), WithLogger(quietLogger()))

	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", out.Text)
	assert.Equal(t, 1, out.Iterations)
	assert.Empty(t, out.ToolsUsed)
}

func TestRunToolCallThenAnswer(t *testing.T) {
	llm := &fakeLLM{responses: []*anthropic.Message{
		toolMsg("tu_1", "get_steps", `{"days": 1}`),
		textMsg("You took 9,200 steps today."),
	}}

	registry := NewToolRegistry()
	require.NoError(t, registry.Register(staticTool("get_steps", "9,200 steps")))

	eng := New(llm, registry, config.Default(), WithLogger(quietLogger()))

	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "how many steps today"})
	require.NoError(t, err)

	assert.Equal(t, "You took 9,200 steps today.", out.Text)
	assert.Equal(t, 2, out.Iterations)
	require.Len(t, out.ToolsUsed, 1)
	assert.Equal(t, "get_steps", out.ToolsUsed[0].Tool)
	assert.Equal(t, "9,200 steps", out.ToolsUsed[0].Output)
	assert.Equal(t, map[string]any{"days": float64(1)}, out.ToolsUsed[0].Input)

	// The second call must carry the tool result back to the model.
	require.Len(t, llm.bodies, 2)
	assert.Greater(t, len(llm.bodies[1].Messages), len(llm.bodies[0].Messages))
}

func TestRunIterationCap(t *testing.T) {
	llm := &fakeLLM{responses: []*anthropic.Message{
		toolMsg("tu_1", "get_steps", `{}`),
	}}

	registry := NewToolRegistry()
	require.NoError(t, registry.Register(staticTool("get_steps", "9,200 steps")))

	cfg := config.Default()
	cfg.MaxIterations = 3
	eng := New(llm, registry, cfg, WithLogger(quietLogger()))

	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "loop forever"})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Iterations)
	assert.Equal(t, tooComplexMessage, out.Text)
	assert.Len(t, out.ToolsUsed, 3)
}

func TestRunToolErrorIsNonFatal(t *testing.T) {
	llm := &fakeLLM{responses: []*anthropic.Message{
		toolMsg("tu_1", "get_sleep", `{}`),
		textMsg("I couldn't reach your sleep data."),
	}}

	registry := NewToolRegistry()
	require.NoError(t, registry.Register(failingTool("get_sleep")))

	eng := New(llm, registry, config.Default(), WithLogger(quietLogger()))

	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "how did I sleep"})
	require.NoError(t, err)

	assert.Equal(t, "I couldn't reach your sleep data.", out.Text)
	require.Len(t, out.ToolsUsed, 1)
	assert.Contains(t, out.ToolsUsed[0].Error, "backend unavailable")
}

func TestRunUnknownToolReportedToModel(t *testing.T) {
	llm := &fakeLLM{responses: []*anthropic.Message{
		toolMsg("tu_1", "get_mood", `{}`),
		textMsg("I don't have that capability."),
	}}

	eng := New(llm, NewToolRegistry(), config.Default(), WithLogger(quietLogger()))

	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "how is my mood"})
	require.NoError(t, err)

	require.Len(t, out.ToolsUsed, 1)
	assert.Contains(t, out.ToolsUsed[0].Error, "unknown tool")
	assert.Equal(t, "I don't have that capability.", out.Text)
}

func TestRunLLMErrorIsFatal(t *testing.T) {
	llm := &fakeLLM{err: errors.New("service unavailable")}
	eng := New(llm, NewToolRegistry(), config.Default(), WithLogger(quietLogger()))

	_, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "hi"})
	assert.ErrorIs(t, err, core.ErrLLMService)
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	eng := New(&fakeLLM{}, NewToolRegistry(), config.Default(), WithLogger(quietLogger()))

	_, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "   "})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRunNumericHallucinationTriggersOneRetry(t *testing.T) {
	llm := &fakeLLM{responses: []*anthropic.Message{
		toolMsg("tu_1", "get_heart_rate", `{}`),
		textMsg("Your average heart rate was 95 bpm."),
		textMsg("Your average heart rate was 72 bpm."),
	}}

	registry := NewToolRegistry()
	require.NoError(t, registry.Register(staticTool("get_heart_rate", "average 72 bpm")))

	cfg := config.Default()
	eng := New(llm, registry, cfg,
		WithValidator(NewValidator(cfg, quietLogger())),
		WithLogger(quietLogger()),
	)

	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "what was my heart rate"})
	require.NoError(t, err)

	assert.True(t, out.Retried)
	assert.Equal(t, "Your average heart rate was 72 bpm.", out.Text)
	require.NotNil(t, out.Validation)
	assert.True(t, out.Validation.Valid)
	assert.Equal(t, 1.0, out.Validation.Score)
	// Tool call, bad answer, one correction. Never a second retry.
	assert.Equal(t, 3, llm.calls)
}

func TestRunDateMismatchTriggersRetryAndRevalidates(t *testing.T) {
	llm := &fakeLLM{responses: []*anthropic.Message{
		textMsg("On October 17 you rested."),
		textMsg("On October 15 you rested."),
	}}

	cfg := config.Default()
	eng := New(llm, NewToolRegistry(), cfg,
		WithValidator(NewValidator(cfg, quietLogger())),
		WithLogger(quietLogger()),
	)

	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "what did I do on October 15?"})
	require.NoError(t, err)

	assert.True(t, out.Retried)
	assert.Equal(t, "On October 15 you rested.", out.Text)
	require.NotNil(t, out.Validation)
	assert.True(t, out.Validation.Valid)
	assert.Equal(t, 2, llm.calls)
}

func TestRunFailedRetryKeepsOriginalAnswer(t *testing.T) {
	llm := &fakeLLM{
		responses: []*anthropic.Message{
			toolMsg("tu_1", "get_heart_rate", `{}`),
			textMsg("Your average heart rate was 95 bpm."),
		},
		err: errors.New("service hiccup"),
	}

	registry := NewToolRegistry()
	require.NoError(t, registry.Register(staticTool("get_heart_rate", "average 72 bpm")))

	cfg := config.Default()
	eng := New(llm, registry, cfg,
		WithValidator(NewValidator(cfg, quietLogger())),
		WithLogger(quietLogger()),
	)

	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Query: "what was my heart rate"})
	require.NoError(t, err)

	// The uncorrected answer comes back as low confidence, not as an error.
	assert.Equal(t, "Your average heart rate was 95 bpm.", out.Text)
	require.NotNil(t, out.Validation)
	assert.False(t, out.Validation.Valid)
}

func TestRunPersistsInteractionThroughCoordinator(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := rediskv.New(rediskv.Options{Addr: mr.Addr()})
	t.Cleanup(func() { kv.Close() })

	cfg := config.Default()
	vec := chromemstore.New()
	embedder := mock.New(64)

	st, err := memory.NewShortTerm(kv, cfg)
	require.NoError(t, err)
	coord := memory.NewCoordinator(
		st,
		memory.NewEpisodic(vec, embedder, cfg),
		memory.NewProcedural(kv, vec, embedder, cfg),
		memory.NewSemantic(vec, embedder, cfg),
		cfg,
	)

	llm := &fakeLLM{responses: []*anthropic.Message{
		toolMsg("tu_1", "get_steps", `{}`),
		textMsg("You took 9,200 steps today."),
	}}
	registry := NewToolRegistry()
	require.NoError(t, registry.Register(staticTool("get_steps", "9,200 steps")))

	eng := New(llm, registry, cfg,
		WithCoordinator(coord),
		WithLogger(quietLogger()),
	)

	session := NewSession("u1", "s1")
	out, err := eng.Run(context.Background(), &Input{UserID: "u1", Session: session, Query: "how many steps today"})
	require.NoError(t, err)
	require.NotNil(t, out.Memory)

	// Both turns landed in short-term memory.
	turns, err := st.Recent(context.Background(), "u1", "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, "how many steps today", turns[0].Content)
	assert.Equal(t, "You took 9,200 steps today.", turns[1].Content)

	// The tool sequence was learned for next time.
	mc := coord.RetrieveContext(context.Background(), "u1", "s1", "how many steps today", true)
	require.NotNil(t, mc.Procedural)
	assert.Equal(t, []string{"get_steps"}, mc.Procedural.ToolSequence)
}
