package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(staticTool("get_steps", "")))

	err := r.Register(staticTool("get_steps", ""))
	assert.Error(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryPreservesOrder(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.RegisterAll(
		staticTool("b_tool", ""),
		staticTool("a_tool", ""),
	))
	assert.Equal(t, []string{"b_tool", "a_tool"}, r.Names())
}

func TestRegistryToAPITools(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(staticTool("get_steps", "")))

	api := r.ToAPITools()
	require.Len(t, api, 1)
	require.NotNil(t, api[0].OfTool)
	assert.Equal(t, "get_steps", api[0].OfTool.Name)
}

func TestSessionTranscript(t *testing.T) {
	s := NewSession("u1", "c1")
	assert.NotEmpty(t, s.ID)

	s.AddUserMessage("hello")
	s.AddAssistantMessage("hi")
	assert.Equal(t, 2, s.Len())

	// Messages returns a copy; appending to it must not mutate the session.
	msgs := s.Messages()
	_ = append(msgs, msgs[0])
	assert.Equal(t, 2, s.Len())
}
