package memory_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
	"github.com/vitalplane/agentmem/memory"
	"github.com/vitalplane/agentmem/store/rediskv"
)

func newShortTerm(t *testing.T) (*memory.ShortTerm, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := rediskv.New(rediskv.Options{Addr: mr.Addr()})
	t.Cleanup(func() { kv.Close() })

	st, err := memory.NewShortTerm(kv, config.Default())
	require.NoError(t, err)
	return st, mr
}

func TestShortTermAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	st, _ := newShortTerm(t)

	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, "how did I sleep?"))
	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleAssistant, "You slept 7.5 hours."))
	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, "and the night before?"))

	turns, err := st.Recent(ctx, "u1", "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	// Chronological order, oldest first.
	assert.Equal(t, "how did I sleep?", turns[0].Content)
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
	assert.Equal(t, "and the night before?", turns[2].Content)
}

func TestShortTermRecentHonorsLimit(t *testing.T) {
	ctx := context.Background()
	st, _ := newShortTerm(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, fmt.Sprintf("message %d", i)))
	}

	turns, err := st.Recent(ctx, "u1", "s1", 4)
	require.NoError(t, err)
	require.Len(t, turns, 4)

	// The newest 4, still oldest-first within the window.
	assert.Equal(t, "message 6", turns[0].Content)
	assert.Equal(t, "message 9", turns[3].Content)
}

func TestShortTermSessionIsolation(t *testing.T) {
	ctx := context.Background()
	st, _ := newShortTerm(t)

	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, "session one"))
	require.NoError(t, st.Append(ctx, "u1", "s2", core.RoleUser, "session two"))

	turns, err := st.Recent(ctx, "u1", "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "session one", turns[0].Content)
}

func TestShortTermTokenBudgetDropsOldestFirst(t *testing.T) {
	ctx := context.Background()
	st, _ := newShortTerm(t)

	long := strings.Repeat("old words ", 50)
	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, long))
	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleAssistant, "short answer"))
	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, "latest question"))

	turns, err := st.RecentWithinBudget(ctx, "u1", "s1", 10, 20)
	require.NoError(t, err)
	require.NotEmpty(t, turns)

	// The newest turn always survives; the long oldest turn is dropped whole.
	assert.Equal(t, "latest question", turns[len(turns)-1].Content)
	for _, turn := range turns {
		assert.NotEqual(t, long, turn.Content)
	}
	assert.LessOrEqual(t, memory.EstimateTokens(memory.FormatTurns(turns)), 20)
}

func TestShortTermContextDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	st, mr := newShortTerm(t)

	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, "hello"))
	mr.Close()

	assert.Equal(t, "", st.Context(ctx, "u1", "s1", 10, 0))
}

func TestShortTermTTL(t *testing.T) {
	ctx := context.Background()
	st, mr := newShortTerm(t)

	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, "ephemeral"))
	require.Equal(t, 1, st.Len(ctx, "u1", "s1"))

	mr.FastForward(25 * time.Hour)
	assert.Equal(t, 0, st.Len(ctx, "u1", "s1"))
}

func TestShortTermClear(t *testing.T) {
	ctx := context.Background()
	st, _ := newShortTerm(t)

	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, "one"))
	require.NoError(t, st.Append(ctx, "u1", "s1", core.RoleUser, "two"))
	require.NoError(t, st.Clear(ctx, "u1", "s1"))

	assert.Equal(t, 0, st.Len(ctx, "u1", "s1"))
}

func TestFormatTurns(t *testing.T) {
	turns := []core.Turn{
		{Role: core.RoleUser, Content: "hi"},
		{Role: core.RoleAssistant, Content: "hello"},
	}
	assert.Equal(t, "user: hi\nassistant: hello", memory.FormatTurns(turns))
	assert.Equal(t, "", memory.FormatTurns(nil))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, memory.EstimateTokens(""))
	assert.Equal(t, 1, memory.EstimateTokens("abc"))
	assert.Equal(t, 2, memory.EstimateTokens("abcdefg"))
}
