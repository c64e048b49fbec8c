package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
	"github.com/vitalplane/agentmem/embedding/mock"
	"github.com/vitalplane/agentmem/memory"
	chromemstore "github.com/vitalplane/agentmem/store/chromem"
)

func newSemantic(t *testing.T) *memory.Semantic {
	t.Helper()
	return memory.NewSemantic(chromemstore.New(), mock.New(128), config.Default())
}

func TestSemanticStoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	sem := newSemantic(t)

	require.NoError(t, sem.Store(ctx,
		"Zone 2 training happens at 60-70% of maximum heart rate.",
		core.FactDefinition, "fitness", "", "coaching_manual"))
	require.NoError(t, sem.Store(ctx,
		"Deep sleep dominates the first half of the night.",
		core.FactDefinition, "sleep", "", "sleep_foundation"))

	hits, text, err := sem.Retrieve(ctx, "what is zone 2 heart rate training", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Contains(t, text, "Zone 2")
	assert.Contains(t, text, "[definition]")
}

func TestSemanticCategoryFilter(t *testing.T) {
	ctx := context.Background()
	sem := newSemantic(t)

	require.NoError(t, sem.Store(ctx,
		"Recovery improves with consistent sleep schedules.",
		core.FactGuideline, "sleep", "", ""))
	require.NoError(t, sem.Store(ctx,
		"Recovery runs should stay in low heart rate zones.",
		core.FactGuideline, "fitness", "", ""))

	hits, text, err := sem.Retrieve(ctx, "recovery", []string{"sleep"}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Contains(t, text, "sleep schedules")
	assert.NotContains(t, text, "low heart rate zones")
}

func TestSemanticRejectsEmptyFact(t *testing.T) {
	ctx := context.Background()
	sem := newSemantic(t)

	err := sem.Store(ctx, "  ", core.FactGeneral, "", "", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestSemanticZeroHits(t *testing.T) {
	ctx := context.Background()
	sem := newSemantic(t)

	hits, text, err := sem.Retrieve(ctx, "anything", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, hits)
	assert.Equal(t, "", text)
}

func TestSemanticPopulateDefaults(t *testing.T) {
	ctx := context.Background()
	sem := newSemantic(t)

	require.NoError(t, sem.PopulateDefaults(ctx))
	seeded := sem.Count()
	assert.Greater(t, seeded, 0)

	// Idempotent: a second call must not duplicate the corpus.
	require.NoError(t, sem.PopulateDefaults(ctx))
	assert.Equal(t, seeded, sem.Count())

	hits, text, err := sem.Retrieve(ctx, "how much sleep do adults need per night", []string{"sleep"}, 2)
	require.NoError(t, err)
	assert.Greater(t, hits, 0)
	assert.Contains(t, text, "sleep")
}

func TestIsFactualQuery(t *testing.T) {
	factual := []string{
		"How many steps did I take today?",
		"What was my average heart rate last week?",
		"total calories burned yesterday",
		"when did I last work out",
	}
	for _, q := range factual {
		assert.True(t, memory.IsFactualQuery(q), q)
	}

	conversational := []string{
		"what does zone two training mean",
		"should I train more often",
		"I prefer evening runs",
	}
	for _, q := range conversational {
		assert.False(t, memory.IsFactualQuery(q), q)
	}
}
