package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
	"github.com/vitalplane/agentmem/embedding"
	"github.com/vitalplane/agentmem/store"
)

// semanticIndexName is the single global fact index. Facts are not
// user-scoped: they answer "what does X mean" questions, not "what is my X".
const semanticIndexName = "semantic_facts"

// Semantic stores general health domain knowledge retrieved by vector
// similarity. The corpus is curated: it is seeded once and added to
// opportunistically, never written on the per-interaction hot path.
type Semantic struct {
	vec      store.VectorIndex
	embedder embedding.Embedder
	log      *logrus.Entry
}

// NewSemantic creates the semantic memory manager.
func NewSemantic(vec store.VectorIndex, embedder embedding.Embedder, _ *config.Config) *Semantic {
	return &Semantic{
		vec:      vec,
		embedder: embedder,
		log:      logrus.WithField("component", "memory.semantic"),
	}
}

// Store embeds and indexes one fact.
func (s *Semantic) Store(ctx context.Context, fact string, factType core.FactType, category, factCtx, source string) error {
	if strings.TrimSpace(fact) == "" {
		return core.NewOpError("semantic.store", fmt.Errorf("%w: empty fact", core.ErrInvalidInput))
	}
	if factType == "" {
		factType = core.FactGeneral
	}

	emb, err := s.embedder.Embed(ctx, fact)
	if err != nil {
		return core.NewOpError("semantic.store", err)
	}

	meta := map[string]string{
		"fact_type": string(factType),
		"category":  category,
		"timestamp": strconv.FormatInt(time.Now().UTC().Unix(), 10),
	}
	if factCtx != "" {
		meta["context"] = factCtx
	}
	if source != "" {
		meta["source"] = source
	}

	doc := store.Document{
		ID:        "semantic:" + uuid.New().String(),
		Content:   fact,
		Embedding: emb,
		Metadata:  meta,
	}
	if err := s.vec.Upsert(ctx, semanticIndexName, doc); err != nil {
		return core.NewOpError("semantic.store", err)
	}
	return nil
}

// Retrieve returns the top-k facts matching the query, optionally restricted
// to categories. Zero hits yield ("", 0, nil).
func (s *Semantic) Retrieve(ctx context.Context, query string, categories []string, topK int) (int, string, error) {
	if topK <= 0 {
		return 0, "", nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return 0, "", core.NewOpError("semantic.retrieve", err)
	}

	var where map[string]string
	fetchK := topK
	if len(categories) == 1 {
		where = map[string]string{"category": categories[0]}
	} else if len(categories) > 1 {
		fetchK = topK * len(categories)
	}

	hits, err := s.vec.Search(ctx, semanticIndexName, emb, fetchK, where)
	if err != nil {
		return 0, "", core.NewOpError("semantic.retrieve", fmt.Errorf("%w: %v", core.ErrMemoryRetrieval, err))
	}

	allowed := map[string]bool{}
	for _, c := range categories {
		allowed[c] = true
	}

	var lines []string
	for _, h := range hits {
		if len(allowed) > 0 && !allowed[h.Metadata["category"]] {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", h.Metadata["fact_type"], h.Content))
		if len(lines) == topK {
			break
		}
	}
	if len(lines) == 0 {
		return 0, "", nil
	}
	return len(lines), strings.Join(lines, "\n"), nil
}

// Count returns the stored fact count.
func (s *Semantic) Count() int {
	return s.vec.Count(semanticIndexName)
}

// PopulateDefaults seeds the baseline health knowledge corpus. It is a no-op
// when facts are already present, so it is safe to call on every startup.
func (s *Semantic) PopulateDefaults(ctx context.Context) error {
	if s.Count() > 0 {
		return nil
	}

	for _, f := range defaultFacts {
		if err := s.Store(ctx, f.Fact, f.FactType, f.Category, f.Context, f.Source); err != nil {
			return core.NewOpError("semantic.populate", err)
		}
	}
	s.log.WithField("facts", len(defaultFacts)).Info("seeded default health knowledge")
	return nil
}

// defaultFacts is the curated seed corpus of general health knowledge.
var defaultFacts = []core.SemanticFact{
	{
		Fact:     "Resting heart rate for most adults ranges from 60 to 100 beats per minute; well-trained athletes often sit between 40 and 60 bpm.",
		FactType: core.FactDefinition, Category: "cardio", Source: "general_guidelines",
	},
	{
		Fact:     "Heart rate variability (HRV) measures the variation in time between consecutive heartbeats; higher HRV generally indicates better cardiovascular fitness and recovery.",
		FactType: core.FactDefinition, Category: "cardio", Source: "general_guidelines",
	},
	{
		Fact:     "VO2 max is the maximum rate of oxygen the body can use during exercise, and is a strong indicator of aerobic endurance.",
		FactType: core.FactDefinition, Category: "fitness", Source: "general_guidelines",
	},
	{
		Fact:     "Adults should aim for at least 150 minutes of moderate-intensity aerobic activity per week, or 75 minutes of vigorous activity.",
		FactType: core.FactGuideline, Category: "fitness", Source: "who_activity_guidelines",
	},
	{
		Fact:     "A common daily step goal is 10,000 steps, though health benefits appear from around 7,000 steps per day for most adults.",
		FactType: core.FactGuideline, Category: "activity", Source: "general_guidelines",
	},
	{
		Fact:     "Adults should get 7 to 9 hours of sleep per night; consistently sleeping under 6 hours is associated with impaired recovery and concentration.",
		FactType: core.FactGuideline, Category: "sleep", Source: "sleep_foundation",
	},
	{
		Fact:     "Sleep cycles through light, deep, and REM stages roughly every 90 minutes; deep sleep dominates early in the night and REM later.",
		FactType: core.FactDefinition, Category: "sleep", Source: "sleep_foundation",
	},
	{
		Fact:     "Higher resting heart rate over time can relate to stress, overtraining, illness, or declining fitness; downward trends usually track improving aerobic condition.",
		FactType: core.FactRelationship, Category: "cardio", Source: "general_guidelines",
	},
	{
		Fact:     "Active calories measure energy burned through movement and exercise, while basal calories cover the energy used at rest.",
		FactType: core.FactDefinition, Category: "activity", Source: "general_guidelines",
	},
	{
		Fact:     "Workout intensity zones are commonly derived from maximum heart rate: zone 2 around 60-70% supports endurance, zone 4 around 80-90% builds speed.",
		FactType: core.FactDefinition, Category: "fitness", Source: "general_guidelines",
	},
}
