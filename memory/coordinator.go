package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
)

// Coordinator orchestrates the four memory managers. Retrieval fans out
// concurrently with a per-fetch timeout and degrades any failed or slow fetch
// to empty; storage fans back in after a turn completes. Infrastructure
// failures in any single manager never abort the turn.
type Coordinator struct {
	shortTerm  *ShortTerm
	episodic   *Episodic
	procedural *Procedural
	semantic   *Semantic
	cfg        *config.Config
	log        *logrus.Entry
}

// NewCoordinator wires the four managers together. All dependencies are
// injected; there are no package-level singletons.
func NewCoordinator(shortTerm *ShortTerm, episodic *Episodic, procedural *Procedural, semantic *Semantic, cfg *config.Config) *Coordinator {
	return &Coordinator{
		shortTerm:  shortTerm,
		episodic:   episodic,
		procedural: procedural,
		semantic:   semantic,
		cfg:        cfg,
		log:        logrus.WithField("component", "memory.coordinator"),
	}
}

// ClassifyQuery reports whether long-term lookup should be skipped for the
// query. Factual data queries get their answers from tools; surfacing cached
// memory for them risks answering live questions from stale facts.
func (c *Coordinator) ClassifyQuery(query string) bool {
	return IsFactualQuery(query)
}

// RetrieveContext assembles the per-turn memory context. Short-term and
// procedural are always fetched (cheap, always useful); episodic and semantic
// are skipped when skipLongTerm is set. The four fetches run concurrently,
// each bounded by the configured fetch timeout, and any failure degrades that
// one memory type to empty. RetrieveContext never returns an error.
func (c *Coordinator) RetrieveContext(ctx context.Context, userID, sessionID, query string, skipLongTerm bool) *core.MemoryContext {
	mc := &core.MemoryContext{}

	var wg sync.WaitGroup
	fetch := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout())
			defer cancel()
			if err := fn(fctx); err != nil {
				c.log.WithError(err).WithField("memory", name).Warn("memory fetch degraded to empty")
			}
		}()
	}

	// Each fetch writes disjoint MemoryContext fields, so no lock is needed.
	fetch("short_term", func(fctx context.Context) error {
		turns, err := c.shortTerm.RecentWithinBudget(fctx, userID, sessionID, c.cfg.ShortTermLimit, c.cfg.ShortTermMaxTokens)
		if err != nil {
			return err
		}
		mc.ShortTerm = FormatTurns(turns)
		return nil
	})

	fetch("procedural", func(fctx context.Context) error {
		pat, err := c.procedural.Suggest(fctx, userID, query)
		if err != nil {
			return err
		}
		mc.Procedural = pat
		return nil
	})

	if !skipLongTerm {
		fetch("episodic", func(fctx context.Context) error {
			hits, text, err := c.episodic.Retrieve(fctx, userID, query, nil, c.cfg.TopK)
			if err != nil {
				return err
			}
			mc.EpisodicHits = hits
			mc.Episodic = text
			return nil
		})

		fetch("semantic", func(fctx context.Context) error {
			hits, text, err := c.semantic.Retrieve(fctx, query, nil, c.cfg.TopK)
			if err != nil {
				return err
			}
			mc.SemanticHits = hits
			mc.Semantic = text
			return nil
		})
	}

	wg.Wait()
	return mc
}

// StoreInteraction writes a completed turn back to memory and returns a
// per-memory-type result map. Short-term always gets both turns; an episodic
// event is persisted only when the exchange matches memorable heuristics;
// a procedural pattern is recorded whenever tools actually ran. Semantic
// memory is curated, not learned per interaction, so it is never written
// here.
func (c *Coordinator) StoreInteraction(ctx context.Context, userID, sessionID, query, response string, toolsUsed []string, executionTimeMs int64, successScore float64) map[string]error {
	results := make(map[string]error)

	if err := c.shortTerm.Append(ctx, userID, sessionID, core.RoleUser, query); err != nil {
		results["short_term"] = err
	} else if err := c.shortTerm.Append(ctx, userID, sessionID, core.RoleAssistant, response); err != nil {
		results["short_term"] = err
	} else {
		results["short_term"] = nil
	}

	if eventType, ok := classifyMemorable(query); ok {
		results["episodic"] = c.episodic.Store(ctx, userID, eventType, query, truncateContext(response, 200), nil)
	}

	if len(toolsUsed) > 0 {
		results["procedural"] = c.procedural.Record(ctx, userID, query, toolsUsed, executionTimeMs, successScore)
	}

	return results
}

// Stats aggregates counts across the memory types.
func (c *Coordinator) Stats(ctx context.Context, userID, sessionID string) map[string]any {
	stats := map[string]any{
		"short_term_turns": c.shortTerm.Len(ctx, userID, sessionID),
		"episodic_events":  c.episodic.Count(userID),
		"semantic_facts":   c.semantic.Count(),
	}
	if ps, err := c.procedural.Stats(ctx, userID); err == nil {
		stats["procedural"] = ps
	}
	return stats
}

// ClearAll wipes the user's memory, returning per-type results. Semantic
// memory is global and survives.
func (c *Coordinator) ClearAll(ctx context.Context, userID, sessionID string) map[string]error {
	results := make(map[string]error)
	results["short_term"] = c.shortTerm.Clear(ctx, userID, sessionID)
	_, results["episodic"] = c.episodic.Clear(ctx, userID)
	_, results["procedural"] = c.procedural.Clear(ctx, userID)
	return results
}

func (c *Coordinator) fetchTimeout() time.Duration {
	if c.cfg.FetchTimeout > 0 {
		return c.cfg.FetchTimeout
	}
	return 300 * time.Millisecond
}

// memorablePhrases map turn language to episodic event types. Goal-setting
// and preference statements are the signals worth remembering; plain data
// questions are not.
var memorablePhrases = []struct {
	phrase    string
	eventType core.EventType
}{
	{"my goal", core.EventGoal},
	{"i want to", core.EventGoal},
	{"i aim to", core.EventGoal},
	{"i'm trying to", core.EventGoal},
	{"i am trying to", core.EventGoal},
	{"my target", core.EventGoal},
	{"i prefer", core.EventPreference},
	{"i like", core.EventPreference},
	{"i love", core.EventPreference},
	{"i hate", core.EventPreference},
	{"i usually", core.EventPreference},
	{"my favorite", core.EventPreference},
	{"personal best", core.EventMilestone},
	{"personal record", core.EventMilestone},
	{"first time", core.EventMilestone},
	{"i injured", core.EventHealthEvent},
	{"i hurt", core.EventHealthEvent},
	{"i was sick", core.EventHealthEvent},
	{"diagnosed", core.EventHealthEvent},
}

func classifyMemorable(text string) (core.EventType, bool) {
	t := strings.ToLower(text)
	for _, m := range memorablePhrases {
		if strings.Contains(t, m.phrase) {
			return m.eventType, true
		}
	}
	return "", false
}

func truncateContext(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
