package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
	"github.com/vitalplane/agentmem/embedding"
	"github.com/vitalplane/agentmem/store"
)

// Procedural learns query-to-tool-sequence associations. Each pattern lives
// in a store hash keyed by a stable hash of the normalized query, giving
// idempotent upsert semantics; a parallel vector index over the normalized
// queries serves similarity fallback when no exact key matches.
//
// Record performs a read-modify-write on the running averages that is not
// atomic. Concurrent writes to the same pattern key can lose an update; one
// user rarely runs two turns at once and later samples re-center the
// averages, so the race is accepted rather than locked around.
type Procedural struct {
	kv       store.KV
	vec      store.VectorIndex
	embedder embedding.Embedder
	cfg      *config.Config
	log      *logrus.Entry
}

// NewProcedural creates the procedural memory manager.
func NewProcedural(kv store.KV, vec store.VectorIndex, embedder embedding.Embedder, cfg *config.Config) *Procedural {
	return &Procedural{
		kv:       kv,
		vec:      vec,
		embedder: embedder,
		cfg:      cfg,
		log:      logrus.WithField("component", "memory.procedural"),
	}
}

// NormalizeQuery lowercases and collapses whitespace so trivially different
// phrasings share a pattern key.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// patternHash derives the fixed-width pattern key suffix from the normalized
// query.
func patternHash(normalized string) string {
	h := fnv.New64a()
	h.Write([]byte(normalized))
	return fmt.Sprintf("%012x", h.Sum64())[:12]
}

func patternKey(userID, normalized string) string {
	return fmt.Sprintf("procedural:%s:%s", userID, patternHash(normalized))
}

func proceduralIndex(userID string) string {
	return "procedural_user_" + userID
}

// Record upserts a pattern. A new normalized query creates a record and
// indexes its embedding for similarity fallback; an existing one updates
// counters via running average: new = old + (sample - old) / count. A changed
// tool sequence for the same query restarts the pattern, since the old
// averages describe a sequence no longer in use.
func (p *Procedural) Record(ctx context.Context, userID, query string, toolSequence []string, executionTimeMs int64, successScore float64) error {
	norm := NormalizeQuery(query)
	if norm == "" || len(toolSequence) == 0 {
		return core.NewOpError("procedural.record", core.ErrInvalidInput)
	}
	if successScore < 0 {
		successScore = 0
	} else if successScore > 1 {
		successScore = 1
	}

	key := patternKey(userID, norm)
	existing, err := p.kv.HGetAll(ctx, key)
	if err != nil {
		return core.NewOpError("procedural.record", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err))
	}

	seqJSON, _ := json.Marshal(toolSequence)
	now := time.Now().UTC()

	if len(existing) == 0 || existing["tool_sequence"] != string(seqJSON) {
		fields := map[string]any{
			"user_id":               userID,
			"query_pattern":         norm,
			"tool_sequence":         string(seqJSON),
			"execution_count":       1,
			"avg_execution_time_ms": strconv.FormatFloat(float64(executionTimeMs), 'f', -1, 64),
			"avg_success_score":     strconv.FormatFloat(successScore, 'f', -1, 64),
			"created_at":            strconv.FormatInt(now.Unix(), 10),
			"last_used":             strconv.FormatInt(now.Unix(), 10),
		}
		if err := p.kv.HSet(ctx, key, fields); err != nil {
			return core.NewOpError("procedural.record", err)
		}
		if err := p.kv.Expire(ctx, key, p.cfg.ProceduralTTL); err != nil {
			p.log.WithError(err).Debug("ttl set failed")
		}
		return p.indexPattern(ctx, userID, norm, key)
	}

	count, err := p.kv.HIncrBy(ctx, key, "execution_count", 1)
	if err != nil {
		return core.NewOpError("procedural.record", err)
	}
	oldTime := parseFloatField(existing, "avg_execution_time_ms")
	oldScore := parseFloatField(existing, "avg_success_score")
	n := float64(count)
	newTime := oldTime + (float64(executionTimeMs)-oldTime)/n
	newScore := oldScore + (successScore-oldScore)/n

	fields := map[string]any{
		"avg_execution_time_ms": strconv.FormatFloat(newTime, 'f', -1, 64),
		"avg_success_score":     strconv.FormatFloat(newScore, 'f', -1, 64),
		"last_used":             strconv.FormatInt(now.Unix(), 10),
	}
	if err := p.kv.HSet(ctx, key, fields); err != nil {
		return core.NewOpError("procedural.record", err)
	}
	if err := p.kv.Expire(ctx, key, p.cfg.ProceduralTTL); err != nil {
		p.log.WithError(err).Debug("ttl refresh failed")
	}
	return nil
}

// indexPattern embeds the normalized query for similarity fallback. Failure
// here only weakens fallback quality, so it degrades to a warning.
func (p *Procedural) indexPattern(ctx context.Context, userID, norm, key string) error {
	emb, err := p.embedder.Embed(ctx, norm)
	if err != nil {
		p.log.WithError(err).Warn("pattern not indexed for similarity fallback")
		return nil
	}
	doc := store.Document{
		ID:        key,
		Content:   norm,
		Embedding: emb,
		Metadata:  map[string]string{"user_id": userID, "pattern_key": key},
	}
	if err := p.vec.Upsert(ctx, proceduralIndex(userID), doc); err != nil {
		p.log.WithError(err).Warn("pattern not indexed for similarity fallback")
	}
	return nil
}

// Suggest returns the learned pattern for a query, or nil when none applies.
// The exact normalized match always wins, regardless of its success score.
// The similarity fallback requires similarity at or above the configured
// threshold AND an average success score at or above the configured bar.
//
// The result is a soft hint for the LLM's own tool selection, never a forced
// override.
func (p *Procedural) Suggest(ctx context.Context, userID, query string) (*core.ProceduralPattern, error) {
	norm := NormalizeQuery(query)
	if norm == "" {
		return nil, nil
	}

	pat, err := p.load(ctx, patternKey(userID, norm))
	if err != nil {
		return nil, core.NewOpError("procedural.suggest", err)
	}
	if pat != nil {
		return pat, nil
	}

	emb, err := p.embedder.Embed(ctx, norm)
	if err != nil {
		// No embedding, no fallback; the exact path already missed.
		p.log.WithError(err).Warn("similarity fallback unavailable")
		return nil, nil
	}
	hits, err := p.vec.Search(ctx, proceduralIndex(userID), emb, 3, nil)
	if err != nil {
		return nil, core.NewOpError("procedural.suggest", fmt.Errorf("%w: %v", core.ErrMemoryRetrieval, err))
	}

	for _, h := range hits {
		if float64(h.Similarity) < p.cfg.SimilarityThreshold {
			continue
		}
		pat, err := p.load(ctx, h.Metadata["pattern_key"])
		if err != nil || pat == nil {
			continue
		}
		if pat.AvgSuccessScore < p.cfg.MinSuccessScore {
			continue
		}
		return pat, nil
	}
	return nil, nil
}

// load reads a pattern hash; nil when absent.
func (p *Procedural) load(ctx context.Context, key string) (*core.ProceduralPattern, error) {
	if key == "" {
		return nil, nil
	}
	fields, err := p.kv.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	var seq []string
	if err := json.Unmarshal([]byte(fields["tool_sequence"]), &seq); err != nil {
		return nil, fmt.Errorf("decode tool sequence: %w", err)
	}
	count, _ := strconv.ParseInt(fields["execution_count"], 10, 64)
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	lastUsed, _ := strconv.ParseInt(fields["last_used"], 10, 64)

	return &core.ProceduralPattern{
		UserID:             fields["user_id"],
		QueryPattern:       fields["query_pattern"],
		ToolSequence:       seq,
		ExecutionCount:     count,
		AvgExecutionTimeMs: parseFloatField(fields, "avg_execution_time_ms"),
		AvgSuccessScore:    parseFloatField(fields, "avg_success_score"),
		CreatedAt:          time.Unix(createdAt, 0).UTC(),
		LastUsed:           time.Unix(lastUsed, 0).UTC(),
	}, nil
}

// Stats aggregates pattern counts for a user.
func (p *Procedural) Stats(ctx context.Context, userID string) (map[string]any, error) {
	keys, err := p.kv.Scan(ctx, fmt.Sprintf("procedural:%s:*", userID))
	if err != nil {
		return nil, core.NewOpError("procedural.stats", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err))
	}

	var totalExec int64
	var scoreSum float64
	patterns := 0
	for _, key := range keys {
		pat, err := p.load(ctx, key)
		if err != nil || pat == nil {
			continue
		}
		patterns++
		totalExec += pat.ExecutionCount
		scoreSum += pat.AvgSuccessScore
	}

	stats := map[string]any{
		"patterns":         patterns,
		"total_executions": totalExec,
	}
	if patterns > 0 {
		stats["avg_success_score"] = scoreSum / float64(patterns)
	}
	return stats, nil
}

// Clear removes all patterns for a user and returns how many were deleted.
func (p *Procedural) Clear(ctx context.Context, userID string) (int, error) {
	keys, err := p.kv.Scan(ctx, fmt.Sprintf("procedural:%s:*", userID))
	if err != nil {
		return 0, core.NewOpError("procedural.clear", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err))
	}
	if len(keys) > 0 {
		if _, err := p.kv.Del(ctx, keys...); err != nil {
			return 0, core.NewOpError("procedural.clear", err)
		}
	}
	if _, err := p.vec.Drop(ctx, proceduralIndex(userID)); err != nil {
		p.log.WithError(err).Warn("pattern index not dropped")
	}
	return len(keys), nil
}

func parseFloatField(fields map[string]string, name string) float64 {
	f, _ := strconv.ParseFloat(fields[name], 64)
	return f
}
