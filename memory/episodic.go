package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
	"github.com/vitalplane/agentmem/embedding"
	"github.com/vitalplane/agentmem/store"
)

// Episodic stores tagged personal events and retrieves them by vector
// similarity, optionally filtered by event type. Events are immutable;
// superseded facts are new records, and retrieval prefers the most recent
// among equally similar hits.
type Episodic struct {
	vec      store.VectorIndex
	embedder embedding.Embedder
	maxAge   time.Duration
	log      *logrus.Entry
}

// NewEpisodic creates the episodic memory manager.
func NewEpisodic(vec store.VectorIndex, embedder embedding.Embedder, cfg *config.Config) *Episodic {
	return &Episodic{
		vec:      vec,
		embedder: embedder,
		maxAge:   cfg.EpisodicTTL,
		log:      logrus.WithField("component", "memory.episodic"),
	}
}

func episodicIndex(userID string) string {
	return "episodic_user_" + userID
}

// Store embeds the description and writes a tagged vector record keyed
// episodic:{user}:{event_type}:{unix_nano}. Embedding failure fails the write
// (fail closed, never index a garbage vector).
func (e *Episodic) Store(ctx context.Context, userID string, eventType core.EventType, description, evCtx string, metadata map[string]string) error {
	if !eventType.Valid() {
		return core.NewOpError("episodic.store", fmt.Errorf("%w: event type %q", core.ErrInvalidInput, eventType))
	}
	if strings.TrimSpace(description) == "" {
		return core.NewOpError("episodic.store", fmt.Errorf("%w: empty description", core.ErrInvalidInput))
	}

	emb, err := e.embedder.Embed(ctx, description)
	if err != nil {
		return core.NewOpError("episodic.store", err)
	}

	now := time.Now().UTC()
	meta := map[string]string{
		"user_id":    userID,
		"event_type": string(eventType),
		"timestamp":  strconv.FormatInt(now.UnixNano(), 10),
	}
	if evCtx != "" {
		meta["context"] = evCtx
	}
	for k, v := range metadata {
		meta["meta_"+k] = v
	}

	doc := store.Document{
		ID:        fmt.Sprintf("episodic:%s:%s:%d", userID, eventType, now.UnixNano()),
		Content:   description,
		Embedding: emb,
		Metadata:  meta,
	}
	if err := e.vec.Upsert(ctx, episodicIndex(userID), doc); err != nil {
		return core.NewOpError("episodic.store", err)
	}

	e.log.WithFields(logrus.Fields{"user_id": userID, "event_type": eventType}).Debug("stored episodic event")
	return nil
}

// Retrieve embeds the query, runs a filtered KNN search scoped to the user,
// and returns the hit count plus similarity-ranked descriptions joined for
// prompt injection. Ties in similarity resolve most-recent-first. Zero hits
// yield ("", 0, nil): the caller omits episodic content rather than failing
// the turn.
func (e *Episodic) Retrieve(ctx context.Context, userID, query string, eventTypes []core.EventType, topK int) (int, string, error) {
	if topK <= 0 {
		return 0, "", nil
	}

	emb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return 0, "", core.NewOpError("episodic.retrieve", err)
	}

	// A single event type can be pushed into the index's tag filter. Larger
	// sets are post-filtered, so over-fetch to compensate.
	var where map[string]string
	fetchK := topK
	if len(eventTypes) == 1 {
		where = map[string]string{"event_type": string(eventTypes[0])}
	} else if len(eventTypes) > 1 {
		fetchK = topK * len(eventTypes)
	}

	hits, err := e.vec.Search(ctx, episodicIndex(userID), emb, fetchK, where)
	if err != nil {
		return 0, "", core.NewOpError("episodic.retrieve", fmt.Errorf("%w: %v", core.ErrMemoryRetrieval, err))
	}

	events := e.toEvents(hits, eventTypes)
	if len(events) > topK {
		events = events[:topK]
	}
	if len(events) == 0 {
		return 0, "", nil
	}

	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, fmt.Sprintf("- [%s, %s] %s", ev.EventType, ev.Timestamp.Format("2006-01-02"), ev.Description))
	}
	return len(events), strings.Join(lines, "\n"), nil
}

// toEvents converts hits to events, applies event-type and age filters, and
// orders by similarity with recency as the tie-break.
func (e *Episodic) toEvents(hits []store.Hit, eventTypes []core.EventType) []core.EpisodicEvent {
	allowed := map[core.EventType]bool{}
	for _, t := range eventTypes {
		allowed[t] = true
	}

	type scored struct {
		ev  core.EpisodicEvent
		sim float32
	}
	var out []scored
	cutoff := time.Time{}
	if e.maxAge > 0 {
		cutoff = time.Now().UTC().Add(-e.maxAge)
	}

	for _, h := range hits {
		ev := hitToEvent(h)
		if len(allowed) > 0 && !allowed[ev.EventType] {
			continue
		}
		if !cutoff.IsZero() && ev.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, scored{ev: ev, sim: h.Similarity})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].sim != out[j].sim {
			return out[i].sim > out[j].sim
		}
		return out[i].ev.Timestamp.After(out[j].ev.Timestamp)
	})

	events := make([]core.EpisodicEvent, len(out))
	for i, s := range out {
		events[i] = s.ev
	}
	return events
}

// Count returns the stored event count for a user.
func (e *Episodic) Count(userID string) int {
	return e.vec.Count(episodicIndex(userID))
}

// Clear removes all episodic events for a user and returns how many were
// deleted.
func (e *Episodic) Clear(ctx context.Context, userID string) (int, error) {
	n, err := e.vec.Drop(ctx, episodicIndex(userID))
	return n, core.NewOpError("episodic.clear", err)
}

func hitToEvent(h store.Hit) core.EpisodicEvent {
	ts := time.Time{}
	if raw, ok := h.Metadata["timestamp"]; ok {
		if ns, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ts = time.Unix(0, ns).UTC()
		}
	}
	meta := map[string]string{}
	for k, v := range h.Metadata {
		if strings.HasPrefix(k, "meta_") {
			meta[strings.TrimPrefix(k, "meta_")] = v
		}
	}
	return core.EpisodicEvent{
		UserID:      h.Metadata["user_id"],
		EventType:   core.EventType(h.Metadata["event_type"]),
		Description: h.Content,
		Context:     h.Metadata["context"],
		Metadata:    meta,
		Timestamp:   ts,
	}
}
