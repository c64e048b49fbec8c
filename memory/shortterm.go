// Package memory implements the four memory faculties of the agent — short
// term, episodic, procedural, semantic — and the coordinator that fans
// retrieval out before a turn and writes back after it.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sirupsen/logrus"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
	"github.com/vitalplane/agentmem/store"
)

// shortTermMaxLog caps the stored log length regardless of retrieval limits.
const shortTermMaxLog = 200

// ShortTerm is the append-only ordered log of conversation turns, backed by a
// store list per (user, session). Reads are best-effort: store failures
// degrade to empty context instead of failing the turn.
type ShortTerm struct {
	kv   store.KV
	node *snowflake.Node
	ttl  time.Duration
	log  *logrus.Entry
}

// NewShortTerm creates the short-term memory manager.
func NewShortTerm(kv store.KV, cfg *config.Config) (*ShortTerm, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, core.NewOpError("shortterm.new", err)
	}
	return &ShortTerm{
		kv:   kv,
		node: node,
		ttl:  cfg.ShortTermTTL,
		log:  logrus.WithField("component", "memory.shortterm"),
	}, nil
}

func shortTermKey(userID, sessionID string) string {
	return fmt.Sprintf("shortterm:%s:%s", userID, sessionID)
}

// Append records one turn at the head of the session log and refreshes the
// log's TTL.
func (s *ShortTerm) Append(ctx context.Context, userID, sessionID string, role core.Role, content string) error {
	turn := core.Turn{
		ID:        s.node.Generate().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	b, err := json.Marshal(turn)
	if err != nil {
		return core.NewOpError("shortterm.append", err)
	}

	key := shortTermKey(userID, sessionID)
	if err := s.kv.LPush(ctx, key, string(b)); err != nil {
		return core.NewOpError("shortterm.append", err)
	}
	if err := s.kv.LTrim(ctx, key, 0, shortTermMaxLog-1); err != nil {
		s.log.WithError(err).Debug("trim failed")
	}
	if err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		s.log.WithError(err).Debug("ttl refresh failed")
	}
	return nil
}

// Recent returns up to limit turns, most-recent-last. Undecodable entries are
// skipped.
func (s *ShortTerm) Recent(ctx context.Context, userID, sessionID string, limit int) ([]core.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.kv.LRange(ctx, shortTermKey(userID, sessionID), 0, int64(limit-1))
	if err != nil {
		return nil, core.NewOpError("shortterm.recent", fmt.Errorf("%w: %v", core.ErrMemoryRetrieval, err))
	}

	// The list is newest-first; reverse into chronological order.
	turns := make([]core.Turn, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var t core.Turn
		if err := json.Unmarshal([]byte(raw[i]), &t); err != nil {
			s.log.WithError(err).Debug("skipping undecodable turn")
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// RecentWithinBudget returns recent turns whose combined estimated token
// count fits maxTokens, dropping the oldest turns first. Whole turns are
// dropped rather than truncated mid-content, so quoted or structured text in
// a turn stays balanced.
func (s *ShortTerm) RecentWithinBudget(ctx context.Context, userID, sessionID string, limit, maxTokens int) ([]core.Turn, error) {
	turns, err := s.Recent(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if maxTokens <= 0 {
		return turns, nil
	}

	for len(turns) > 0 && EstimateTokens(FormatTurns(turns)) > maxTokens {
		turns = turns[1:]
	}
	return turns, nil
}

// Context formats the session's recent turns for prompt injection. Store
// failures return an empty string, never an error: short-term memory is
// additive context, not a hard dependency.
func (s *ShortTerm) Context(ctx context.Context, userID, sessionID string, limit, maxTokens int) string {
	turns, err := s.RecentWithinBudget(ctx, userID, sessionID, limit, maxTokens)
	if err != nil {
		s.log.WithError(err).Warn("short-term fetch degraded to empty")
		return ""
	}
	return FormatTurns(turns)
}

// Clear removes the session log.
func (s *ShortTerm) Clear(ctx context.Context, userID, sessionID string) error {
	_, err := s.kv.Del(ctx, shortTermKey(userID, sessionID))
	return core.NewOpError("shortterm.clear", err)
}

// Len returns the stored turn count for a session. Best-effort; 0 on error.
func (s *ShortTerm) Len(ctx context.Context, userID, sessionID string) int {
	raw, err := s.kv.LRange(ctx, shortTermKey(userID, sessionID), 0, -1)
	if err != nil {
		return 0
	}
	return len(raw)
}

// FormatTurns renders turns as "role: content" lines, oldest first.
func FormatTurns(turns []core.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return strings.Join(lines, "\n")
}

// EstimateTokens approximates the token count of text as ceil(len/4). The
// estimator is deliberately cheap; a real tokenizer can replace it behind the
// same call.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
