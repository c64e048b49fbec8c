// Package core defines the shared data model of the agent memory subsystem:
// conversation turns, the four persisted memory record types, the per-turn
// memory context, and the tool abstraction consumed by the engine.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversational exchange entry owned by short-term memory.
// Turns are immutable once written; they are pruned by count or token budget,
// never edited.
type Turn struct {
	// ID is a unique, time-sortable identifier (snowflake).
	ID string `json:"id"`

	// Role is the author of the turn (user or assistant).
	Role Role `json:"role"`

	// Content is the turn text.
	Content string `json:"content"`

	// Timestamp is when the turn was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// EventType classifies an episodic event.
type EventType string

const (
	EventPreference  EventType = "preference"
	EventGoal        EventType = "goal"
	EventHealthEvent EventType = "health_event"
	EventInteraction EventType = "interaction"
	EventMilestone   EventType = "milestone"
)

// Valid reports whether the event type is one of the known values.
func (e EventType) Valid() bool {
	switch e {
	case EventPreference, EventGoal, EventHealthEvent, EventInteraction, EventMilestone:
		return true
	}
	return false
}

// EpisodicEvent is a tagged personal fact about a user, retrieved by vector
// similarity. Events are immutable and expire via TTL; superseding facts are
// written as new records, never updated in place.
type EpisodicEvent struct {
	// UserID identifies the user who owns this event.
	UserID string `json:"user_id"`

	// EventType classifies the event (preference, goal, health_event, ...).
	EventType EventType `json:"event_type"`

	// Description is the event text, also the embedded content.
	Description string `json:"description"`

	// Context carries surrounding conversational context.
	Context string `json:"context,omitempty"`

	// Metadata holds additional structured attributes.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// ProceduralPattern is a learned association between a normalized query and
// the tool sequence that answered it. Counters are weighted running means:
// new_avg = old_avg + (sample - old_avg) / execution_count.
type ProceduralPattern struct {
	// UserID identifies the user the pattern was learned from.
	UserID string `json:"user_id"`

	// QueryPattern is the normalized query text the pattern is keyed on.
	QueryPattern string `json:"query_pattern"`

	// ToolSequence is the ordered list of tools that served the query.
	ToolSequence []string `json:"tool_sequence"`

	// ExecutionCount is how many times this pattern has been recorded.
	ExecutionCount int64 `json:"execution_count"`

	// AvgExecutionTimeMs is the running mean execution time.
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`

	// AvgSuccessScore is the running mean success score in [0,1].
	AvgSuccessScore float64 `json:"avg_success_score"`

	// CreatedAt is when the pattern was first recorded.
	CreatedAt time.Time `json:"created_at"`

	// LastUsed is when the pattern was last recorded or suggested.
	LastUsed time.Time `json:"last_used"`
}

// FactType classifies a semantic fact.
type FactType string

const (
	FactDefinition   FactType = "definition"
	FactRelationship FactType = "relationship"
	FactGuideline    FactType = "guideline"
	FactGeneral      FactType = "general"
)

// SemanticFact is a piece of general domain knowledge. Facts are global (not
// user-scoped), immutable, and curated rather than learned automatically.
type SemanticFact struct {
	// Fact is the knowledge statement, also the embedded content.
	Fact string `json:"fact"`

	// FactType classifies the fact (definition, relationship, guideline, general).
	FactType FactType `json:"fact_type"`

	// Category groups facts for filtered retrieval (e.g. "cardio", "sleep").
	Category string `json:"category"`

	// Context carries clarifying detail.
	Context string `json:"context,omitempty"`

	// Source names where the fact came from.
	Source string `json:"source,omitempty"`

	// Timestamp is when the fact was stored.
	Timestamp time.Time `json:"timestamp"`
}

// MemoryContext aggregates everything the coordinator retrieved for one turn.
// It is constructed fresh per turn and never persisted.
type MemoryContext struct {
	// ShortTerm is the formatted recent conversation.
	ShortTerm string

	// Episodic is the formatted personal context, empty when nothing matched.
	Episodic string

	// EpisodicHits is the number of episodic records that matched.
	EpisodicHits int

	// Procedural is the learned tool-sequence suggestion, nil when none.
	Procedural *ProceduralPattern

	// Semantic is the formatted domain knowledge, empty when nothing matched.
	Semantic string

	// SemanticHits is the number of semantic facts that matched.
	SemanticHits int
}

// Empty reports whether no memory type contributed anything.
func (m *MemoryContext) Empty() bool {
	return m.ShortTerm == "" && m.Episodic == "" && m.Semantic == "" && m.Procedural == nil
}

// Render formats the context as a system-prompt enrichment block. The
// procedural suggestion is rendered as a hint, never an instruction: the model
// keeps full autonomy over tool selection.
func (m *MemoryContext) Render() string {
	if m.Empty() {
		return ""
	}

	var parts []string
	if m.ShortTerm != "" {
		parts = append(parts, "=== RECENT CONVERSATION ===\n"+m.ShortTerm)
	}
	if m.Episodic != "" {
		parts = append(parts, "=== WHAT YOU KNOW ABOUT THIS USER ===\n"+m.Episodic)
	}
	if m.Semantic != "" {
		parts = append(parts, "=== RELEVANT HEALTH KNOWLEDGE ===\n"+m.Semantic)
	}
	if p := m.Procedural; p != nil && len(p.ToolSequence) > 0 {
		parts = append(parts, fmt.Sprintf(
			"=== TOOL HINT ===\nSimilar past queries were answered with the tools: %s (used %d times, success %.2f). Consider them, but choose tools based on the actual question.",
			strings.Join(p.ToolSequence, ", "), p.ExecutionCount, p.AvgSuccessScore))
	}
	return strings.Join(parts, "\n\n")
}

// ValidationResult is the outcome of checking a response against its grounding
// data. It is data, not an error: the retry state machine consumes it and the
// turn always produces an answer.
type ValidationResult struct {
	// Valid is false when the response must be retried.
	Valid bool `json:"valid"`

	// Score is matched/total over response numbers, in [0,1].
	Score float64 `json:"score"`

	// Matched lists response numbers supported by tool output.
	Matched []string `json:"matched,omitempty"`

	// Hallucinations lists response numbers or dates with no grounding.
	Hallucinations []string `json:"hallucinations,omitempty"`

	// Warnings lists partial mismatches that did not force a retry.
	Warnings []string `json:"warnings,omitempty"`
}

// ToolExecution records one tool invocation during an agent run.
type ToolExecution struct {
	// Tool is the tool name.
	Tool string `json:"tool"`

	// Input is the decoded tool arguments.
	Input map[string]any `json:"input,omitempty"`

	// Output is the tool's result string, empty on failure.
	Output string `json:"output,omitempty"`

	// Error is the failure message, empty on success.
	Error string `json:"error,omitempty"`

	// DurationMs is wall-clock execution time.
	DurationMs int64 `json:"duration_ms"`
}
