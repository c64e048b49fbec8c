package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy of the subsystem.
//
// Memory and store failures are always recovered locally by substituting
// empty context; LLM unavailability is the only condition fatal for a turn.
var (
	// ErrMemoryRetrieval indicates a memory fetch failed. Callers degrade the
	// affected memory type to empty, never surface this to the end user.
	ErrMemoryRetrieval = errors.New("memory retrieval failed")

	// ErrLLMService indicates the inference endpoint is unavailable. Fatal for
	// the turn.
	ErrLLMService = errors.New("llm service unavailable")

	// ErrToolExecution indicates a tool call failed. Surfaced to the LLM as an
	// error tool-result message so it can adapt.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrStoreUnavailable indicates the key/vector store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbeddingFailed indicates embedding generation failed. Embedding
	// fails closed: callers omit the memory fetch rather than index garbage.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrInvalidInput indicates a caller-supplied argument is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// OpError wraps an error with the operation that produced it.
type OpError struct {
	// Op is the operation that failed, e.g. "episodic.store".
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns "agentmem: <Op>: <Err>".
func (e *OpError) Error() string {
	return fmt.Sprintf("agentmem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error so errors.Is and errors.As work.
func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err with operation context. Returns nil when err is nil so
// it can wrap return values directly.
func NewOpError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
