package orcerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsValidation(Validation("conversation", "title too long")))
	assert.True(t, IsNotFound(NotFound("conversation", "conv-1")))
	assert.True(t, IsConflict(Conflict("approval", "appr-1", "already decided")))
	assert.True(t, IsUpstream(Upstream("llm", errors.New("boom"))))
	assert.True(t, IsStore(Store("storage", errors.New("disk full"))))
	assert.True(t, IsCancelled(Cancelled("orchestrator", errors.New("context canceled"))))
}

func TestIsHelpers_WrappedError(t *testing.T) {
	base := NotFound("agent", "agent-1")
	wrapped := fmt.Errorf("lookup failed: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
}

func TestIsHelpers_WrongKind(t *testing.T) {
	err := Validation("conversation", "bad")
	assert.False(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
}

func TestError_MessageFormat(t *testing.T) {
	err := NotFound("conversation", "conv-42")
	assert.Contains(t, err.Error(), "conversation")
	assert.Contains(t, err.Error(), "conv-42")
	assert.Contains(t, err.Error(), "not_found")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Store("storage", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Is(t *testing.T) {
	err := Conflict("approval", "appr-1", "already decided")
	assert.True(t, errors.Is(err, &Error{Kind: KindConflict}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
}
