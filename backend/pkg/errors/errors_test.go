package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypeOf_ThroughWrapping(t *testing.T) {
	notFound := NewNotFound("community", "c-1")
	wrapped := fmt.Errorf("loading community: %w", notFound)

	assert.Equal(t, ErrorTypeNotFound, TypeOf(wrapped))
	assert.True(t, IsErrorType(wrapped, ErrorTypeNotFound))
	assert.False(t, IsErrorType(wrapped, ErrorTypeConflict))

	var target *ErrNotFound
	assert.True(t, stderrors.As(wrapped, &target))
	assert.Equal(t, "c-1", target.ID)
}

func TestTypeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("boom")))
	assert.False(t, IsErrorType(nil, ErrorTypeValidation))
}

func TestMessageOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation keeps message", Validation("intensity must be between %d and %d", 1, 5), "intensity must be between 1 and 5"},
		{"graph hides driver detail", NewGraphQueryFailed("create user", stderrors.New("bolt: connection reset")), "internal server error"},
		{"matrix collapses", NewMatrixRequestFailed("send", stderrors.New("502")), "chat server request failed"},
		{"unknown error", stderrors.New("raw"), "internal server error"},
		{"rate limited", NewRateLimited("otp", time.Minute), "too many otp requests, retry later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewGraphQueryFailed("q", nil)))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", NewMatrixRequestFailed("kick", nil))))
	assert.False(t, IsRetryable(Validation("bad")))
	assert.False(t, IsRetryable(NewAgentLLMFailed("m", 3, false, nil)))
	assert.True(t, IsRetryable(NewAgentLLMFailed("m", 3, true, nil)))
}

func TestBaseError_Error(t *testing.T) {
	err := NewBaseError(ErrorTypeStore, "insert account", stderrors.New("duplicate key"))
	assert.Equal(t, "[store] insert account: duplicate key", err.Error())
	assert.Equal(t, "[forbidden] nope", Forbidden("nope").Error())
}
