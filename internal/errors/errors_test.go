package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
		retry    bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{"store", ErrCodeCorruptIndex, CategoryStore, SeverityFatal, false},
		{"store locked retryable", ErrCodeStoreLocked, CategoryStore, SeverityFatal, true},
		{"collaborator", ErrCodeEmbedTimeout, CategoryCollaborator, SeverityWarning, true},
		{"validation", ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
		{"internal", ErrCodeSignatureFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom")
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retry, err.Retryable)
		})
	}
}

func TestError_UnwrapAndIs(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeEmbedUnavailable, "embed request failed")

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, stderrors.Is(err, New(ErrCodeEmbedUnavailable, "other message")))
	assert.False(t, stderrors.Is(err, New(ErrCodeEmbedTimeout, "other")))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "no cause"))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeSignatureFailed, "embedding failed").
		WithDetail("chunk", "abc123").
		WithDetail("signal", "vector")

	assert.Equal(t, "abc123", err.Details["chunk"])
	assert.Equal(t, "vector", err.Details["signal"])
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return New(ErrCodeEmbedTimeout, "timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsOnNonRetryable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}

	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return New(ErrCodeInvalidInput, "bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, DefaultRetryConfig(), func() error {
		t.Fatal("fn should not run after cancellation")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
