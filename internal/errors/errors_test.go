package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeIndexLocked, CategoryIO, SeverityFatal, true},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{ErrCodeFileCorrupt, CategoryIO, SeverityWarning, false},
		{ErrCodeInvalidQuery, CategoryValidation, SeverityError, false},
		{ErrCodeIndexFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			// When: creating an error from the code
			err := New(tt.code, "boom", nil)

			// Then: classification follows the code
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, fmt.Sprintf("[%s] boom", tt.code), err.Error())
		})
	}
}

func TestWrap_PreservesChain(t *testing.T) {
	// Given: a plain cause
	cause := stderrors.New("disk full")

	// When: wrapped and then wrapped again with fmt
	wrapped := fmt.Errorf("commit: %w", Wrap(ErrCodeIndexFailed, cause))

	// Then: both the cause and the code are reachable
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, New(ErrCodeIndexFailed, "other", nil))
	assert.Equal(t, ErrCodeIndexFailed, GetCode(wrapped))
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail_AndSuggestion(t *testing.T) {
	err := IndexError("failed", nil).
		WithDetail("path", "/tmp/x.pdf").
		WithSuggestion("run amanbib rebuild")

	assert.Equal(t, "/tmp/x.pdf", err.Details["path"])
	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: failed")
	assert.Contains(t, out, "Hint: run amanbib rebuild")
	assert.Contains(t, out, ErrCodeIndexFailed)
}

func TestFormatForCLI_PlainError(t *testing.T) {
	assert.Empty(t, FormatForCLI(nil))
	assert.Contains(t, FormatForCLI(stderrors.New("x")), ErrCodeInternal)
}

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	// Given: a function that is locked twice then succeeds
	calls := 0
	fn := func() error {
		calls++
		if calls < 3 {
			return New(ErrCodeIndexLocked, "locked", nil)
		}
		return nil
	}
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, Multiplier: 2, OnlyRetryable: true}

	// When: retrying
	err := Retry(context.Background(), cfg, fn)

	// Then: it succeeds on the third call
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return ValidationError("bad", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return stderrors.New("nope")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeCorruptIndex, "x", nil)))
	assert.False(t, IsFatal(stderrors.New("x")))
	assert.False(t, IsRetryable(stderrors.New("x")))
}
