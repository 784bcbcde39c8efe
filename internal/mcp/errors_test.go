package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/index"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), ErrCodeTimeout},
		{"busy", fmt.Errorf("rebuild: %w", index.ErrRebuildRunning), ErrCodeIndexBusy},
		{"params", ErrInvalidParams, ErrCodeInvalidParams},
		{"resource", ErrResourceNotFound, ErrCodeNotFound},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestMapError_StructuredErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want int
	}{
		{"invalid query", amerrors.ErrCodeInvalidQuery, ErrCodeInvalidParams},
		{"invalid input", amerrors.ErrCodeInvalidInput, ErrCodeInvalidParams},
		{"file not found", amerrors.ErrCodeFileNotFound, ErrCodeNotFound},
		{"locked", amerrors.ErrCodeIndexLocked, ErrCodeIndexUnavailable},
		{"corrupt", amerrors.ErrCodeCorruptIndex, ErrCodeIndexUnavailable},
		{"closed", amerrors.ErrCodeStoreClosed, ErrCodeIndexUnavailable},
		{"search failed", amerrors.ErrCodeSearchFailed, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a structured error wrapped once more
			err := fmt.Errorf("tool: %w", amerrors.New(tt.code, "message", nil))

			// When: mapping it
			got := MapError(err)

			// Then: the category decides the MCP code
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
			assert.Contains(t, got.Message, "message")
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := amerrors.New(amerrors.ErrCodeInvalidQuery, "invalid query", nil).
		WithSuggestion("Quote phrases.")

	got := MapError(err)

	assert.Equal(t, "invalid query Quote phrases.", got.Message)
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("limit must be positive")

	got := MapError(fmt.Errorf("wrap: %w", orig))

	assert.Same(t, orig, got)
	assert.Equal(t, "MCP error -32602: limit must be positive", got.Error())
}
