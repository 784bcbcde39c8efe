// Package mcp implements the Model Context Protocol (MCP) server that
// exposes a library's fulltext index to AI clients.
package mcp

import (
	"context"
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/amanbib/internal/errors"
	"github.com/Aman-CERP/amanbib/internal/index"
)

// Custom MCP error codes for amanbib.
const (
	// ErrCodeIndexUnavailable indicates the index cannot be opened or written.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeIndexBusy indicates a rebuild or update is still running.
	ErrCodeIndexBusy = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeNotFound indicates an entry or file does not exist.
	ErrCodeNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var ae *amerrors.Error
	if errors.As(err, &ae) {
		return mapIndexError(ae)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, index.ErrRebuildRunning):
		return &MCPError{Code: ErrCodeIndexBusy, Message: "Index is being rebuilt. Try again shortly."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// mapIndexError converts a structured index error to an MCPError.
func mapIndexError(ae *amerrors.Error) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ae.Message, ae.Suggestion)
	}

	switch ae.Category {
	case amerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case amerrors.CategoryIO:
		switch ae.Code {
		case amerrors.ErrCodeFileNotFound:
			return &MCPError{Code: ErrCodeNotFound, Message: message}
		case amerrors.ErrCodeCorruptIndex, amerrors.ErrCodeIndexLocked:
			return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
		}
	}
	if ae.Code == amerrors.ErrCodeStoreClosed || ae.Code == amerrors.ErrCodeIndexFailed {
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: message}
}
