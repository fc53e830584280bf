// Copyright (C) 2026 Hydronav Contributors (dev@hydronav.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"errors"
	"fmt"
)

// ErrCode classifies router failures. Every code has a documented local
// fallback; none of them should ever reach a caller as an unhandled failure.
type ErrCode string

const (
	// ErrCodeEmbeddingUnavailable signals the embedding provider call failed
	// or timed out. Fallback: keyword-only routing for that query.
	ErrCodeEmbeddingUnavailable ErrCode = "EMBEDDING_UNAVAILABLE"

	// ErrCodeRegistryMissing signals the plant reference table failed to
	// load. Fallback: entity matching degrades to name/fuzzy-only mode.
	ErrCodeRegistryMissing ErrCode = "REGISTRY_MISSING"

	// ErrCodeNoMatch signals every routing strategy was exhausted.
	// Fallback: the router declines; the caller falls through to its
	// general-purpose flow.
	ErrCodeNoMatch ErrCode = "NO_MATCH"

	// ErrCodeAmbiguousFollowUp signals a follow-up envelope that matches
	// neither the structured nor the legacy shape. Fallback: the query
	// re-enters the pipeline as a plain query.
	ErrCodeAmbiguousFollowUp ErrCode = "AMBIGUOUS_FOLLOW_UP"

	// ErrCodeUnknownTool signals a resolved tool was not in the registry at
	// dispatch time.
	ErrCodeUnknownTool ErrCode = "UNKNOWN_TOOL"

	// ErrCodeToolFailed signals the selected tool's Execute returned an
	// error. This is the one code callers see directly.
	ErrCodeToolFailed ErrCode = "TOOL_FAILED"
)

// RouterError is the typed error for routing failures.
type RouterError struct {
	Code      ErrCode
	Message   string
	Retryable bool
	cause     error
}

// NewRouterError creates a RouterError without a cause.
func NewRouterError(code ErrCode, message string, retryable bool) *RouterError {
	return &RouterError{Code: code, Message: message, Retryable: retryable}
}

// WrapRouterError creates a RouterError wrapping an underlying cause.
func WrapRouterError(code ErrCode, message string, cause error) *RouterError {
	return &RouterError{Code: code, Message: message, cause: cause}
}

func (e *RouterError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RouterError) Unwrap() error {
	return e.cause
}

// IsCode reports whether err is a RouterError carrying the given code.
func IsCode(err error, code ErrCode) bool {
	var rerr *RouterError
	if errors.As(err, &rerr) {
		return rerr.Code == code
	}
	return false
}
