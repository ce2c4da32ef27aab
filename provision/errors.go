// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"fmt"
	"net/http"
)

// Code is a wire-visible provisioning error code.
type Code string

// Provisioning error codes. The M_AS_* codes are generic application
// service failures; the IRC_* codes are bridge-specific.
const (
	CodeBadValue        Code = "M_AS_BAD_VALUE"
	CodeBadToken        Code = "M_AS_BAD_TOKEN"
	CodeUnknownFailure  Code = "M_AS_UNKNOWN_FAILURE"
	CodeUnknownNetwork  Code = "IRC_UNKNOWN_NETWORK"
	CodeUnknownChannel  Code = "IRC_UNKNOWN_CHANNEL"
	CodeUnknownRoom     Code = "IRC_UNKNOWN_ROOM"
	CodeExistingMapping Code = "IRC_EXISTING_MAPPING"
	CodeNotEnoughPower  Code = "IRC_NOT_ENOUGH_POWER"
	CodeBadOpTarget     Code = "IRC_BAD_OP_TARGET"
)

// Error is a provisioning failure with a wire-visible code. Content,
// when non-nil, is serialized as the additionalContent field of the
// HTTP error body.
type Error struct {
	Code    Code
	Message string
	Content any
}

func (e *Error) Error() string {
	return fmt.Sprintf("provision: %s: %s", e.Code, e.Message)
}

// HTTPStatus maps the error code to its HTTP response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeBadValue:
		return http.StatusBadRequest
	case CodeBadToken:
		return http.StatusUnauthorized
	case CodeNotEnoughPower:
		return http.StatusForbidden
	case CodeUnknownNetwork, CodeUnknownChannel, CodeUnknownRoom, CodeBadOpTarget:
		return http.StatusNotFound
	case CodeExistingMapping:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes one invalid request field. Message is either
// "is required" or "pattern mismatch".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// missingField builds the BadValue error for an absent request field.
func missingField(field string) *Error {
	return fieldError(FieldError{Field: field, Message: "is required"})
}

// malformedField builds the BadValue error for a field that fails its
// grammar.
func malformedField(field string) *Error {
	return fieldError(FieldError{Field: field, Message: "pattern mismatch"})
}

func fieldError(fields ...FieldError) *Error {
	return &Error{
		Code:    CodeBadValue,
		Message: fmt.Sprintf("request field %q %s", fields[0].Field, fields[0].Message),
		Content: map[string]any{"errors": fields},
	}
}

// infraError wraps an unexpected collaborator failure in the generic
// failure code. The underlying error is logged, not exposed.
func infraError(message string) *Error {
	return &Error{Code: CodeUnknownFailure, Message: message}
}
