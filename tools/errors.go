// Package tools provides shared utilities for the directory service.
package tools

import (
	"errors"
	"fmt"
)

// Error codes for client consumption.
// These codes are stable and can be used for programmatic error handling.
const (
	CodeStorageExecution  = "STORAGE_EXECUTION_ERROR"
	CodeEntryNotFound     = "ENTRY_NOT_FOUND"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeCompile           = "QUERY_COMPILE_ERROR"
	CodeUnknownDriver     = "UNKNOWN_DRIVER"
	CodeInternalError     = "INTERNAL_ERROR"
)

// APIError represents a structured error response for the API.
// Code is a stable identifier for client error handling.
// Message describes what went wrong.
// Hint provides actionable guidance to resolve the issue.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Sentinel errors for common failure conditions.
var (
	ErrStorageExecution  = errors.New("storage execution failed")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrCompile           = errors.New("query compilation failed")
	ErrUnknownDriver     = errors.New("unknown database driver")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrEmptyIdentifier   = errors.New("identifier cannot be empty")
	ErrIdentifierTooLong = errors.New("identifier exceeds maximum length")
	ErrInvalidCharacter  = errors.New("identifier contains invalid characters")
)

// StorageErr wraps a driver error as a storage execution failure.
func StorageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageExecution, err)
}

// CompileErr wraps a statement building failure.
func CompileErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCompile, err)
}

// EntryNotFoundErr returns an error indicating no entry matched the lookup.
func EntryNotFoundErr(field, value string) error {
	return fmt.Errorf("%w: %s=%s", ErrEntryNotFound, field, value)
}

// InvalidRequestErr returns an error for invalid request validation.
func InvalidRequestErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

// UnknownDriverErr returns an error for an unsupported DIRECTORY_DB_DRIVER value.
func UnknownDriverErr(driver string) error {
	return fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
}
