package tools

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RespErr writes a structured error response to the ResponseWriter.
func RespErr(w http.ResponseWriter, err error) {
	status, apiErr := BuildAPIError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiErr)
}

// RespJSON writes v as a JSON body with the given status.
func RespJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error("failed to encode response", "error", err)
	}
}

// BuildAPIError maps an error to an HTTP status code and structured APIError.
func BuildAPIError(err error) (int, APIError) {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		return http.StatusNotFound, APIError{
			Code:    CodeEntryNotFound,
			Message: err.Error(),
			Hint:    "Entries are looked up by numeric id or by slug. Hidden entries are reported as missing.",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, APIError{
			Code:    CodeInvalidRequest,
			Message: err.Error(),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, APIError{
			Code:    CodeUnauthorized,
			Message: err.Error(),
			Hint:    "The API surface requires an Authorization: Bearer <token> header signed with the configured secret.",
		}
	case errors.Is(err, ErrInvalidIdentifier),
		errors.Is(err, ErrEmptyIdentifier),
		errors.Is(err, ErrIdentifierTooLong),
		errors.Is(err, ErrInvalidCharacter):
		return http.StatusBadRequest, APIError{
			Code:    CodeInvalidIdentifier,
			Message: err.Error(),
			Hint:    "Identifiers must start with a letter or underscore, contain only letters, digits, and underscores, and be at most 128 characters.",
		}
	case errors.Is(err, ErrCompile):
		return http.StatusInternalServerError, APIError{
			Code:    CodeCompile,
			Message: "query could not be built",
			Hint:    "Check server logs for the rejected filter attributes.",
		}
	case errors.Is(err, ErrStorageExecution):
		// Avoid exposing SQL text or connection details
		Logger.Error("storage error", "error", err.Error())
		return http.StatusBadGateway, APIError{
			Code:    CodeStorageExecution,
			Message: "storage execution failed",
			Hint:    "The directory store rejected the query. Check server logs for details.",
		}
	default:
		Logger.Error("unhandled error", "error", err.Error())
		return http.StatusInternalServerError, APIError{
			Code:    CodeInternalError,
			Message: "internal server error",
			Hint:    "An unexpected error occurred. Check server logs for details.",
		}
	}
}
