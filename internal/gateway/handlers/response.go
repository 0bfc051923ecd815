// Package handlers implements the shell's HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
)

// maxBodyBytes caps request bodies. A login form is a few hundred bytes.
const maxBodyBytes = 64 << 10

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendJSON writes a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// SendError writes an error response with the given status code, error code, and message.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// DecodeJSON decodes an application/json request body into v. On failure it
// writes a 415 for another content type, a 413 for an oversized body or a
// 400, and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		SendError(w, http.StatusUnsupportedMediaType, ErrCodeInvalidRequest, "content type must be application/json")
		return false
	}

	err = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		SendError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "request body too large")
		return false
	}
	SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
	return false
}

// Common error codes.
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeAlreadyRunning     = "ALREADY_RUNNING"
	ErrCodeStartFailed        = "START_FAILED"
	ErrCodeLogoutFailed       = "LOGOUT_FAILED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
