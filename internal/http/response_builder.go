// Package http serves the profit entry JSON API.
//
// This file implements a small builder for JSON responses so every handler
// writes the same content type and error body layout.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the uniform error payload.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

// Write encodes the payload. Encoding failures are logged; the status line
// has already been sent at that point.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.payload); err != nil {
		slog.Error("Failed to encode JSON response", "error", err, "status_code", b.statusCode)
	}
}

// ErrorResponse builds an error body with the given status.
func ErrorResponse(status int, message, details string) *JSONResponseBuilder {
	return NewJSONResponse().Status(status).Data(ErrorBody{Error: message, Details: details})
}

func BadRequestError(message, details string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message, details)
}

func InternalServerError(message, details string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message, details)
}

func ServiceUnavailableError(message, details string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message, details)
}
