// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

// Package response is the single translation point between pipeline
// outcomes and HTTP bodies. Every stage and handler writes through it so
// clients always see the same envelope:
//
//	{"success": false, "error": "...", "code": "...", "details": ...}
//
// Authorization denials additionally carry "required" and "available"
// permission arrays; rate-limit rejections carry "retryAfter" seconds.
// Stack traces and internal error text never reach the body.
package response

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/Coolhgg/relife-gateway/internal/logging"
)

// Error codes returned by the gateway, one per rejection class.
const (
	CodeMissingToken     = "MISSING_TOKEN"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeMissingAPIKey    = "MISSING_API_KEY"
	CodeInvalidAPIKey    = "INVALID_API_KEY"
	CodeNoAuthMethod     = "NO_AUTH_METHOD"
	CodeAPIKeyAuthFailed = "API_KEY_AUTH_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"

	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeValidationError         = "VALIDATION_ERROR"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"

	CodeMissingCSRFToken = "MISSING_CSRF_TOKEN"
	CodeInvalidCSRFToken = "INVALID_CSRF_TOKEN"

	CodeInvalidCredentials = "INVALID_CREDENTIALS"

	CodeBadRequest = "BAD_REQUEST"
	CodeNotFound   = "NOT_FOUND"
)

// Body is the wire envelope. Success responses carry Data; failures
// carry Error and Code plus optional Details.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`

	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// authzBody is the 403 envelope for authorization denials. Required and
// Available are always present, even when empty: clients parse both
// arrays unconditionally.
type authzBody struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error"`
	Code      string   `json:"code"`
	Required  []string `json:"required"`
	Available []string `json:"available"`
}

// rateLimitBody is the 429 envelope. RetryAfter is always present, even
// when the window is about to roll over.
type rateLimitBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter"`
}

// JSON writes an arbitrary payload with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// Success writes a 200 success envelope wrapping data.
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, Body{Success: true, Data: data})
}

// Created writes a 201 success envelope wrapping data.
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, Body{Success: true, Data: data})
}

// Error writes a failure envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, Body{Error: message, Code: code})
}

// ErrorDetails writes a failure envelope with structured details.
func ErrorDetails(w http.ResponseWriter, status int, code, message string, details interface{}) {
	JSON(w, status, Body{Error: message, Code: code, Details: details})
}

// AuthzDenied writes the 403 envelope for authorization failures,
// carrying the permission sets the decision was made against.
func AuthzDenied(w http.ResponseWriter, required, available []string) {
	if required == nil {
		required = []string{}
	}
	if available == nil {
		available = []string{}
	}
	JSON(w, http.StatusForbidden, authzBody{
		Error:     "Insufficient permissions",
		Code:      CodeInsufficientPermissions,
		Required:  required,
		Available: available,
	})
}

// RateLimited writes the 429 envelope with the class-specific message
// and the seconds remaining in the window.
func RateLimited(w http.ResponseWriter, message string, retryAfter int) {
	JSON(w, http.StatusTooManyRequests, rateLimitBody{
		Error:      message,
		Code:       CodeRateLimitExceeded,
		RetryAfter: retryAfter,
	})
}

// Internal writes the opaque 500 envelope. The cause stays server-side.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
}
