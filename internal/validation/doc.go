// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

// Package validation provides request payload validation for the gateway.
//
// This package has two halves. Struct validation wraps go-playground/validator
// v10 behind a thread-safe singleton with user-friendly error translation, and
// is used by typed request structs. Payload validation checks decoded
// parameter-update bodies field by field, collecting every violation so a
// client sees the full list in one response.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Gateway-specific validators (pathid, sessionid) for path parameters
//   - Comprehensive error translation to human-readable messages
//   - APIError conversion matching the gateway's VALIDATION_ERROR format
//   - Parameter update validation with dangerous content scanning
//
// # Quick Start
//
//	type RotateKeyRequest struct {
//	    KeyID  string `validate:"required,pathid"`
//	    Reason string `validate:"max=255"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req RotateKeyRequest
//	    if err := json.Decode(r.Body, &req); err != nil {
//	        // handle decode error
//	    }
//
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        apiErr := verr.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//
//	    // proceed with valid request
//	}
//
// # Parameter Update Payloads
//
// AI parameter updates arrive as freeform JSON, so they are validated from
// the decoded generic form rather than a typed struct. Field type mismatches
// become violations instead of decode failures, and every problem in the
// payload is reported at once:
//
//	var payload map[string]interface{}
//	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
//	    // handle decode error
//	}
//
//	if violations := validation.ValidateParameterUpdate(payload); len(violations) > 0 {
//	    respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
//	        "Invalid request data", map[string]interface{}{"details": violations})
//	    return
//	}
//
// A payload must carry a category from ValidCategories, a non-empty
// parameters object, and a userId of at most 255 characters. The optional
// immediate flag must be a boolean when present.
//
// # Dangerous Content
//
// Every string value inside parameters, however deeply nested, is capped at
// MaxStringValueLength and scanned against five case-insensitive patterns:
// script tags, javascript: URIs, inline event handlers, eval calls, and
// anonymous function constructors. Each match is reported as its own
// violation with the JSON path of the offending value
// (e.g. parameters.voice.greeting or parameters.rules[2]).
//
// # Path Parameters
//
// Route segments are checked with ValidateUserIDParam and
// ValidateSessionIDParam. The same formats are available to struct tags as
// the custom validators pathid and sessionid.
//
// # Error Types
//
// ValidationError represents a single struct field failure with accessors
// for the field, tag, param, and original value. RequestValidationError
// aggregates them and implements error. FieldViolation is the wire-shaped
// payload violation ({"field": ..., "message": ...}), and Violations is an
// ordered list of them.
//
// # API Error Integration
//
// RequestValidationError.ToAPIError produces the gateway's VALIDATION_ERROR
// envelope. A single failure keeps a simple message with field details;
// multiple failures join their messages and list every field under
// Details["fields"]. Violations marshals directly into the details array of
// a VALIDATION_ERROR response.
//
// # Thread Safety
//
// GetValidator returns a singleton guarded by sync.Once. The validator
// caches struct metadata internally and is safe for concurrent use, as are
// the package-level validation functions.
//
// # Performance
//
// Struct info is cached after first validation, so repeated validation of
// the same types is cheap. Danger patterns are compiled once at package
// init. Payload walking allocates only for the violations it reports.
//
// # See Also
//
// Package api decodes request bodies and renders violation responses.
package validation
