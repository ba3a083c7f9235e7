// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MaxStringValueLength caps individual string values inside a parameter
// update payload. Longer values are rejected rather than truncated.
const MaxStringValueLength = 1000

// MaxUserIDLength caps the userId field of a parameter update payload.
const MaxUserIDLength = 255

// ValidCategories lists the accepted parameter categories in canonical order.
var ValidCategories = []string{
	"core_ai",
	"voice_ai",
	"behavioral_intelligence",
	"rewards",
	"platform",
	"deployment",
}

var validCategorySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(ValidCategories))
	for _, c := range ValidCategories {
		set[c] = struct{}{}
	}
	return set
}()

// Path parameter formats. userId path segments are plain identifiers,
// session identifiers carry a fixed prefix and timestamp component.
var (
	userIDPathPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	sessionIDPathPattern = regexp.MustCompile(`^session_[0-9]+_[a-zA-Z0-9]+$`)
)

// dangerPattern is a named content pattern rejected in parameter values.
type dangerPattern struct {
	name string
	re   *regexp.Regexp
}

// dangerPatterns match script injection vectors in string parameter values.
// Matching is case-insensitive; a value may trip several patterns and every
// match is reported.
var dangerPatterns = []dangerPattern{
	{name: "script tag", re: regexp.MustCompile(`(?i)<\s*script\b`)},
	{name: "javascript URI", re: regexp.MustCompile(`(?i)javascript\s*:`)},
	{name: "inline event handler", re: regexp.MustCompile(`(?i)\bon\w+\s*=`)},
	{name: "eval call", re: regexp.MustCompile(`(?i)\beval\s*\(`)},
	{name: "function constructor", re: regexp.MustCompile(`(?i)\bfunction\s*\(`)},
}

// FieldViolation describes a single rejected field in a request payload.
// The JSON shape matches the details array of VALIDATION_ERROR responses.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Violations is the ordered set of field violations found in one payload.
// A nil or empty slice means the payload passed.
type Violations []FieldViolation

// Error implements the error interface, joining all violation messages.
func (v Violations) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	messages := make([]string, len(v))
	for i, fv := range v {
		messages[i] = fmt.Sprintf("%s: %s", fv.Field, fv.Message)
	}

	return strings.Join(messages, "; ")
}

// add appends a violation, keeping the receiver usable as a value.
func (v *Violations) add(field, message string) {
	*v = append(*v, FieldViolation{Field: field, Message: message})
}

// CheckStringValue validates a single string value from a parameter payload.
// It reports a length violation and one violation per matching danger
// pattern, all attributed to the given field path.
func CheckStringValue(field, value string) Violations {
	var violations Violations

	if len(value) > MaxStringValueLength {
		violations.add(field, fmt.Sprintf("value exceeds maximum length of %d characters", MaxStringValueLength))
	}

	for _, p := range dangerPatterns {
		if p.re.MatchString(value) {
			violations.add(field, fmt.Sprintf("value contains potentially dangerous content (%s)", p.name))
		}
	}

	return violations
}

// ValidateParameterUpdate checks a decoded parameter update payload and
// returns every violation found. The payload is the generic form produced
// by decoding the request body, so type errors are reported as violations
// instead of decode failures.
//
// Checked fields:
//   - category: required, one of ValidCategories
//   - parameters: required, non-empty object; every nested string value is
//     length-capped and scanned for dangerous content
//   - userId: required string, 1 to 255 characters
//   - immediate: boolean when present
func ValidateParameterUpdate(payload map[string]interface{}) Violations {
	var violations Violations

	validateCategory(payload, &violations)
	validateParameters(payload, &violations)
	validateUserID(payload, &violations)
	validateImmediate(payload, &violations)

	return violations
}

func validateCategory(payload map[string]interface{}, violations *Violations) {
	raw, ok := payload["category"]
	if !ok || raw == nil {
		violations.add("category", "category is required")
		return
	}

	category, ok := raw.(string)
	if !ok {
		violations.add("category", "category must be a string")
		return
	}

	if _, ok := validCategorySet[category]; !ok {
		violations.add("category", fmt.Sprintf("category must be one of: %s", strings.Join(ValidCategories, ", ")))
	}
}

func validateParameters(payload map[string]interface{}, violations *Violations) {
	raw, ok := payload["parameters"]
	if !ok || raw == nil {
		violations.add("parameters", "parameters is required")
		return
	}

	params, ok := raw.(map[string]interface{})
	if !ok {
		violations.add("parameters", "parameters must be an object")
		return
	}

	if len(params) == 0 {
		violations.add("parameters", "parameters must not be empty")
		return
	}

	walkParameterValues("parameters", params, violations)
}

// walkParameterValues descends into nested objects and arrays so every
// string value is checked no matter how deeply it is buried. Keys are
// visited in sorted order to keep violation ordering deterministic.
func walkParameterValues(prefix string, value interface{}, violations *Violations) {
	switch v := value.(type) {
	case string:
		*violations = append(*violations, CheckStringValue(prefix, v)...)
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkParameterValues(prefix+"."+k, v[k], violations)
		}
	case []interface{}:
		for i, item := range v {
			walkParameterValues(fmt.Sprintf("%s[%d]", prefix, i), item, violations)
		}
	}
	// Numbers, booleans, and nulls carry no injectable content.
}

func validateUserID(payload map[string]interface{}, violations *Violations) {
	raw, ok := payload["userId"]
	if !ok || raw == nil {
		violations.add("userId", "userId is required")
		return
	}

	userID, ok := raw.(string)
	if !ok {
		violations.add("userId", "userId must be a string")
		return
	}

	if len(userID) < 1 || len(userID) > MaxUserIDLength {
		violations.add("userId", fmt.Sprintf("userId must be between 1 and %d characters", MaxUserIDLength))
	}
}

func validateImmediate(payload map[string]interface{}, violations *Violations) {
	raw, ok := payload["immediate"]
	if !ok || raw == nil {
		return
	}

	if _, ok := raw.(bool); !ok {
		violations.add("immediate", "immediate must be a boolean")
	}
}

// ValidateUserIDParam checks a userId path parameter. Returns nil when the
// value is a well-formed identifier.
func ValidateUserIDParam(value string) *FieldViolation {
	if userIDPathPattern.MatchString(value) {
		return nil
	}

	return &FieldViolation{
		Field:   "userId",
		Message: "userId must contain only letters, digits, hyphens, and underscores",
	}
}

// ValidateSessionIDParam checks a sessionId path parameter. Returns nil when
// the value matches the session identifier format.
func ValidateSessionIDParam(value string) *FieldViolation {
	if sessionIDPathPattern.MatchString(value) {
		return nil
	}

	return &FieldViolation{
		Field:   "sessionId",
		Message: "sessionId must match the session identifier format",
	}
}
