// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package validation

import (
	"strings"
	"testing"
)

func TestGetValidatorSingleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil {
		t.Fatal("GetValidator() returned nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

// keyRequestFixture mirrors the shape of the key-creation payload so the
// tag set under test is the one the handlers rely on.
type keyRequestFixture struct {
	Name          string   `validate:"required,min=1,max=100"`
	Scopes        []string `validate:"required,min=1,dive,min=1,max=100"`
	Environment   string   `validate:"omitempty,oneof=live test"`
	OwnerUserID   string   `validate:"omitempty,max=255"`
	AllowedIPs    []string `validate:"omitempty,dive,ip"`
	ExpiresInDays int      `validate:"omitempty,min=1,max=3650"`
}

func TestValidateStructValid(t *testing.T) {
	tests := []struct {
		name  string
		input keyRequestFixture
	}{
		{
			name: "minimal fields",
			input: keyRequestFixture{
				Name:   "ci reader",
				Scopes: []string{"parameters:read"},
			},
		},
		{
			name: "all fields",
			input: keyRequestFixture{
				Name:          "deploy bot",
				Scopes:        []string{"parameters:write", "parameters:deploy"},
				Environment:   "live",
				OwnerUserID:   "user-42",
				AllowedIPs:    []string{"192.168.1.10", "2001:db8::1"},
				ExpiresInDays: 90,
			},
		},
		{
			name: "boundary lengths",
			input: keyRequestFixture{
				Name:          strings.Repeat("a", 100),
				Scopes:        []string{strings.Repeat("s", 100)},
				OwnerUserID:   strings.Repeat("u", 255),
				ExpiresInDays: 3650,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(&tt.input); err != nil {
				t.Errorf("ValidateStruct() returned unexpected error: %v", err)
			}
		})
	}
}

func TestValidateStructInvalid(t *testing.T) {
	tests := []struct {
		name      string
		input     keyRequestFixture
		wantField string
		wantTag   string
	}{
		{
			name:      "missing name",
			input:     keyRequestFixture{Scopes: []string{"parameters:read"}},
			wantField: "Name",
			wantTag:   "required",
		},
		{
			name: "name too long",
			input: keyRequestFixture{
				Name:   strings.Repeat("a", 101),
				Scopes: []string{"parameters:read"},
			},
			wantField: "Name",
			wantTag:   "max",
		},
		{
			name:      "nil scopes",
			input:     keyRequestFixture{Name: "ci"},
			wantField: "Scopes",
			wantTag:   "required",
		},
		{
			name:      "empty scopes",
			input:     keyRequestFixture{Name: "ci", Scopes: []string{}},
			wantField: "Scopes",
			wantTag:   "min",
		},
		{
			name: "unknown environment",
			input: keyRequestFixture{
				Name:        "ci",
				Scopes:      []string{"parameters:read"},
				Environment: "staging",
			},
			wantField: "Environment",
			wantTag:   "oneof",
		},
		{
			name: "malformed ip",
			input: keyRequestFixture{
				Name:       "ci",
				Scopes:     []string{"parameters:read"},
				AllowedIPs: []string{"10.0.0"},
			},
			wantField: "AllowedIPs[0]",
			wantTag:   "ip",
		},
		{
			name: "expiry too far out",
			input: keyRequestFixture{
				Name:          "ci",
				Scopes:        []string{"parameters:read"},
				ExpiresInDays: 4000,
			},
			wantField: "ExpiresInDays",
			wantTag:   "max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatal("ValidateStruct() should have returned an error")
			}

			found := false
			for _, e := range err.Errors() {
				if e.Field() == tt.wantField && e.Tag() == tt.wantTag {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error on field %s with tag %s, got: %v",
					tt.wantField, tt.wantTag, err.Errors())
			}
		})
	}
}

// pathParamsFixture exercises the gateway-specific pathid and sessionid
// validators registered in GetValidator.
type pathParamsFixture struct {
	UserID    string `validate:"omitempty,pathid"`
	SessionID string `validate:"omitempty,sessionid"`
}

func TestPathIDValidator(t *testing.T) {
	valid := []string{"user-1", "abc_DEF-123", "0", "a"}
	for _, v := range valid {
		input := pathParamsFixture{UserID: v}
		if err := ValidateStruct(&input); err != nil {
			t.Errorf("pathid rejected %q: %v", v, err)
		}
	}

	invalid := []string{"bad user!", "user/1", "user.name", "café"}
	for _, v := range invalid {
		input := pathParamsFixture{UserID: v}
		err := ValidateStruct(&input)
		if err == nil {
			t.Errorf("pathid accepted %q", v)
			continue
		}
		if got := err.Errors()[0].Tag(); got != "pathid" {
			t.Errorf("tag for %q = %s, want pathid", v, got)
		}
	}
}

func TestSessionIDValidator(t *testing.T) {
	valid := []string{
		"session_1724572800000_abc123XYZ",
		"session_1_a",
	}
	for _, v := range valid {
		input := pathParamsFixture{SessionID: v}
		if err := ValidateStruct(&input); err != nil {
			t.Errorf("sessionid rejected %q: %v", v, err)
		}
	}

	invalid := []string{
		"sess_1_abc",
		"session__abc",
		"session_12_",
		"SESSION_1_abc",
		"session_1_ab-c",
		"session_x_abc",
	}
	for _, v := range invalid {
		input := pathParamsFixture{SessionID: v}
		err := ValidateStruct(&input)
		if err == nil {
			t.Errorf("sessionid accepted %q", v)
			continue
		}
		if got := err.Errors()[0].Tag(); got != "sessionid" {
			t.Errorf("tag for %q = %s, want sessionid", v, got)
		}
	}
}

func TestToAPIErrorSingleError(t *testing.T) {
	input := keyRequestFixture{Scopes: []string{"parameters:read"}}

	err := ValidateStruct(&input)
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %s, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Message != "Name is required" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "Name is required")
	}
	if apiErr.Details == nil {
		t.Fatal("expected details to be set")
	}
	if apiErr.Details["field"] != "Name" {
		t.Errorf("Details[field] = %v, want Name", apiErr.Details["field"])
	}
}

func TestToAPIErrorMultipleErrors(t *testing.T) {
	input := keyRequestFixture{
		Environment:   "staging",
		ExpiresInDays: 4000,
	}

	err := ValidateStruct(&input)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(err.Errors()) < 3 {
		t.Fatalf("got %d errors, want at least 3", len(err.Errors()))
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %s, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Details == nil {
		t.Fatal("expected details to contain field information")
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("expected details to contain fields key")
	}
}

type innerFixture struct {
	Value string `validate:"required"`
}

type outerFixture struct {
	Inner innerFixture `validate:"required"`
}

func TestNestedStructValidation(t *testing.T) {
	valid := outerFixture{Inner: innerFixture{Value: "set"}}
	if err := ValidateStruct(&valid); err != nil {
		t.Errorf("ValidateStruct() returned unexpected error for valid nested struct: %v", err)
	}

	invalid := outerFixture{}
	if err := ValidateStruct(&invalid); err == nil {
		t.Error("ValidateStruct() should have returned error for empty nested struct")
	}
}

func TestErrorMessageTranslation(t *testing.T) {
	type messageFixture struct {
		Name        string `validate:"required"`
		Code        string `validate:"omitempty,min=4"`
		Environment string `validate:"omitempty,oneof=live test"`
		UserID      string `validate:"omitempty,pathid"`
	}

	tests := []struct {
		name  string
		input messageFixture
		want  string
	}{
		{
			name:  "required",
			input: messageFixture{},
			want:  "Name is required",
		},
		{
			name:  "min on string counts characters",
			input: messageFixture{Name: "x", Code: "ab"},
			want:  "Code must be at least 4 characters",
		},
		{
			name:  "oneof lists choices",
			input: messageFixture{Name: "x", Environment: "staging"},
			want:  "Environment must be one of: live test",
		},
		{
			name:  "pathid names the charset",
			input: messageFixture{Name: "x", UserID: "bad user!"},
			want:  "UserID must contain only letters, digits, hyphens, and underscores",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}

			found := false
			for _, e := range err.Errors() {
				if e.Error() == tt.want {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("no error with message %q in %v", tt.want, err.Errors())
			}
		})
	}
}
