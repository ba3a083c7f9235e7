// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Coolhgg/relife-gateway/internal/apikeys"
	"github.com/Coolhgg/relife-gateway/internal/config"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/response"
	"github.com/Coolhgg/relife-gateway/internal/validation"
)

// maxKeyBodyBytes caps a key-management request body.
const maxKeyBodyBytes = 64 << 10

// KeyHandlers serves the admin key-management routes.
type KeyHandlers struct {
	svc *apikeys.Service
	api config.APIConfig
}

// NewKeyHandlers builds the handlers around the key service.
func NewKeyHandlers(svc *apikeys.Service, api config.APIConfig) *KeyHandlers {
	return &KeyHandlers{svc: svc, api: api}
}

// createKeyPayload is the request body for key creation. Scopes use the
// same permission strings the authorization stage checks.
type createKeyPayload struct {
	Name               string   `json:"name" validate:"required,min=1,max=100"`
	Scopes             []string `json:"scopes" validate:"required,min=1,dive,min=1,max=100"`
	Environment        string   `json:"environment" validate:"omitempty,oneof=live test"`
	OwnerUserID        string   `json:"ownerUserId" validate:"omitempty,max=255"`
	RateLimitPerMinute int      `json:"rateLimitPerMinute" validate:"omitempty,min=1,max=10000"`
	AllowedIPs         []string `json:"allowedIps" validate:"omitempty,dive,ip"`
	AllowedOrigins     []string `json:"allowedOrigins" validate:"omitempty,dive,min=1,max=253"`
	ExpiresInDays      int      `json:"expiresInDays" validate:"omitempty,min=1,max=3650"`
}

// Create issues a new API key. The plaintext key appears in this
// response only; the store keeps just its hash.
// POST /api/v1/admin/api-keys
func (h *KeyHandlers) Create(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		response.Error(w, http.StatusServiceUnavailable, response.CodeInternalError,
			"Key service not configured")
		return
	}

	var payload createKeyPayload
	r.Body = http.MaxBytesReader(w, r.Body, maxKeyBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeBadRequest,
			"Invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&payload); verr != nil {
		apiErr := verr.ToAPIError()
		response.ErrorDetails(w, http.StatusBadRequest, response.CodeValidationError,
			apiErr.Message, apiErr.Details)
		return
	}

	req := apikeys.CreateKeyRequest{
		Name:               payload.Name,
		Scopes:             payload.Scopes,
		Environment:        payload.Environment,
		OwnerUserID:        payload.OwnerUserID,
		RateLimitPerMinute: payload.RateLimitPerMinute,
		AllowedIPs:         payload.AllowedIPs,
		AllowedOrigins:     payload.AllowedOrigins,
	}
	if payload.ExpiresInDays > 0 {
		req.ExpiresIn = time.Duration(payload.ExpiresInDays) * 24 * time.Hour
	}

	key, rawKey, err := h.svc.CreateKey(r.Context(), req)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("key creation failed")
		response.Internal(w)
		return
	}

	response.Created(w, map[string]interface{}{
		"key":     key,
		"apiKey":  rawKey,
		"warning": "Store this key now. The full value is never shown again.",
	})
}

// List returns all key records, newest first. Hashes never leave the
// store; the plaintext was only available at creation.
// GET /api/v1/admin/api-keys
func (h *KeyHandlers) List(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		response.Error(w, http.StatusServiceUnavailable, response.CodeInternalError,
			"Key service not configured")
		return
	}

	keys, err := h.svc.ListKeys(r.Context())
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("key listing failed")
		response.Internal(w)
		return
	}

	response.Success(w, map[string]interface{}{
		"keys":  keys,
		"total": len(keys),
	})
}

// Revoke marks a key revoked. Revocation is permanent and idempotent.
// DELETE /api/v1/admin/api-keys/{id}
func (h *KeyHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		response.Error(w, http.StatusServiceUnavailable, response.CodeInternalError,
			"Key service not configured")
		return
	}

	id := pathParam(r, "id")
	key, err := h.svc.RevokeKey(r.Context(), id, actorID(r))
	if errors.Is(err, apikeys.ErrKeyNotFound) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "API key not found")
		return
	}
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("key_id", id).Msg("key revocation failed")
		response.Internal(w)
		return
	}

	response.Success(w, map[string]interface{}{
		"key":     key,
		"message": "API key revoked",
	})
}

// Usage returns the newest usage records for a key.
// GET /api/v1/admin/api-keys/{id}/usage
func (h *KeyHandlers) Usage(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		response.Error(w, http.StatusServiceUnavailable, response.CodeInternalError,
			"Key service not configured")
		return
	}

	id := pathParam(r, "id")
	limit := pageLimit(r, h.api)

	records, err := h.svc.Usage(r.Context(), id, limit)
	if errors.Is(err, apikeys.ErrKeyNotFound) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "API key not found")
		return
	}
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("key_id", id).Msg("usage lookup failed")
		response.Internal(w)
		return
	}

	response.Success(w, map[string]interface{}{
		"keyId":   id,
		"records": records,
		"count":   len(records),
	})
}

// pageLimit reads the limit query parameter, applying the configured
// default and ceiling.
func pageLimit(r *http.Request, api config.APIConfig) int {
	limit := api.DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if api.MaxPageSize > 0 && limit > api.MaxPageSize {
		limit = api.MaxPageSize
	}
	return limit
}
