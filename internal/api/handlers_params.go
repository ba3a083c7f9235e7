// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Coolhgg/relife-gateway/internal/audit"
	"github.com/Coolhgg/relife-gateway/internal/auth"
	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
	"github.com/Coolhgg/relife-gateway/internal/response"
	"github.com/Coolhgg/relife-gateway/internal/validation"
)

// CategoryDeployment is the parameter category routed through the
// critical rate class and the parameters:deploy permission.
const CategoryDeployment = "deployment"

// maxUpdateBodyBytes caps a parameter update request body.
const maxUpdateBodyBytes = 1 << 20

// maxSessionUpdates bounds the per-session update history.
const maxSessionUpdates = 100

// ParameterUpdate is the validated body of PUT /api/v1/ai-parameters.
type ParameterUpdate struct {
	Category   string
	Parameters map[string]interface{}
	UserID     string
	Immediate  bool
}

type contextKey string

const updateContextKey contextKey = "parameter_update"

func withUpdate(ctx context.Context, upd *ParameterUpdate) context.Context {
	return context.WithValue(ctx, updateContextKey, upd)
}

// UpdateFromContext returns the validated parameter update placed in
// the context by ValidateUpdate.
func UpdateFromContext(ctx context.Context) (*ParameterUpdate, bool) {
	upd, ok := ctx.Value(updateContextKey).(*ParameterUpdate)
	return upd, ok
}

// CategoryState is the stored state of one parameter category for one
// user.
type CategoryState struct {
	Parameters map[string]interface{} `json:"parameters"`
	Version    int                    `json:"version"`
	Immediate  bool                   `json:"immediate"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	UpdatedBy  string                 `json:"updatedBy"`
}

// SessionUpdate is one entry in a session's update history.
type SessionUpdate struct {
	UserID    string    `json:"userId"`
	Category  string    `json:"category"`
	Version   int       `json:"version"`
	Immediate bool      `json:"immediate"`
	AppliedAt time.Time `json:"appliedAt"`
}

// ParameterStore keeps applied parameter sets in process memory, keyed
// by user and category, with a per-session update history. The durable
// hand-off to the parameter backend happens outside the gateway; this
// store serves reads back to operators in the meantime.
type ParameterStore struct {
	mu       sync.RWMutex
	users    map[string]map[string]*CategoryState
	sessions map[string][]SessionUpdate
}

// NewParameterStore builds an empty store.
func NewParameterStore() *ParameterStore {
	return &ParameterStore{
		users:    make(map[string]map[string]*CategoryState),
		sessions: make(map[string][]SessionUpdate),
	}
}

// Apply records an update and returns the category's new version.
// sessionID may be empty for API-key callers.
func (s *ParameterStore) Apply(upd *ParameterUpdate, actor, sessionID string) *CategoryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories, ok := s.users[upd.UserID]
	if !ok {
		categories = make(map[string]*CategoryState)
		s.users[upd.UserID] = categories
	}

	version := 1
	if prev, ok := categories[upd.Category]; ok {
		version = prev.Version + 1
	}
	state := &CategoryState{
		Parameters: upd.Parameters,
		Version:    version,
		Immediate:  upd.Immediate,
		UpdatedAt:  time.Now().UTC(),
		UpdatedBy:  actor,
	}
	categories[upd.Category] = state

	if sessionID != "" {
		history := append(s.sessions[sessionID], SessionUpdate{
			UserID:    upd.UserID,
			Category:  upd.Category,
			Version:   version,
			Immediate: upd.Immediate,
			AppliedAt: state.UpdatedAt,
		})
		if len(history) > maxSessionUpdates {
			history = history[len(history)-maxSessionUpdates:]
		}
		s.sessions[sessionID] = history
	}

	return state
}

// User returns all stored categories for a user.
func (s *ParameterStore) User(userID string) (map[string]*CategoryState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	out := make(map[string]*CategoryState, len(categories))
	for name, state := range categories {
		out[name] = state
	}
	return out, true
}

// Session returns the update history recorded for a session.
func (s *ParameterStore) Session(sessionID string) ([]SessionUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	out := make([]SessionUpdate, len(history))
	copy(out, history)
	return out, true
}

// ParameterHandlers serves the protected parameter routes.
type ParameterHandlers struct {
	store *ParameterStore
	trail *audit.Trail
}

// NewParameterHandlers builds the handlers around the store.
func NewParameterHandlers(store *ParameterStore, trail *audit.Trail) *ParameterHandlers {
	return &ParameterHandlers{store: store, trail: trail}
}

// ValidateUpdate decodes and validates the parameter update body,
// collecting every violation before rejecting. The validated update is
// placed in the request context for the stages behind it.
func (h *ParameterHandlers) ValidateUpdate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpdateBodyBytes)

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeBadRequest,
				"Invalid JSON body")
			return
		}

		if violations := validation.ValidateParameterUpdate(payload); len(violations) > 0 {
			h.trail.RecordValidationFailure(r, actorID(r), violations)
			metrics.RecordValidationFailure("parameter_update")
			response.ErrorDetails(w, http.StatusBadRequest, response.CodeValidationError,
				"Validation failed", violations)
			return
		}

		// Field types are guaranteed by the validation above.
		upd := &ParameterUpdate{}
		upd.Category, _ = payload["category"].(string)
		upd.Parameters, _ = payload["parameters"].(map[string]interface{})
		upd.UserID, _ = payload["userId"].(string)
		upd.Immediate, _ = payload["immediate"].(bool)
		next(w, r.WithContext(withUpdate(r.Context(), upd)))
	}
}

// Update applies a validated parameter update.
// PUT /api/v1/ai-parameters
func (h *ParameterHandlers) Update(w http.ResponseWriter, r *http.Request) {
	upd, ok := UpdateFromContext(r.Context())
	if !ok {
		response.Internal(w)
		return
	}

	var actor, sessionID string
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		actor = identity.ActorID()
		sessionID = identity.SessionID()
	}

	state := h.store.Apply(upd, actor, sessionID)

	logging.Ctx(r.Context()).Info().
		Str("user_id", upd.UserID).
		Str("category", upd.Category).
		Int("version", state.Version).
		Bool("immediate", upd.Immediate).
		Str("actor", actor).
		Msg("parameter update applied")

	response.Success(w, map[string]interface{}{
		"userId":    upd.UserID,
		"category":  upd.Category,
		"version":   state.Version,
		"immediate": upd.Immediate,
		"appliedAt": state.UpdatedAt,
	})
}

// GetUser returns all stored parameter categories for a user.
// GET /api/v1/ai-parameters/{userId}
func (h *ParameterHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userId")
	if violation := validation.ValidateUserIDParam(userID); violation != nil {
		h.rejectParam(w, r, violation)
		return
	}

	categories, ok := h.store.User(userID)
	if !ok {
		response.Error(w, http.StatusNotFound, response.CodeNotFound,
			"No parameters found for user")
		return
	}

	response.Success(w, map[string]interface{}{
		"userId":     userID,
		"categories": categories,
	})
}

// GetSession returns the update history recorded for a session.
// GET /api/v1/ai-parameters/sessions/{sessionId}
func (h *ParameterHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := pathParam(r, "sessionId")
	if violation := validation.ValidateSessionIDParam(sessionID); violation != nil {
		h.rejectParam(w, r, violation)
		return
	}

	updates, ok := h.store.Session(sessionID)
	if !ok {
		response.Error(w, http.StatusNotFound, response.CodeNotFound,
			"No updates found for session")
		return
	}

	response.Success(w, map[string]interface{}{
		"sessionId": sessionID,
		"updates":   updates,
		"count":     len(updates),
	})
}

func (h *ParameterHandlers) rejectParam(w http.ResponseWriter, r *http.Request, violation *validation.FieldViolation) {
	violations := validation.Violations{*violation}
	h.trail.RecordValidationFailure(r, actorID(r), violations)
	metrics.RecordValidationFailure("path_param")
	response.ErrorDetails(w, http.StatusBadRequest, response.CodeValidationError,
		"Validation failed", violations)
}

// actorID resolves the audit actor from the request identity, if any.
func actorID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.ActorID()
	}
	return ""
}
