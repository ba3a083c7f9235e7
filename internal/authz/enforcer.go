// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/Coolhgg/relife-gateway/internal/metrics"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// rolePrefix namespaces role subjects in the policy so they can never
// collide with user or key IDs.
const rolePrefix = "role:"

// Permission vocabulary enforced on the protected routes. API-key
// scopes use the same strings.
const (
	PermParametersRead   = "parameters:read"
	PermParametersWrite  = "parameters:write"
	PermParametersDeploy = "parameters:deploy"
	PermAdminKeys        = "admin:keys"
	PermAdminAudit       = "admin:audit"
)

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when it points at an
	// existing file.
	ModelPath string

	// PolicyPath overrides the embedded policy when it points at an
	// existing file.
	PolicyPath string

	// AutoReload re-reads a file-backed policy on an interval.
	AutoReload bool

	// ReloadInterval is how often to check for policy changes.
	ReloadInterval time.Duration

	// CacheEnabled enables decision caching.
	CacheEnabled bool

	// CacheTTL is how long cached decisions stay valid.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns production defaults.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		AutoReload:     true,
		ReloadInterval: 30 * time.Second,
		CacheEnabled:   true,
		CacheTTL:       5 * time.Minute,
	}
}

// Enforcer answers whether a role grants a permission. It wraps a
// Casbin SyncedEnforcer loaded from the embedded model and policy, or
// from files when configured, with an optional TTL decision cache.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
}

// NewEnforcer creates an authorization enforcer.
func NewEnforcer(config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	var m model.Model
	var err error
	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" && fileExists(config.PolicyPath) {
		adapter := fileadapter.NewAdapter(config.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if config.AutoReload && config.PolicyPath != "" {
		enforcer.StartAutoLoadPolicy(config.ReloadInterval)
	}

	e := &Enforcer{
		config:   config,
		enforcer: enforcer,
	}
	if config.CacheEnabled {
		e.cache = newDecisionCache(config.CacheTTL)
	}
	return e, nil
}

// loadEmbeddedPolicy parses and loads the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		ptype := parts[0]
		rule := parts[1:]
		switch ptype {
		case "p":
			if len(rule) >= 3 {
				if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
					return fmt.Errorf("failed to add policy %v: %w", rule, err)
				}
			}
		case "g":
			if len(rule) >= 2 {
				if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
					return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
				}
			}
		}
	}
	return nil
}

// RoleSubject maps a role name like "developer" to its policy subject.
func RoleSubject(role string) string {
	return rolePrefix + role
}

// splitPermission maps a permission string to the (resource, action)
// pair the model matches on. A string without a colon keeps its whole
// text as the resource and matches only wildcard-action rows.
func splitPermission(perm string) (obj, act string) {
	if resource, action, ok := strings.Cut(perm, ":"); ok {
		return resource, action
	}
	return perm, "*"
}

// RoleGrants reports whether the subject's role chain grants the
// permission. Decisions go through the cache when one is configured.
func (e *Enforcer) RoleGrants(subject, perm string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(subject, perm); ok {
			metrics.RecordAuthzCacheLookup(true)
			return allowed, nil
		}
		metrics.RecordAuthzCacheLookup(false)
	}

	obj, act := splitPermission(perm)
	allowed, err := e.enforcer.Enforce(subject, obj, act)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.set(subject, perm, allowed)
	}
	return allowed, nil
}

// GrantsForRole returns every concrete permission string the role holds
// through the policy, including inherited roles, sorted. Wildcard rows
// are omitted: they grant everything and enumerate as nothing.
func (e *Enforcer) GrantsForRole(role string) ([]string, error) {
	rules, err := e.enforcer.GetImplicitPermissionsForUser(RoleSubject(role))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate role grants: %w", err)
	}

	seen := make(map[string]bool, len(rules))
	grants := make([]string, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 || rule[1] == "*" || rule[2] == "*" {
			continue
		}
		perm := rule[1] + ":" + rule[2]
		if !seen[perm] {
			seen[perm] = true
			grants = append(grants, perm)
		}
	}
	sort.Strings(grants)
	return grants, nil
}

// AddRoleGrant adds a permission row for a role at runtime.
func (e *Enforcer) AddRoleGrant(role, perm string) (bool, error) {
	obj, act := splitPermission(perm)
	added, err := e.enforcer.AddPolicy(RoleSubject(role), obj, act)
	if err != nil {
		return false, fmt.Errorf("failed to add policy: %w", err)
	}
	if e.cache != nil {
		e.cache.clear()
	}
	return added, nil
}

// RemoveRoleGrant removes a permission row for a role.
func (e *Enforcer) RemoveRoleGrant(role, perm string) (bool, error) {
	obj, act := splitPermission(perm)
	removed, err := e.enforcer.RemovePolicy(RoleSubject(role), obj, act)
	if err != nil {
		return false, fmt.Errorf("failed to remove policy: %w", err)
	}
	if e.cache != nil {
		e.cache.clear()
	}
	return removed, nil
}

// Policy returns all permission rows currently loaded.
func (e *Enforcer) Policy() [][]string {
	//nolint:errcheck // GetPolicy only fails if enforcer is nil, which is a programming error
	rules, _ := e.enforcer.GetPolicy()
	return rules
}

// RoleInheritance returns all role inheritance rows.
func (e *Enforcer) RoleInheritance() [][]string {
	//nolint:errcheck // GetGroupingPolicy only fails if enforcer is nil, which is a programming error
	rules, _ := e.enforcer.GetGroupingPolicy()
	return rules
}

// Close stops background policy reloads and the cache janitor.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
	if e.cache != nil {
		e.cache.stop()
	}
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
