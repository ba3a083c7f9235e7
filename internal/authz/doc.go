// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

// Package authz decides whether an authenticated identity may perform
// an operation.
//
// The decision is set containment: a request is admitted iff every
// permission the route requires is held by the identity. Holding all
// but one is a denial. The held set is the identity's explicit grants
// (JWT claim permissions or API key scopes) widened by whatever the
// identity's role grants through the Casbin policy, so a developer
// token with an empty permissions claim still writes parameters.
//
// Two exceptions to plain containment:
//
//   - Admin users are admitted unconditionally, before any permission
//     is looked at. API keys never qualify; admin is a user role.
//   - An empty requirement admits any authenticated identity.
//
// Denials respond 403 with code INSUFFICIENT_PERMISSIONS and carry the
// required and available sets in the body. The caller already knows
// what it asked for, and seeing what it holds makes scope mistakes
// diagnosable without a support round trip.
//
// The model and default policy are embedded in the binary; a deploy
// can override both with files and get periodic reload. Decisions are
// cached per (role, permission) with a TTL, invalidated on policy
// mutation.
package authz
