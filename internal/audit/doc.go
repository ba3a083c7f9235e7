// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

// Package audit records the gateway's security audit trail.
//
// Every stage of the request pipeline reports into a single Trail:
// authentication outcomes, authorization denials, validation rejections,
// request/response pairs and security violations. The trail is designed
// so that auditing can never slow down or fail a request.
//
// # Architecture
//
// The trail uses a producer-consumer pattern:
//
//	Trail.Record() -> intake queue (chan) -> writer goroutine -> Buffer
//	                        |                      |
//	                  non-blocking            supervised Serve loop
//	                  (drop on full)               |
//	                                          Forwarder outbox -> NATS
//
// Record is a non-blocking channel send; when the intake queue is full
// the entry is dropped and counted rather than blocking a request. The
// writer appends to the bounded Buffer and, when forwarding is enabled,
// tees each entry into the Forwarder's outbox for batched delivery to
// NATS JetStream.
//
// # Retention
//
// The Buffer holds at most BufferCap entries (default 1000). An append
// that would exceed the cap discards all but the most recent
// RetainOnEvict entries (default 500) before appending, so the trail
// always keeps the freshest window under sustained load.
//
// # Event Types
//
//   - auth_success, auth_failure, auth_error: authentication outcomes
//   - authorization_failure: permission or scope denials
//   - validation_failure: payload and path-parameter rejections
//   - api_request, api_response: pipeline entry and exit records
//   - security_error: CSRF mismatches, revoked-key replays and similar
//
// # Usage
//
//	trail := audit.NewTrail(audit.DefaultConfig())
//	tree.AddAuditService(trail) // supervisor owns the writer
//
//	trail.RecordAuthSuccess(r, userID, "jwt", sessionID)
//	trail.RecordAuthzFailure(r, userID, "jwt", required, available)
//
//	recent := trail.Recent(50)
//	stats := trail.Buffer().Stats()
//
// # SIEM Export
//
// The admin API exports the buffered window as indented JSON or ArcSight
// CEF:
//
//	data, _ := audit.NewCEFExporter().Export(trail.Recent(0))
package audit
