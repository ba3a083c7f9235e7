// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

/*
Package supervisor provides process supervision for the gateway using
suture v4.

The tree organizes services into three layers for failure isolation:

	Root ("relife-gateway")
	├── audit-layer
	│   ├── audit.Trail
	│   └── audit.Forwarder (if NATS_ENABLED)
	├── housekeeping-layer
	│   ├── auth.Janitor
	│   └── apikeys.Maintenance
	└── api-layer
	    └── HTTPServerService

Each layer restarts its services independently with backoff, so a
failing background loop never takes the request path down with it.
Services implement suture.Service: a blocking Serve(ctx) that returns
when the context is canceled, and a String() name for supervision logs.
The audit trail, NATS forwarder, rate-limit janitor, and key
maintenance loop implement the interface directly; http.Server is
adapted by HTTPServerService.

Supervision events are logged through sutureslog into the process log
(see logging.NewSlogLogger for the zerolog bridge).
*/
package supervisor
