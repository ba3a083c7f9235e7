// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package apikeys

import (
	"context"
	"time"

	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
)

// defaultMaintenanceInterval spaces the housekeeping passes.
const defaultMaintenanceInterval = 5 * time.Minute

// Maintenance is the supervised housekeeping loop for the key service:
// it sweeps idle per-key limiters, refreshes the active-key gauge, and
// runs Badger value-log GC when that backend is in use.
type Maintenance struct {
	service  *Service
	interval time.Duration
}

// NewMaintenance returns a maintenance loop for the service. interval
// <= 0 uses the default.
func NewMaintenance(service *Service, interval time.Duration) *Maintenance {
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}
	return &Maintenance{service: service, interval: interval}
}

// Serve runs housekeeping until the context is cancelled. It satisfies
// suture.Service.
func (m *Maintenance) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Maintenance) runOnce(ctx context.Context) {
	tracked := m.service.sweepLimiters(time.Now())

	count, err := m.service.ActiveKeyCount(ctx)
	if err != nil {
		logging.WithComponent("apikeys").Debug().
			Err(err).
			Msg("active key count failed")
	} else {
		metrics.SetActiveKeys(count)
	}

	if bs, ok := m.service.store.(*BadgerStore); ok {
		if err := bs.RunGC(); err != nil {
			logging.WithComponent("apikeys").Debug().
				Err(err).
				Msg("key store GC pass failed")
		}
	}

	logging.WithComponent("apikeys").Debug().
		Int("tracked_limiters", tracked).
		Int64("active_keys", count).
		Msg("key maintenance pass complete")
}

// String names the service in supervisor logs.
func (m *Maintenance) String() string { return "apikeys.Maintenance" }
