// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package audit

import (
	"context"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/goccy/go-json"

	"github.com/Coolhgg/relife-gateway/internal/logging"
	"github.com/Coolhgg/relife-gateway/internal/metrics"
)

// ForwarderConfig controls outbox batching toward the durable log
// subject.
type ForwarderConfig struct {
	// Subject is the NATS subject entries are published to.
	Subject string

	// FlushInterval is how often the outbox is drained.
	FlushInterval time.Duration

	// BatchSize caps the number of entries published per flush.
	BatchSize int

	// QueueSize bounds the outbox. Entries offered while the outbox is
	// full are dropped; the buffer still holds them for the admin API.
	QueueSize int
}

// DefaultForwarderConfig returns production defaults.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		Subject:       "relife.audit.events",
		FlushInterval: 5 * time.Second,
		BatchSize:     100,
		QueueSize:     4096,
	}
}

// Forwarder drains audit entries to NATS JetStream in batches. Delivery
// is best-effort at-least-once: a failed publish re-queues nothing (the
// in-memory buffer keeps the recent window regardless), it only counts
// the failure. The forwarder runs as a supervised service.
type Forwarder struct {
	cfg       ForwarderConfig
	publisher message.Publisher
	outbox    chan Entry
}

// NewForwarder wraps a Watermill publisher with outbox batching.
func NewForwarder(cfg ForwarderConfig, publisher message.Publisher) (*Forwarder, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultForwarderConfig().Subject
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultForwarderConfig().FlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultForwarderConfig().BatchSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultForwarderConfig().QueueSize
	}
	return &Forwarder{
		cfg:       cfg,
		publisher: publisher,
		outbox:    make(chan Entry, cfg.QueueSize),
	}, nil
}

// NewNATSPublisher builds the Watermill NATS JetStream publisher the
// forwarder publishes through, with reconnection handling.
func NewNATSPublisher(url string) (message.Publisher, error) {
	wmLogger := logging.NewWatermillAdapter()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// Offer enqueues an entry for forwarding without blocking. Full outbox
// drops the entry; the bounded buffer is the availability guarantee,
// not the broker.
func (f *Forwarder) Offer(e Entry) {
	select {
	case f.outbox <- e:
	default:
	}
	metrics.UpdateNATSOutboxDepth(len(f.outbox))
}

// Serve flushes the outbox on each tick until ctx is canceled, then
// drains whatever is left and closes the publisher.
func (f *Forwarder) Serve(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-ctx.Done():
			for f.flush() > 0 {
			}
			if err := f.publisher.Close(); err != nil {
				logging.Warn().Err(err).Msg("Audit forwarder publisher close failed")
			}
			return ctx.Err()
		}
	}
}

func (f *Forwarder) String() string { return "audit.Forwarder" }

// flush drains up to BatchSize queued entries and publishes them,
// returning the number of entries taken from the outbox.
func (f *Forwarder) flush() int {
	batch := f.collect()
	if len(batch) == 0 {
		return 0
	}

	start := time.Now()
	var firstErr error
	for i := range batch {
		if err := f.publishEntry(&batch[i]); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	metrics.RecordNATSFlush(len(batch), time.Since(start), firstErr)
	metrics.UpdateNATSOutboxDepth(len(f.outbox))

	if firstErr != nil {
		logging.Warn().
			Err(firstErr).
			Int("batch_size", len(batch)).
			Msg("Audit forward flush had failures")
	}
	return len(batch)
}

func (f *Forwarder) collect() []Entry {
	batch := make([]Entry, 0, f.cfg.BatchSize)
	for len(batch) < f.cfg.BatchSize {
		select {
		case e := <-f.outbox:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (f *Forwarder) publishEntry(e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set("event", string(e.Event))
	msg.Metadata.Set("actor", e.ActorID)

	if err := f.publisher.Publish(f.cfg.Subject, msg); err != nil {
		return fmt.Errorf("publish audit entry %s: %w", id, err)
	}
	return nil
}
