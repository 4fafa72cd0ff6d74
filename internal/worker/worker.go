// Package worker consumes entry events from NATS and journals them into the
// audit table.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Noah-Huppert/wallet-service/internal/model"
	"github.com/Noah-Huppert/wallet-service/internal/repository"
	"github.com/Noah-Huppert/wallet-service/internal/service"
)

// queueGroup names the NATS queue group. With several API replicas running,
// only one worker receives each event.
const queueGroup = "wallet_audit"

// AuditWorker subscribes to entry event topics and records each event.
type AuditWorker struct {
	svc    service.WalletService
	nc     *nats.Conn
	logger *slog.Logger

	subs []*nats.Subscription
}

// NewAuditWorker creates a worker over the given service and connection.
func NewAuditWorker(svc service.WalletService, nc *nats.Conn, logger *slog.Logger) *AuditWorker {
	return &AuditWorker{svc: svc, nc: nc, logger: logger}
}

// Start subscribes to the entry event topics and blocks until ctx is
// cancelled, then drains the subscriptions.
func (w *AuditWorker) Start(ctx context.Context) error {
	for _, topic := range []string{repository.TopicEntryCreated, repository.TopicEntryConsumed} {
		sub, err := w.nc.QueueSubscribe(topic, queueGroup, func(m *nats.Msg) {
			if err := w.handleMessage(ctx, m.Data); err != nil {
				w.logger.Error("failed to journal entry event", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		w.subs = append(w.subs, sub)
	}

	w.logger.Info("audit worker running", "queue_group", queueGroup)

	<-ctx.Done()

	for _, sub := range w.subs {
		_ = sub.Drain()
	}
	return nil
}

// Stop unsubscribes; Start's drain normally already did the work.
func (w *AuditWorker) Stop(ctx context.Context) error {
	for _, sub := range w.subs {
		_ = sub.Unsubscribe()
	}
	return nil
}

// handleMessage decodes one bus message and records it. Redeliveries are
// harmless: RecordEvent is conflict-free on duplicates.
func (w *AuditWorker) handleMessage(ctx context.Context, data []byte) error {
	var event model.EntryEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to decode entry event: %w", err)
	}

	if err := w.svc.RecordEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record entry event %s/%s: %w", event.EntryID, event.Kind, err)
	}

	return nil
}
