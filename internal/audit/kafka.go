package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces audit payloads to the configured topic.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects to the brokers. Production is synchronous: the
// outbox worker only marks rows published once Kafka has acked them.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Publish sends one record keyed by aggregate so per-user ordering holds.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// OutboxWorker drains the Postgres outbox into Kafka. Rows are locked with
// SKIP LOCKED so multiple replicas can run the worker safely.
type OutboxWorker struct {
	store     *PostgresStore
	publisher *KafkaPublisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxWorker builds a worker with the given poll interval.
func NewOutboxWorker(store *PostgresStore, publisher *KafkaPublisher, logger *slog.Logger, interval time.Duration) *OutboxWorker {
	return &OutboxWorker{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: 100,
	}
}

// Run polls until the context is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (w *OutboxWorker) drainOnce(ctx context.Context) error {
	tx, err := w.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	batch, err := w.store.PendingBatch(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(batch))
	for _, row := range batch {
		if err := w.publisher.Publish(ctx, row.AggregateID, row.Payload); err != nil {
			// Stop the batch; unpublished rows stay pending for the next poll.
			break
		}
		published = append(published, row.ID)
	}
	if len(published) == 0 {
		return fmt.Errorf("published none of %d pending audit events", len(batch))
	}

	if err := w.store.MarkPublished(ctx, tx, published); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox tx: %w", err)
	}
	return nil
}
