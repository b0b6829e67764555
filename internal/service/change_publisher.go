package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule/pkg/jobs"
)

const changeJobType = "schedule.changed"

// MessagePublisher is the subset of the Redis client used to broadcast changes.
type MessagePublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// ChangeEvent is the payload subscribers receive on the change channel.
type ChangeEvent struct {
	EventID    string    `json:"event_id"`
	Sequence   uint64    `json:"sequence"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ChangePublisher is a Listener that relays change signals to Redis through a background
// queue, so the writer holding the store lock never waits on the network.
type ChangePublisher struct {
	client   MessagePublisher
	channel  string
	queue    *jobs.Queue
	metrics  *MetricsService
	logger   *zap.Logger
	sequence uint64
}

// ChangePublisherConfig tunes the publishing queue.
type ChangePublisherConfig struct {
	Channel    string
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// NewChangePublisher builds the publisher; call Start before registering it.
func NewChangePublisher(client MessagePublisher, cfg ChangePublisherConfig, metrics *MetricsService, logger *zap.Logger) *ChangePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Channel == "" {
		cfg.Channel = "schedules.changed"
	}
	p := &ChangePublisher{client: client, channel: cfg.Channel, metrics: metrics, logger: logger}
	p.queue = jobs.NewQueue("schedule-changes", p.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return p
}

// Start launches the publishing workers.
func (p *ChangePublisher) Start(ctx context.Context) {
	p.queue.Start(ctx)
}

// Stop halts the workers; undelivered events are dropped.
func (p *ChangePublisher) Stop() {
	p.queue.Stop()
}

// Stats exposes the queue counters.
func (p *ChangePublisher) Stats() jobs.Stats {
	return p.queue.Stats()
}

// ScheduleChanged implements Listener. It never blocks; events beyond the buffer are dropped.
func (p *ChangePublisher) ScheduleChanged() {
	event := ChangeEvent{
		EventID:    uuid.NewString(),
		Sequence:   atomic.AddUint64(&p.sequence, 1),
		OccurredAt: time.Now().UTC(),
	}
	if err := p.queue.TryEnqueue(jobs.Job{ID: event.EventID, Type: changeJobType, Payload: event}); err != nil {
		p.metrics.RecordPublish(err)
		p.logger.Warn("schedule change event not queued", zap.String("event_id", event.EventID), zap.Error(err))
	}
}

func (p *ChangePublisher) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(ChangeEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	err = p.client.Publish(ctx, p.channel, payload).Err()
	p.metrics.RecordPublish(err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	p.logger.Debug("schedule change published", zap.String("channel", p.channel), zap.Uint64("sequence", event.Sequence))
	return nil
}
