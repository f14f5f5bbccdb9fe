package reminder

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/metrics"
)

// Publisher hands a due reminder to whatever delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, job Job) (string, error)
}

// StreamPublisher appends due reminders to a Redis stream that notification
// services consume with a consumer group.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = OutboxStream
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, job Job) (string, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"job_id":   job.ID,
			"name":     job.Name,
			"payload":  string(payload),
			"run_at":   job.RunAt.Format(time.RFC3339),
			"attempts": strconv.Itoa(job.Attempts),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	return p.client.XAdd(ctx, args).Result()
}

type WorkerOptions struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
	BatchSize    int
	// SweepInterval is how often claimed but unfinished jobs are put back on
	// the schedule. OrphanGrace is how long a claim may stay unfinished first.
	SweepInterval time.Duration
	OrphanGrace   time.Duration
}

// Worker moves due jobs from the queue to the publisher. Delivery is at least
// once: a failed publish reschedules the job.
type Worker struct {
	queue   *Queue
	pub     Publisher
	opts    WorkerOptions
	log     *zap.Logger
	metrics *metrics.Collector
}

func NewWorker(queue *Queue, pub Publisher, opts WorkerOptions, log *zap.Logger, m *metrics.Collector) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.OrphanGrace <= 0 {
		opts.OrphanGrace = 2 * time.Minute
	}
	return &Worker{queue: queue, pub: pub, opts: opts, log: log, metrics: m}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("reminder worker started",
		zap.Duration("interval", w.opts.PollInterval),
		zap.Int("batch_size", w.opts.BatchSize),
	)

	w.sweep(ctx)
	w.tick(ctx)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	sweeper := time.NewTicker(w.opts.SweepInterval)
	defer sweeper.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("reminder worker stopping")
			return nil
		case <-ticker.C:
			w.tick(ctx)
		case <-sweeper.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	n, err := w.queue.RecoverOrphans(runCtx, w.opts.OrphanGrace)
	if n > 0 {
		w.metrics.RemindersTotal.WithLabelValues("recovered").Add(float64(n))
		w.log.Info("rescheduled orphaned reminders", zap.Int("count", n))
	}
	if err != nil {
		w.log.Error("reminder sweep failed", zap.Error(err))
	}
}

func (w *Worker) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := w.RunOnce(runCtx)
	if err != nil {
		w.log.Error("reminder run failed", zap.Error(err))
		return
	}
	if n == 0 {
		return
	}

	fields := []zap.Field{zap.Int("dispatched", n), zap.Duration("took", time.Since(start))}
	if pending, err := w.queue.Pending(runCtx); err == nil {
		fields = append(fields, zap.Int64("pending", pending))
	}
	w.log.Info("reminder run complete", fields...)
}

// RunOnce drains one batch and returns how many jobs were published. A job
// that cannot be rescheduled after a failed publish stays in the hash for the
// next sweep; the rest of the batch still runs.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, dead, err := w.queue.Claim(ctx, w.opts.BatchSize)
	for _, id := range dead {
		w.metrics.RemindersTotal.WithLabelValues("dead_lettered").Inc()
		w.log.Error("undecodable reminder moved to dead letters", zap.String("job_id", id), zap.String("key", DeadKey))
	}
	if err != nil && len(jobs) == 0 {
		return 0, err
	}
	if err != nil {
		w.log.Error("reminder claim incomplete", zap.Error(err))
	}

	dispatched := 0
	for _, job := range jobs {
		msgID, err := w.pub.Publish(ctx, job)
		if err != nil {
			w.metrics.RemindersTotal.WithLabelValues("dispatch_failed").Inc()
			w.log.Warn("reminder publish failed, rescheduling",
				zap.String("job_id", job.ID),
				zap.String("name", job.Name),
				zap.Int("attempts", job.Attempts+1),
				zap.Error(err),
			)
			if rerr := w.queue.Retry(ctx, job, w.opts.RetryDelay); rerr != nil {
				w.metrics.RemindersTotal.WithLabelValues("retry_failed").Inc()
				w.log.Error("reminder reschedule failed, left for sweep",
					zap.String("job_id", job.ID),
					zap.Error(rerr),
				)
			}
			continue
		}

		if err := w.queue.Complete(ctx, job.ID); err != nil {
			w.log.Warn("failed to drop published reminder", zap.String("job_id", job.ID), zap.Error(err))
		}
		w.metrics.RemindersTotal.WithLabelValues("dispatched").Inc()
		w.log.Debug("reminder dispatched",
			zap.String("job_id", job.ID),
			zap.String("name", job.Name),
			zap.String("message_id", msgID),
		)
		dispatched++
	}
	return dispatched, nil
}
