package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	JobsKey      = "reminders:jobs"
	DueKey       = "reminders:due"
	DeadKey      = "reminders:dead"
	OutboxStream = "reminders:outbox"
)

var ErrJobNotFound = errors.New("reminder job not found")

// Job is a delayed reminder. The body lives in the JobsKey hash; DueKey scores
// the id by run time in unix milliseconds.
type Job struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Payload   map[string]string `json:"payload"`
	RunAt     time.Time         `json:"run_at"`
	Attempts  int               `json:"attempts"`
	CreatedAt time.Time         `json:"created_at"`
}

// Queue is a Redis delayed job queue. Safe for use by many API replicas and
// workers at once.
type Queue struct {
	client *redis.Client
	now    func() time.Time
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client, now: time.Now}
}

func (q *Queue) Enqueue(ctx context.Context, name string, payload map[string]string, delay time.Duration) (string, error) {
	if delay < 0 {
		delay = 0
	}

	now := q.now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		RunAt:     now.Add(delay),
		CreatedAt: now,
	}

	if err := q.put(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	return job.ID, nil
}

func (q *Queue) put(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, JobsKey, job.ID, data)
		p.ZAdd(ctx, DueKey, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		return nil
	})
	return err
}

// Cancel removes jobs that have not been claimed yet. Unknown ids are ignored.
func (q *Queue) Cancel(ctx context.Context, jobIDs ...string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	members := make([]any, len(jobIDs))
	for i, id := range jobIDs {
		members[i] = id
	}

	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, DueKey, members...)
		p.HDel(ctx, JobsKey, jobIDs...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel reminders: %w", err)
	}
	return nil
}

// claimScript pops up to ARGV[2] ids due at or before ARGV[1].
var claimScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, id in ipairs(ids) do
  redis.call("ZREM", KEYS[1], id)
end
return ids
`)

// Claim atomically takes due jobs off the schedule. A claimed job stays in the
// hash until Complete or Retry; RecoverOrphans reschedules it if the worker
// dies in between. Bodies that fail to decode are moved to DeadKey and their
// ids returned in dead.
func (q *Queue) Claim(ctx context.Context, limit int) (jobs []Job, dead []string, err error) {
	if limit <= 0 {
		limit = 100
	}

	res, err := claimScript.Run(ctx, q.client, []string{DueKey}, q.now().UnixMilli(), limit).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("claim reminders: %w", err)
	}
	if len(res) == 0 {
		return nil, nil, nil
	}

	vals, err := q.client.HMGet(ctx, JobsKey, res...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("load reminders: %w", err)
	}

	jobs = make([]Job, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// cancelled between schedule and claim
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			if derr := q.deadLetter(ctx, res[i], raw); derr != nil {
				return jobs, dead, derr
			}
			dead = append(dead, res[i])
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, dead, nil
}

func (q *Queue) deadLetter(ctx context.Context, jobID, raw string) error {
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, DeadKey, jobID, raw)
		p.HDel(ctx, JobsKey, jobID)
		p.ZRem(ctx, DueKey, jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter reminder %s: %w", jobID, err)
	}
	return nil
}

// RecoverOrphans puts jobs back on the schedule whose body is in the hash but
// whose schedule entry is gone, i.e. claimed by a worker that never completed
// or retried them. Jobs claimed less than grace ago are left to their worker.
func (q *Queue) RecoverOrphans(ctx context.Context, grace time.Duration) (recovered int, err error) {
	cutoff := q.now().UTC().Add(-grace)

	var cursor uint64
	for {
		var kv []string
		kv, cursor, err = q.client.HScan(ctx, JobsKey, cursor, "", 500).Result()
		if err != nil {
			return recovered, fmt.Errorf("scan reminders: %w", err)
		}

		for i := 0; i+1 < len(kv); i += 2 {
			id, raw := kv[i], kv[i+1]

			err := q.client.ZScore(ctx, DueKey, id).Err()
			if err == nil {
				continue
			}
			if !errors.Is(err, redis.Nil) {
				return recovered, fmt.Errorf("check schedule %s: %w", id, err)
			}

			var job Job
			if err := json.Unmarshal([]byte(raw), &job); err != nil {
				if err := q.deadLetter(ctx, id, raw); err != nil {
					return recovered, err
				}
				continue
			}
			if job.RunAt.After(cutoff) {
				continue
			}

			// NX: a concurrent Retry or Enqueue wins
			err = q.client.ZAddNX(ctx, DueKey, redis.Z{Score: float64(q.now().UnixMilli()), Member: id}).Err()
			if err != nil {
				return recovered, fmt.Errorf("reschedule %s: %w", id, err)
			}
			recovered++
		}

		if cursor == 0 {
			return recovered, nil
		}
	}
}

func (q *Queue) Complete(ctx context.Context, jobID string) error {
	return q.client.HDel(ctx, JobsKey, jobID).Err()
}

// Retry puts a claimed job back on the schedule after delay.
func (q *Queue) Retry(ctx context.Context, job Job, delay time.Duration) error {
	job.Attempts++
	job.RunAt = q.now().UTC().Add(delay)
	return q.put(ctx, job)
}

// get returns a job whether or not it is scheduled.
func (q *Queue) get(ctx context.Context, jobID string) (*Job, error) {
	raw, err := q.client.HGet(ctx, JobsKey, jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode reminder %s: %w", jobID, err)
	}
	return &job, nil
}

// Pending counts scheduled jobs.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, DueKey).Result()
}
