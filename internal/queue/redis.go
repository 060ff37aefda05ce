package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	pendingKey    = "kosuke:queue:pending"
	recurringKey  = "kosuke:queue:recurring"
	recurringData = "kosuke:queue:recurring:data"
	cancelChannel = "kosuke:queue:cancel"
)

// intervalParser accepts @every interval descriptors; the maintenance
// family uses intervals only, never calendar expressions.
var intervalParser = cron.NewParser(cron.Descriptor)

// Redis implements Queue on a Redis instance: a list for pending tasks, a
// sorted set for recurring schedules, and a pub/sub channel to signal
// in-flight cancellation to consumers.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to Redis and validates connectivity.
func NewRedis(addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("queue: connect redis %s: %w", addr, err)
	}
	return &Redis{client: client, logger: logger}, nil
}

// Enqueue pushes a task onto the pending list.
func (r *Redis) Enqueue(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: marshal task %s: %w", task.ID, err)
	}
	if err := r.client.LPush(ctx, pendingKey, data).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", task.ID, err)
	}
	return nil
}

// Remove deletes a queued task by id and publishes a cancellation signal
// for consumers that may already hold it. The signal is fire-and-forget:
// the queue's view of the job is authoritative once this returns.
func (r *Redis) Remove(ctx context.Context, jobID string) error {
	tasks, err := r.client.LRange(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("queue: scan pending for %s: %w", jobID, err)
	}
	for _, raw := range tasks {
		var task Task
		if json.Unmarshal([]byte(raw), &task) != nil {
			continue
		}
		if task.ID == jobID {
			if err := r.client.LRem(ctx, pendingKey, 1, raw).Err(); err != nil {
				return fmt.Errorf("queue: remove %s: %w", jobID, err)
			}
			break
		}
	}
	if err := r.client.Publish(ctx, cancelChannel, jobID).Err(); err != nil {
		return fmt.Errorf("queue: signal cancel %s: %w", jobID, err)
	}
	return nil
}

type recurringRecord struct {
	Every string `json:"every"`
	Task  Task   `json:"task"`
}

// EnqueueRecurring registers (or replaces) the recurring entry for key with
// the given @every interval. At most one entry exists per key.
func (r *Redis) EnqueueRecurring(ctx context.Context, key, every string, task Task) error {
	sched, err := intervalParser.Parse(every)
	if err != nil {
		return fmt.Errorf("queue: parse interval %q: %w", every, err)
	}
	data, err := json.Marshal(recurringRecord{Every: every, Task: task})
	if err != nil {
		return fmt.Errorf("queue: marshal recurring %s: %w", key, err)
	}

	next := sched.Next(time.Now())
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, recurringData, key, data)
	pipe.ZAdd(ctx, recurringKey, redis.Z{Score: float64(next.Unix()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: register recurring %s: %w", key, err)
	}
	return nil
}

// RemoveRecurring deletes the recurring entry for key. Removing an absent
// key is a no-op.
func (r *Redis) RemoveRecurring(ctx context.Context, key string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, recurringKey, key)
	pipe.HDel(ctx, recurringData, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: unregister recurring %s: %w", key, err)
	}
	return nil
}

// DispatchDue moves every due recurring entry onto the pending list and
// reschedules it at its next interval. Called periodically by the scheduler
// loop.
func (r *Redis) DispatchDue(ctx context.Context, now time.Time) error {
	keys, err := r.client.ZRangeByScore(ctx, recurringKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return fmt.Errorf("queue: scan due recurring: %w", err)
	}

	for _, key := range keys {
		raw, err := r.client.HGet(ctx, recurringData, key).Result()
		if err == redis.Nil {
			r.client.ZRem(ctx, recurringKey, key)
			continue
		}
		if err != nil {
			return fmt.Errorf("queue: load recurring %s: %w", key, err)
		}
		var rec recurringRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			r.logger.Warn("dropping malformed recurring entry", "key", key, "error", err)
			r.client.ZRem(ctx, recurringKey, key)
			r.client.HDel(ctx, recurringData, key)
			continue
		}
		if err := r.Enqueue(ctx, rec.Task); err != nil {
			return err
		}
		sched, err := intervalParser.Parse(rec.Every)
		if err != nil {
			r.logger.Warn("dropping recurring entry with bad interval", "key", key, "every", rec.Every)
			r.client.ZRem(ctx, recurringKey, key)
			continue
		}
		next := sched.Next(now)
		if err := r.client.ZAdd(ctx, recurringKey, redis.Z{Score: float64(next.Unix()), Member: key}).Err(); err != nil {
			return fmt.Errorf("queue: reschedule recurring %s: %w", key, err)
		}
	}
	return nil
}

// Consume pulls tasks and runs handler on each. The per-task context is
// cancelled when a cancel signal for that job id arrives; handler errors
// are logged and do not stop the loop. Blocks until ctx is cancelled.
func (r *Redis) Consume(ctx context.Context, handler Handler) error {
	sub := r.client.Subscribe(ctx, cancelChannel)
	defer sub.Close()
	signals := sub.Channel()

	for {
		res, err := r.client.BRPop(ctx, 5*time.Second, pendingKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("queue: dequeue: %w", err)
		}

		var task Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			r.logger.Warn("dropping malformed task", "error", err)
			continue
		}

		taskCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			for {
				select {
				case msg, ok := <-signals:
					if !ok {
						return
					}
					if msg.Payload == task.ID {
						cancel()
					}
				case <-done:
					return
				}
			}
		}()

		if err := handler(taskCtx, task); err != nil {
			r.logger.Error("task handler failed", "job_id", task.ID, "family", task.Name, "error", err)
		}
		close(done)
		cancel()
	}
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
