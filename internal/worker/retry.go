package worker

// retry.go
// Failed jobs wait in a sorted set per queue (retry:{queue}) scored by the
// unix time of their next attempt. A ticker goroutine moves due jobs back
// onto the queue, and pauses while the gate (the SMTP breaker) is closed to
// traffic.

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	RetryPrefix = "retry:"

	retryTickInterval = 10 * time.Second
	retryBatchSize    = 50
)

// ScheduleRetry parks job until at.
func ScheduleRetry(ctx context.Context, rdb *redis.Client, queue string, job Job, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.ZAdd(ctx, RetryPrefix+queue, redis.Z{Score: float64(at.Unix()), Member: data}).Err()
}

// StartRetryScheduler promotes due retries for queue every tick until ctx is
// cancelled. paused, when non-nil and true, skips a tick.
func StartRetryScheduler(ctx context.Context, rdb *redis.Client, queue string, paused func() bool) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Str("queue", queue).Msg("retry scheduler started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Str("queue", queue).Msg("retry scheduler shutting down")
				return
			case now := <-ticker.C:
				if paused != nil && paused() {
					log.Debug().Str("queue", queue).Msg("retry scheduler paused")
					continue
				}
				if _, err := PromoteDue(ctx, rdb, queue, now); err != nil {
					log.Error().Err(err).Str("queue", queue).Msg("retry promotion failed")
				}
			}
		}
	}()
}

// PromoteDue moves up to retryBatchSize jobs due at or before now back onto
// queue and returns how many moved. ZREM decides ownership so concurrent
// schedulers never promote the same job twice.
func PromoteDue(ctx context.Context, rdb *redis.Client, queue string, now time.Time) (int, error) {
	key := RetryPrefix + queue
	due, err := rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: retryBatchSize,
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, member := range due {
		removed, err := rdb.ZRem(ctx, key, member).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := rdb.LPush(ctx, queue, member).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	if moved > 0 {
		log.Info().Str("queue", queue).Int("jobs", moved).Msg("retries promoted")
	}
	return moved, nil
}
