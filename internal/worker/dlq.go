package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DLQPrefix namespaces dead letter lists: dlq:<queue>.
const DLQPrefix = "dlq:"

// dlqCap bounds each dead letter list; the oldest entries fall off.
const dlqCap = 500

// DeadLetter is a job that will not be retried again.
type DeadLetter struct {
	Queue    string    `json:"queue"`
	Job      Job       `json:"job"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func (p *Pool) deadLetter(ctx context.Context, queue string, job Job, reason string) {
	logger := log.With().Str("queue", queue).Str("job_id", job.ID).Str("type", job.Type).Logger()

	data, err := json.Marshal(DeadLetter{Queue: queue, Job: job, Reason: reason, FailedAt: p.now().UTC()})
	if err != nil {
		logger.Error().Err(err).Msg("dlq: encode entry")
		return
	}

	key := DLQPrefix + queue
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, dlqCap-1)
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("dlq: push failed, job dropped")
		return
	}
	logger.Warn().Str("reason", reason).Int("attempts", job.Attempts).Msg("job moved to dead letter queue")
}

// DLQLength is the number of dead letters for queue.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}
