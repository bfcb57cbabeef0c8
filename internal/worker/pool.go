package worker

import (
	"context"
	"encoding/json"
	"time"

	"possales/internal/dto"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueReports = "jobs:reports"

	JobReportEmail = "report_email"

	// MaxAttempts counts the first run; after that many failures a job goes
	// to the dead letter queue.
	MaxAttempts = 3
)

// Job is the generic envelope for all async tasks.
type Job struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Handler processes one job payload. A returned error schedules a retry.
type Handler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueReportEmail queues a sales summary e-mail.
func (d *Dispatcher) EnqueueReportEmail(ctx context.Context, job dto.ReportEmailJob) error {
	return d.enqueue(ctx, QueueReports, JobReportEmail, job)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{ID: uuid.NewString(), Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Pool consumes QueueReports with a fixed number of goroutines.
type Pool struct {
	rdb      *redis.Client
	handlers map[string]Handler
	backoff  func(attempts int) time.Duration
	now      func() time.Time
}

func NewPool(rdb *redis.Client, handlers map[string]Handler) *Pool {
	return &Pool{rdb: rdb, handlers: handlers, backoff: defaultBackoff, now: time.Now}
}

// defaultBackoff is 30s, 60s, 120s, ...
func defaultBackoff(attempts int) time.Duration {
	return 30 * time.Second << (attempts - 1)
}

// Start launches numWorkers goroutines. Each blocks on BRPOP and uses no CPU
// when idle; all exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go p.run(ctx, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) run(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop, waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, QueueReports).Result()
			if err != nil {
				continue
			}
			if len(result) < 2 {
				continue
			}
			p.processJob(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		quoted, _ := json.Marshal(raw)
		p.deadLetter(ctx, queue, Job{Type: "unknown", Payload: quoted}, "malformed job: "+err.Error())
		return
	}

	h, ok := p.handlers[job.Type]
	if !ok {
		p.deadLetter(ctx, queue, job, "no handler for job type")
		return
	}

	logger := log.With().Str("job_id", job.ID).Str("type", job.Type).Int("attempt", job.Attempts+1).Logger()
	err := h.Process(ctx, job.Payload)
	if err == nil {
		logger.Info().Msg("job done")
		return
	}

	job.Attempts++
	if job.Attempts >= MaxAttempts {
		p.deadLetter(ctx, queue, job, err.Error())
		return
	}
	delay := p.backoff(job.Attempts)
	logger.Warn().Err(err).Dur("retry_in", delay).Msg("job failed, scheduling retry")
	if err := ScheduleRetry(ctx, p.rdb, queue, job, p.now().Add(delay)); err != nil {
		logger.Error().Err(err).Msg("could not schedule retry")
		p.deadLetter(ctx, queue, job, "retry scheduling failed: "+err.Error())
	}
}
