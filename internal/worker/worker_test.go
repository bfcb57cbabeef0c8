package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"possales/internal/dto"
	"possales/internal/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

type handlerFunc func(ctx context.Context, payload json.RawMessage) error

func (f handlerFunc) Process(ctx context.Context, payload json.RawMessage) error { return f(ctx, payload) }

func popJob(t *testing.T, rdb *redis.Client, queue string) string {
	t.Helper()
	raw, err := rdb.RPop(context.Background(), queue).Result()
	require.NoError(t, err)
	return raw
}

func TestDispatcher_EnqueueReportEmail(t *testing.T) {
	rdb := newTestRedis(t)
	d := NewDispatcher(rdb)

	err := d.EnqueueReportEmail(context.Background(), dto.ReportEmailJob{To: "boss@example.com", AsOf: "2024-03-10T00:00:00Z", TopN: 5})
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(popJob(t, rdb, QueueReports)), &job))
	assert.Equal(t, JobReportEmail, job.Type)
	assert.NotEmpty(t, job.ID)
	assert.Zero(t, job.Attempts)

	var payload dto.ReportEmailJob
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, "boss@example.com", payload.To)
}

func TestProcessJob_RetryThenDLQ(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	calls := 0
	pool := NewPool(rdb, map[string]Handler{
		JobReportEmail: handlerFunc(func(context.Context, json.RawMessage) error {
			calls++
			return errors.New("smtp down")
		}),
	})
	pool.now = func() time.Time { return now }

	require.NoError(t, NewDispatcher(rdb).EnqueueReportEmail(ctx, dto.ReportEmailJob{To: "x@example.com"}))

	for attempt := 1; attempt < MaxAttempts; attempt++ {
		pool.processJob(ctx, QueueReports, popJob(t, rdb, QueueReports))

		n, err := rdb.ZCard(ctx, RetryPrefix+QueueReports).Result()
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		// Not yet due.
		moved, err := PromoteDue(ctx, rdb, QueueReports, now)
		require.NoError(t, err)
		assert.Zero(t, moved)

		now = now.Add(defaultBackoff(attempt))
		moved, err = PromoteDue(ctx, rdb, QueueReports, now)
		require.NoError(t, err)
		assert.Equal(t, 1, moved)
	}

	pool.processJob(ctx, QueueReports, popJob(t, rdb, QueueReports))
	assert.Equal(t, MaxAttempts, calls)

	dlqLen, err := DLQLength(ctx, rdb, QueueReports)
	require.NoError(t, err)
	assert.EqualValues(t, 1, dlqLen)

	var entry DeadLetter
	require.NoError(t, json.Unmarshal([]byte(popJob(t, rdb, DLQPrefix+QueueReports)), &entry))
	assert.Equal(t, MaxAttempts, entry.Job.Attempts)
	assert.Equal(t, QueueReports, entry.Queue)
	assert.Equal(t, "smtp down", entry.Reason)
}

func TestProcessJob_UnknownTypeAndMalformed(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	pool := NewPool(rdb, map[string]Handler{})

	raw, _ := json.Marshal(Job{ID: "1", Type: "mystery", Payload: json.RawMessage(`{}`)})
	pool.processJob(ctx, QueueReports, string(raw))
	pool.processJob(ctx, QueueReports, "{not json")

	n, err := DLQLength(ctx, rdb, QueueReports)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

type fakeSummary struct{ gotTopN int }

func (f *fakeSummary) Build(_ context.Context, asOf time.Time, topN int) (*dto.SalesSummaryResponse, error) {
	f.gotTopN = topN
	return &dto.SalesSummaryResponse{AsOf: asOf.Format(time.RFC3339), TodaySales: "30.00", MonthSales: "30.00", TotalSales: "30.00", TodayCount: 1}, nil
}

type fakeMailer struct {
	to, filename string
	pdf          []byte
	err          error
}

func (m *fakeMailer) SendPDF(_ context.Context, to, _, _, filename string, pdf []byte) error {
	m.to, m.filename, m.pdf = to, filename, pdf
	return m.err
}

func TestReportWorker_Process(t *testing.T) {
	summary := &fakeSummary{}
	mailer := &fakeMailer{}
	w := NewReportWorker(summary, mailer, infra.NewBreaker("smtp", infra.DefaultBreakerConfig()))

	payload, _ := json.Marshal(dto.ReportEmailJob{To: "boss@example.com", AsOf: "2024-03-10T18:00:00Z", TopN: 3})
	require.NoError(t, w.Process(context.Background(), payload))

	assert.Equal(t, 3, summary.gotTopN)
	assert.Equal(t, "boss@example.com", mailer.to)
	assert.Equal(t, "sales-summary-2024-03-10.pdf", mailer.filename)
	assert.Equal(t, "%PDF", string(mailer.pdf[:4]))
}

func TestReportWorker_SendFailureIsReturned(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("454 TLS unavailable")}
	w := NewReportWorker(&fakeSummary{}, mailer, infra.NewBreaker("smtp", infra.DefaultBreakerConfig()))

	payload, _ := json.Marshal(dto.ReportEmailJob{To: "boss@example.com", AsOf: "2024-03-10T18:00:00Z", TopN: 5})
	err := w.Process(context.Background(), payload)
	assert.ErrorContains(t, err, "TLS unavailable")

	assert.Error(t, w.Process(context.Background(), json.RawMessage(`{"as_of":"yesterday"}`)))
}
