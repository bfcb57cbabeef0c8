package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"possales/internal/dto"
	"possales/internal/infra"

	"github.com/rs/zerolog/log"
)

// SummaryBuilder computes the sales summary as of a point in time.
type SummaryBuilder interface {
	Build(ctx context.Context, asOf time.Time, topN int) (*dto.SalesSummaryResponse, error)
}

// PDFMailer delivers one e-mail with a PDF attachment.
type PDFMailer interface {
	SendPDF(ctx context.Context, to, subject, body, filename string, pdf []byte) error
}

// ReportWorker handles JobReportEmail: it renders the summary as PDF and
// mails it through the breaker.
type ReportWorker struct {
	summary SummaryBuilder
	mailer  PDFMailer
	breaker *infra.Breaker
}

func NewReportWorker(summary SummaryBuilder, mailer PDFMailer, breaker *infra.Breaker) *ReportWorker {
	return &ReportWorker{summary: summary, mailer: mailer, breaker: breaker}
}

func (w *ReportWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var job dto.ReportEmailJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("report_worker: invalid payload: %w", err)
	}
	asOf, err := time.Parse(time.RFC3339, job.AsOf)
	if err != nil {
		return fmt.Errorf("report_worker: as_of: %w", err)
	}

	summary, err := w.summary.Build(ctx, asOf, job.TopN)
	if err != nil {
		return fmt.Errorf("report_worker: build summary: %w", err)
	}
	pdf, err := infra.RenderSummaryPDF(summary)
	if err != nil {
		return err
	}

	day := asOf.Format("2006-01-02")
	subject := "Sales summary " + day
	body := fmt.Sprintf("Sales summary as of %s.\n\nToday: %s (%d sales)\nMonth to date: %s\nOverall: %s\n",
		summary.AsOf, summary.TodaySales, summary.TodayCount, summary.MonthSales, summary.TotalSales)
	filename := "sales-summary-" + day + ".pdf"

	err = w.breaker.Execute(ctx, func(ctx context.Context) error {
		return w.mailer.SendPDF(ctx, job.To, subject, body, filename, pdf)
	})
	if err != nil {
		return fmt.Errorf("report_worker: send: %w", err)
	}
	log.Info().Str("to", job.To).Uint("requested_by", job.RequestedBy).Msg("report_worker: summary sent")
	return nil
}
