package service

import (
	"context"
	"time"

	"possales/internal/dto"
	"possales/internal/repository"
)

const (
	DefaultTopN = 5
	MaxTopN     = 50

	topProductsWindowDays = 30
)

// SummaryBuilder computes the sales summary. It performs no capability check
// and is shared by the HTTP path and the report e-mail worker.
type SummaryBuilder struct {
	sales repository.SaleRepository
	loc   *time.Location
}

func NewSummaryBuilder(sales repository.SaleRepository, loc *time.Location) *SummaryBuilder {
	if loc == nil {
		loc = time.UTC
	}
	return &SummaryBuilder{sales: sales, loc: loc}
}

// Windows, with day boundaries in the builder's location:
//
//	today:        [start of as_of's day, start of next day)
//	month:        [first of as_of's month, start of next day)
//	overall:      (-inf, start of next day)
//	top products: [start of next day - 30 days, start of next day)
func (b *SummaryBuilder) Build(ctx context.Context, asOf time.Time, topN int) (*dto.SalesSummaryResponse, error) {
	local := asOf.In(b.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, b.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, b.loc)
	trailingStart := dayEnd.AddDate(0, 0, -topProductsWindowDays)

	today, err := b.sales.SumTotal(ctx, &dayStart, dayEnd)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	month, err := b.sales.SumTotal(ctx, &monthStart, dayEnd)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	overall, err := b.sales.SumTotal(ctx, nil, dayEnd)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	count, err := b.sales.Count(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	rows, err := b.sales.TopProducts(ctx, trailingStart, dayEnd, topN)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}

	top := make([]dto.TopProduct, 0, len(rows))
	for _, r := range rows {
		top = append(top, dto.TopProduct{ProductID: r.ProductID, Name: r.Name, TotalSold: r.TotalSold})
	}
	return &dto.SalesSummaryResponse{
		AsOf:        local.Format(time.RFC3339),
		TodaySales:  today.StringFixed(2),
		MonthSales:  month.StringFixed(2),
		TotalSales:  overall.StringFixed(2),
		TodayCount:  count,
		TopProducts: top,
	}, nil
}
