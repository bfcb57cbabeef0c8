package service

import (
	"context"
	"testing"
	"time"

	"possales/internal/model"
	"possales/internal/repository/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(y int, m time.Month, d, h, mi int, loc *time.Location) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, loc)
}

func item(productID uint, qty int) model.SaleItem {
	return model.SaleItem{ProductID: productID, Quantity: qty, PriceAtSale: money("1.00")}
}

func summaryStore() *memstore.Store {
	s := memstore.New()
	s.PutProduct(model.Product{ID: 1, Name: "Coffee beans", Price: money("10.00")})
	s.PutProduct(model.Product{ID: 2, Name: "Tea", Price: money("2.50")})
	s.PutProduct(model.Product{ID: 3, Name: "Mug", Price: money("33.33")})
	return s
}

func TestSummary_Windows(t *testing.T) {
	s := summaryStore()
	seed := []model.Sale{
		{TotalAmount: money("30.00"), Timestamp: at(2024, 3, 10, 9, 0, time.UTC), Items: []model.SaleItem{item(1, 3)}},
		{TotalAmount: money("5.00"), Timestamp: time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC), Items: []model.SaleItem{item(2, 1)}},
		{TotalAmount: money("12.50"), Timestamp: at(2024, 3, 2, 12, 0, time.UTC), Items: []model.SaleItem{item(2, 2)}},
		{TotalAmount: money("100.00"), Timestamp: at(2024, 2, 20, 12, 0, time.UTC), Items: []model.SaleItem{item(3, 3)}},
		{TotalAmount: money("7.00"), Timestamp: at(2024, 1, 5, 12, 0, time.UTC), Items: []model.SaleItem{item(1, 50)}},
		// after as_of's day: excluded everywhere
		{TotalAmount: money("1000.00"), Timestamp: at(2024, 3, 11, 8, 0, time.UTC), Items: []model.SaleItem{item(3, 100)}},
	}
	for _, sale := range seed {
		s.InsertCommittedSale(sale)
	}

	b := NewSummaryBuilder(s, time.UTC)
	sum, err := b.Build(context.Background(), at(2024, 3, 10, 12, 0, time.UTC), DefaultTopN)
	require.NoError(t, err)

	assert.Equal(t, "35.00", sum.TodaySales)
	assert.EqualValues(t, 2, sum.TodayCount)
	assert.Equal(t, "47.50", sum.MonthSales)
	assert.Equal(t, "154.50", sum.TotalSales)
	assert.Equal(t, "2024-03-10T12:00:00Z", sum.AsOf)

	// Jan 5 falls outside the trailing 30 days; the three remaining
	// products tie at 3 units and are ordered by id.
	require.Len(t, sum.TopProducts, 3)
	for i, want := range []uint{1, 2, 3} {
		assert.Equal(t, want, sum.TopProducts[i].ProductID)
		assert.EqualValues(t, 3, sum.TopProducts[i].TotalSold)
	}
	assert.Equal(t, "Coffee beans", sum.TopProducts[0].Name)

	top2, err := b.Build(context.Background(), at(2024, 3, 10, 12, 0, time.UTC), 2)
	require.NoError(t, err)
	require.Len(t, top2.TopProducts, 2)
	assert.Equal(t, uint(2), top2.TopProducts[1].ProductID)
}

func TestSummary_EmptyStore(t *testing.T) {
	b := NewSummaryBuilder(summaryStore(), time.UTC)
	sum, err := b.Build(context.Background(), at(2024, 3, 10, 12, 0, time.UTC), DefaultTopN)
	require.NoError(t, err)

	assert.Equal(t, "0.00", sum.TodaySales)
	assert.Equal(t, "0.00", sum.MonthSales)
	assert.Equal(t, "0.00", sum.TotalSales)
	assert.Zero(t, sum.TodayCount)
	assert.NotNil(t, sum.TopProducts)
	assert.Empty(t, sum.TopProducts)
}

func TestSummary_DayBoundariesFollowReportTimezone(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	s := summaryStore()
	// 01:00 UTC on the 11th is 22:00 on the 10th in São Paulo (UTC-3).
	s.InsertCommittedSale(model.Sale{TotalAmount: money("8.00"), Timestamp: at(2024, 3, 11, 1, 0, time.UTC), Items: []model.SaleItem{item(1, 1)}})
	// 02:30 UTC on the 10th is still the 9th locally.
	s.InsertCommittedSale(model.Sale{TotalAmount: money("4.00"), Timestamp: time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC), Items: []model.SaleItem{item(2, 1)}})

	local, err := NewSummaryBuilder(s, saoPaulo).Build(context.Background(), at(2024, 3, 10, 12, 0, saoPaulo), DefaultTopN)
	require.NoError(t, err)
	assert.Equal(t, "8.00", local.TodaySales)
	assert.EqualValues(t, 1, local.TodayCount)
	assert.Equal(t, "12.00", local.MonthSales)

	utc, err := NewSummaryBuilder(s, time.UTC).Build(context.Background(), at(2024, 3, 10, 12, 0, time.UTC), DefaultTopN)
	require.NoError(t, err)
	assert.Equal(t, "4.00", utc.TodaySales)
	assert.Equal(t, "4.00", utc.TotalSales)
}

func TestSummary_MonthStartsOnFirstLocalDay(t *testing.T) {
	s := summaryStore()
	s.InsertCommittedSale(model.Sale{TotalAmount: money("3.00"), Timestamp: at(2024, 2, 29, 23, 0, time.UTC)})
	s.InsertCommittedSale(model.Sale{TotalAmount: money("6.00"), Timestamp: at(2024, 3, 1, 0, 0, time.UTC)})

	sum, err := NewSummaryBuilder(s, time.UTC).Build(context.Background(), at(2024, 3, 1, 10, 0, time.UTC), DefaultTopN)
	require.NoError(t, err)
	assert.Equal(t, "6.00", sum.TodaySales)
	assert.Equal(t, "6.00", sum.MonthSales)
	assert.Equal(t, "9.00", sum.TotalSales)
}
