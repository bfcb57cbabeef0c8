//go:build integration

// Run with: go test -tags integration ./internal/repository/...
package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"possales/internal/access"
	"possales/internal/apierror"
	"possales/internal/dto"
	"possales/internal/infra"
	"possales/internal/model"
	"possales/internal/repository"
	"possales/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.Run(ctx, "postgres:16-alpine",
		tcPostgres.WithDatabase("possales_test"),
		tcPostgres.WithUsername("possales"),
		tcPostgres.WithPassword("possales"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := infra.NewDatabase("postgres", dsn)
	require.NoError(t, err)
	return db
}

func seedCatalog(t *testing.T, db *gorm.DB, stock int) (model.User, model.Product) {
	t.Helper()
	ctx := context.Background()
	cat := model.Category{Name: "General"}
	require.NoError(t, repository.NewCategoryRepository(db).Create(ctx, &cat))
	user := model.User{Username: "ana", PasswordHash: "x", Role: string(access.RoleStaff)}
	require.NoError(t, repository.NewUserRepository(db).Create(ctx, &user))
	p := model.Product{Name: "Coffee beans", Price: decimal.RequireFromString("10.00"), Stock: stock, CategoryID: cat.ID}
	require.NoError(t, repository.NewProductRepository(db).Create(ctx, &p))
	return user, p
}

func TestPostgres_ConcurrentSalesNeverOversell(t *testing.T) {
	db := setupPostgres(t)
	user, product := seedCatalog(t, db, 10)

	svc := service.NewSaleService(
		repository.NewUnitOfWork(db),
		repository.NewSaleRepository(db),
		nil, nil,
		service.SaleServiceConfig{MaxRetries: 3, Location: time.UTC},
	)
	p := access.Principal{UserID: user.ID, Username: user.Username, Role: access.RoleStaff}

	const buyers = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(context.Background(), p, dto.CreateSaleRequest{
				Items: []dto.SaleLineRequest{{ProductID: product.ID, Quantity: 1}},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.Equal(t, apierror.KindInsufficientStock, apierror.KindOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	got, err := repository.NewProductRepository(db).FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	var count int64
	require.NoError(t, db.Model(&model.Sale{}).Count(&count).Error)
	assert.EqualValues(t, 10, count)
}

func TestPostgres_FailedLineRollsBack(t *testing.T) {
	db := setupPostgres(t)
	user, product := seedCatalog(t, db, 5)

	svc := service.NewSaleService(repository.NewUnitOfWork(db), repository.NewSaleRepository(db), nil, nil,
		service.SaleServiceConfig{MaxRetries: 3, Location: time.UTC})
	p := access.Principal{UserID: user.ID, Username: user.Username, Role: access.RoleStaff}

	_, err := svc.CreateSale(context.Background(), p, dto.CreateSaleRequest{Items: []dto.SaleLineRequest{
		{ProductID: product.ID, Quantity: 2},
		{ProductID: product.ID + 100, Quantity: 1},
	}})
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))

	resp, err := svc.CreateSale(context.Background(), p, dto.CreateSaleRequest{Items: []dto.SaleLineRequest{
		{ProductID: product.ID, Quantity: 3},
	}})
	require.NoError(t, err)
	assert.Equal(t, "30.00", resp.TotalAmount)

	got, err := repository.NewProductRepository(db).FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)

	sale, err := repository.NewSaleRepository(db).FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	assert.True(t, sale.Items[0].PriceAtSale.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, "ana", sale.User.Username)
}

func TestPostgres_SummaryQueries(t *testing.T) {
	db := setupPostgres(t)
	user, product := seedCatalog(t, db, 100)
	ctx := context.Background()

	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{at, at.Add(2 * time.Hour), at.AddDate(0, 0, -20)} {
		sale := model.Sale{
			UserID:      user.ID,
			TotalAmount: decimal.RequireFromString("10.00"),
			Timestamp:   ts,
			Items:       []model.SaleItem{{ProductID: product.ID, Quantity: 1, PriceAtSale: decimal.RequireFromString("10.00")}},
		}
		require.NoError(t, repository.NewUnitOfWork(db).Do(ctx, func(tx repository.SaleTx) error {
			return tx.InsertSale(ctx, &sale)
		}))
	}

	sum, err := service.NewSummaryBuilder(repository.NewSaleRepository(db), time.UTC).Build(ctx, at, 5)
	require.NoError(t, err)
	assert.Equal(t, "20.00", sum.TodaySales)
	assert.Equal(t, "20.00", sum.MonthSales)
	assert.Equal(t, "30.00", sum.TotalSales)
	assert.EqualValues(t, 2, sum.TodayCount)
	require.Len(t, sum.TopProducts, 1)
	assert.EqualValues(t, 3, sum.TopProducts[0].TotalSold)
	assert.Equal(t, "Coffee beans", sum.TopProducts[0].Name)
}
