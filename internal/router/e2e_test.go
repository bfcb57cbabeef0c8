//go:build integration

// End-to-end tests against real Postgres and Redis containers.
// Run with: go test -tags integration ./internal/router/... -v
package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"possales/internal/config"
	"possales/internal/handler"
	"possales/internal/infra"
	"possales/internal/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, body)
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/auth/login",
		jsonBody(t, map[string]string{"username": username, "password": password}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, resp, &out)
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

// ── Setup ────────────────────────────────────────────────────────────────────

type testEnv struct {
	server *httptest.Server
	admin  string // admin JWT
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

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
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(context.Background()) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:                   5000,
		Env:                    "test",
		ServiceName:            "possales",
		StaticDir:              t.TempDir(),
		CORSOrigins:            "*",
		RequestTimeoutSeconds:  15,
		DatabaseDriver:         "postgres",
		DatabaseURL:            pgURL,
		RedisURL:               rdURL,
		ProductCacheTTLSeconds: 60,
		WorkerPoolSize:         1,
		JWTSecret:              "test-secret-key",
		JWTExpirationHours:     8,
		JWTRefreshHours:        24,
		SaleMaxRetries:         3,
		ReportTimezone:         "UTC",
	}

	db, err := infra.NewDatabase(cfg.DatabaseDriver, cfg.DatabaseURL)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	svcs := router.NewServices(cfg, db, rdb)
	require.NoError(t, svcs.Auth.EnsureAdmin(ctx, "admin", "admin-pass"))

	srv := httptest.NewServer(router.New(ctx, cfg, svcs, handler.Health(db, rdb, nil)))
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, admin: login(t, srv, "admin", "admin-pass")}
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestE2E_SaleCycle(t *testing.T) {
	env := setupTestEnv(t)
	srv := env.server

	resp := do(t, srv, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Catalog
	resp = do(t, srv, http.MethodPost, "/api/categories", jsonBody(t, map[string]any{"name": "Drinks"}), env.admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cat struct{ ID uint }
	decodeJSON(t, resp, &cat)

	resp = do(t, srv, http.MethodPost, "/api/products", jsonBody(t, map[string]any{
		"name": "Cold brew", "price": "4.25", "stock": 3, "category_id": cat.ID,
	}), env.admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var product struct {
		ID    uint
		Stock int
	}
	decodeJSON(t, resp, &product)

	// Staff account
	resp = do(t, srv, http.MethodPost, "/api/users", jsonBody(t, map[string]any{
		"username": "ana", "password": "ana-pass", "role": "staff",
	}), env.admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	staff := login(t, srv, "ana", "ana-pass")

	// First sale succeeds
	resp = do(t, srv, http.MethodPost, "/api/sales", jsonBody(t, map[string]any{
		"items": []map[string]any{{"product_id": product.ID, "quantity": 2}},
	}), staff)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sale struct {
		ID          uint   `json:"id"`
		TotalAmount string `json:"total_amount"`
	}
	decodeJSON(t, resp, &sale)
	assert.Equal(t, "8.50", sale.TotalAmount)

	// Second sale asks for more than is left
	resp = do(t, srv, http.MethodPost, "/api/sales", jsonBody(t, map[string]any{
		"items": []map[string]any{{"product_id": product.ID, "quantity": 2}},
	}), staff)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var conflict struct {
		Code      string `json:"code"`
		Product   string `json:"product"`
		Available *int   `json:"available"`
	}
	decodeJSON(t, resp, &conflict)
	assert.Equal(t, "insufficient_stock", conflict.Code)
	assert.Equal(t, "Cold brew", conflict.Product)
	require.NotNil(t, conflict.Available)
	assert.Equal(t, 1, *conflict.Available)

	// Product read reflects the decrement, not a stale cache entry
	resp = do(t, srv, http.MethodGet, fmt.Sprintf("/api/products/%d", product.ID), nil, staff)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &product)
	assert.Equal(t, 1, product.Stock)

	// Receipt
	resp = do(t, srv, http.MethodGet, fmt.Sprintf("/api/sales/%d/receipt.pdf", sale.ID), nil, staff)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	// Summary is admin only
	resp = do(t, srv, http.MethodGet, "/api/sales/reports/summary", nil, staff)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, srv, http.MethodGet, "/api/sales/reports/summary", nil, env.admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary struct {
		TodaySales  string `json:"today_sales"`
		TodayCount  int64  `json:"today_count"`
		TopProducts []struct {
			ProductID uint  `json:"product_id"`
			TotalSold int64 `json:"total_sold"`
		} `json:"top_products"`
	}
	decodeJSON(t, resp, &summary)
	assert.Equal(t, "8.50", summary.TodaySales)
	assert.EqualValues(t, 1, summary.TodayCount)
	require.Len(t, summary.TopProducts, 1)
	assert.Equal(t, product.ID, summary.TopProducts[0].ProductID)
	assert.EqualValues(t, 2, summary.TopProducts[0].TotalSold)
}

func TestE2E_ProductWithSalesCannotBeDeleted(t *testing.T) {
	env := setupTestEnv(t)
	srv := env.server

	resp := do(t, srv, http.MethodPost, "/api/categories", jsonBody(t, map[string]any{"name": "Food"}), env.admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cat struct{ ID uint }
	decodeJSON(t, resp, &cat)

	resp = do(t, srv, http.MethodPost, "/api/products", jsonBody(t, map[string]any{
		"name": "Croissant", "price": "2.10", "stock": 5, "category_id": cat.ID,
	}), env.admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var product struct{ ID uint }
	decodeJSON(t, resp, &product)

	resp = do(t, srv, http.MethodPost, "/api/sales", jsonBody(t, map[string]any{
		"items": []map[string]any{{"product_id": product.ID, "quantity": 1}},
	}), env.admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, srv, http.MethodDelete, fmt.Sprintf("/api/products/%d", product.ID), nil, env.admin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, srv, http.MethodDelete, fmt.Sprintf("/api/categories/%d", cat.ID), nil, env.admin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}
