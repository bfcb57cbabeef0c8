package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"possales/internal/access"
	"possales/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func signToken(t *testing.T, claims access.Claims, secret string) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func protectedRouter(capability access.Capability) *gin.Engine {
	r := gin.New()
	r.GET("/x", JWTAuth(testSecret), RequireCapability(capability), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetPrincipal(c).Username})
	})
	return r
}

func doGet(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apierror.APIError {
	t.Helper()
	var body apierror.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJWTAuth(t *testing.T) {
	r := protectedRouter(access.CapReadCatalog)
	staff := access.Claims{UserID: 7, Username: "ana", Role: access.RoleStaff, TokenType: access.TokenAccess}

	w := doGet(r, signToken(t, staff, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ana")

	w = doGet(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apierror.KindUnauthenticated, decodeEnvelope(t, w).Code)

	w = doGet(r, signToken(t, staff, "wrong-secret"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	refresh := staff
	refresh.TokenType = access.TokenRefresh
	w = doGet(r, signToken(t, refresh, testSecret))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := staff
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	w = doGet(r, signToken(t, expired, testSecret))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	unknownRole := staff
	unknownRole.Role = "root"
	w = doGet(r, signToken(t, unknownRole, testSecret))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireCapability(t *testing.T) {
	r := protectedRouter(access.CapReadReports)

	staff := access.Claims{UserID: 7, Username: "ana", Role: access.RoleStaff, TokenType: access.TokenAccess}
	w := doGet(r, signToken(t, staff, testSecret))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apierror.KindPermissionDenied, decodeEnvelope(t, w).Code)

	admin := access.Claims{UserID: 1, Username: "boss", Role: access.RoleAdmin, TokenType: access.TokenAccess}
	w = doGet(r, signToken(t, admin, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRecoveryHidesPanic(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/x", func(c *gin.Context) { panic("db password is hunter2") })

	w := doGet(r, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.Equal(t, "internal server error", decodeEnvelope(t, w).Detail)
}

func TestErrorHandlerMapsKinds(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/x", func(c *gin.Context) { _ = c.Error(apierror.NotFound("sale %d not found", 4)) })

	w := doGet(r, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "sale 4 not found", body.Detail)
	assert.Equal(t, apierror.KindNotFound, body.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(50 * time.Millisecond))
	r.GET("/x", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": ok})
	})
	w := doGet(r, "")
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}

func TestLimiter(t *testing.T) {
	l := NewLimiter("login", 2, time.Minute)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.Allow("1.2.3.4")
	assert.False(t, ok)
	ok, _ = l.Allow("5.6.7.8")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, l.purge())
	ok, _ = l.Allow("1.2.3.4")
	assert.True(t, ok)
}

func TestLimiterMiddleware(t *testing.T) {
	l := NewLimiter("api", 1, time.Minute)
	r := gin.New()
	r.GET("/x", l.Middleware("too many requests"), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doGet(r, "").Code)
	w := doGet(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
