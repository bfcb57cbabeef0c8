package access

import (
	"testing"
	"time"

	"possales/internal/apierror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityTable(t *testing.T) {
	staff := Principal{UserID: 2, Username: "ana", Role: RoleStaff}
	admin := Principal{UserID: 1, Username: "admin", Role: RoleAdmin}

	for _, c := range []Capability{CapCreateSale, CapReadSales, CapReadCatalog} {
		assert.True(t, staff.Can(c), c)
		assert.True(t, admin.Can(c), c)
	}
	for _, c := range []Capability{CapReadAllSales, CapDeleteSale, CapReadReports, CapWriteCatalog, CapManageUsers} {
		assert.False(t, staff.Can(c), c)
		assert.True(t, admin.Can(c), c)
	}
}

func TestRequire(t *testing.T) {
	err := Require(Principal{}, CapCreateSale)
	assert.Equal(t, apierror.KindUnauthenticated, apierror.KindOf(err))

	err = Require(Principal{UserID: 3, Role: RoleStaff}, CapReadReports)
	assert.Equal(t, apierror.KindPermissionDenied, apierror.KindOf(err))

	err = Require(Principal{UserID: 3, Role: Role("guest")}, CapReadSales)
	assert.Equal(t, apierror.KindPermissionDenied, apierror.KindOf(err))

	assert.NoError(t, Require(Principal{UserID: 1, Role: RoleAdmin}, CapReadReports))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleStaff.Valid())
	assert.False(t, Role("root").Valid())
}

func TestParseToken(t *testing.T) {
	claims := Claims{
		UserID: 7, Username: "bob", Role: RoleStaff, TokenType: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	got, err := ParseToken(signed, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: 7, Username: "bob", Role: RoleStaff}, got.Principal())
	assert.Equal(t, TokenAccess, got.TokenType)

	_, err = ParseToken(signed, "other")
	assert.Error(t, err)

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ParseToken(expired, "s3cret")
	assert.Error(t, err)
}
