// Package access holds the role → capability table and the identity types
// carried in JWTs. Both the sale engine and the HTTP middleware consult the
// same table.
package access

import (
	"possales/internal/apierror"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

type Capability string

const (
	CapCreateSale   Capability = "sales:create"
	CapReadSales    Capability = "sales:read"
	CapReadAllSales Capability = "sales:read_all"
	CapDeleteSale   Capability = "sales:delete"
	CapReadReports  Capability = "reports:read"
	CapReadCatalog  Capability = "catalog:read"
	CapWriteCatalog Capability = "catalog:write"
	CapManageUsers  Capability = "users:manage"
)

var staffCaps = []Capability{CapCreateSale, CapReadSales, CapReadCatalog}

var capabilities = map[Role]map[Capability]bool{
	RoleStaff: set(staffCaps...),
	RoleAdmin: set(append(staffCaps,
		CapReadAllSales, CapDeleteSale, CapReadReports, CapWriteCatalog, CapManageUsers)...),
}

func set(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// Principal is the authenticated caller. The zero value is anonymous.
type Principal struct {
	UserID   uint
	Username string
	Role     Role
}

func (p Principal) Authenticated() bool { return p.UserID != 0 }

// Can reports whether the principal's role grants c.
func (p Principal) Can(c Capability) bool {
	return p.Authenticated() && capabilities[p.Role][c]
}

// Require returns Unauthenticated for an anonymous principal and
// PermissionDenied when the role lacks c.
func Require(p Principal, c Capability) error {
	if !p.Authenticated() {
		return apierror.Unauthenticated("authentication required")
	}
	if !capabilities[p.Role][c] {
		return apierror.PermissionDenied("role %q lacks capability %q", p.Role, c)
	}
	return nil
}

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims are the custom claims embedded in every issued token.
type Claims struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() Principal {
	return Principal{UserID: c.UserID, Username: c.Username, Role: c.Role}
}

// ParseToken validates an HS256 token signed with secret and returns its claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
