// Package auth is the reference "auth" peer module that
// BaseModule.checkPermission defers to when a module's own permission map
// has no answer. Adapted from the teacher's guard/jwt.go (JWTGuard/JWTClaims
// HS256 parsing), de-gin'd: it takes a bearer token string directly rather
// than a *gin.Context-wrapped GuardContext.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kerneld/kernel"
)

// Claims mirrors the teacher's JWTClaims: a role claim plus registered
// claims, used to resolve a role -> {resource: []action} map.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Module is the concrete, registrable "auth" module. It embeds
// *kernel.BaseModule for the full lifecycle state machine and adds
// JWT-backed permission checking on top.
type Module struct {
	*kernel.BaseModule

	secretKey []byte
	rolePerms map[string]map[string][]string // role -> resource -> actions
}

// NewModule constructs the auth module with a signing secret and a static
// role permission table. Registered under the name "auth" the kernel looks
// for when delegating cross-cutting permission checks.
func NewModule(secretKey string, rolePerms map[string]map[string][]string) *Module {
	m := &Module{secretKey: []byte(secretKey), rolePerms: rolePerms}
	m.BaseModule = kernel.NewBaseModule(kernel.Metadata{
		Name:        "auth",
		Description: "JWT-backed cross-module permission checks",
		Version:     "1.0.0",
		Priority:    100,
	}, kernel.Hooks{})
	return m
}

func init() {
	kernel.DefaultRegistry.Register("auth", func() kernel.Module {
		return NewModule("", nil)
	})
}

// GenerateToken issues a signed token for a user/role pair, valid for ttl.
func (m *Module) GenerateToken(userID, role string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

func (m *Module) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// CheckModulePermission is the concrete delegate BaseModule.checkPermission
// calls through when a peer module has no local answer for (action,
// resource). Returns allowed=true if no token is supplied at all — callers
// without a token fall back to "allow", matching the spec's
// no-auth-module-present default.
func (m *Module) CheckModulePermission(action, resource, token string) (bool, error) {
	if token == "" {
		return true, nil
	}
	claims, err := m.parseToken(token)
	if err != nil {
		return false, err
	}
	actions, ok := m.rolePerms[claims.Role][resource]
	if !ok {
		return false, nil
	}
	for _, a := range actions {
		if a == action {
			return true, nil
		}
	}
	return false, nil
}
