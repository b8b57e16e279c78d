// Package auth resolves the caller identity from the bearer token issued by
// the user service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// The user service spells roles in Serbian.
var roleAliases = map[string]Role{
	"user":          RoleUser,
	"korisnik":      RoleUser,
	"manager":       RoleManager,
	"menadzer":      RoleManager,
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
}

func ParseRole(s string) (Role, bool) {
	r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	return r, ok
}

type Identity struct {
	UserID int64
	Email  string
	Role   Role
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks an HS256 token. Identity is read either from flat
// user_id/role claims or from an object in sub with id/uloga keys.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	src := map[string]any(claims)
	if sub, ok := claims["sub"].(map[string]any); ok {
		src = sub
	}

	id, ok := number(src, "user_id", "id")
	if !ok || id <= 0 {
		return Identity{}, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	roleName, _ := firstString(src, "role", "uloga")
	role, ok := ParseRole(roleName)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleName)
	}
	email, _ := firstString(src, "email")
	return Identity{UserID: id, Email: email, Role: role}, nil
}

// Sign issues a token in the flat claim layout. Used by tests and tooling.
func (v *Verifier) Sign(id Identity, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["user_id"] = id.UserID
	claims["role"] = string(id.Role)
	if id.Email != "" {
		claims["email"] = id.Email
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func number(m map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch n := m[k].(type) {
		case float64:
			return int64(n), true
		case int64:
			return n, true
		case int:
			return int64(n), true
		}
	}
	return 0, false
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

const identityKey = "identity"

// Middleware rejects requests without a valid bearer token. The SSE endpoint
// may pass the token as the access_token query parameter because browsers
// cannot set headers on EventSource.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token == c.GetHeader("Authorization") {
			token = c.Query("access_token")
		}
		if token == "" {
			abort(c, http.StatusUnauthorized, ErrMissingToken.Error())
			return
		}
		id, err := v.Verify(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, err.Error())
			return
		}
		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// Require lets the request through only for the listed roles.
func Require(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := Current(c)
		if !ok {
			abort(c, http.StatusUnauthorized, ErrMissingToken.Error())
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, fmt.Sprintf("role %s is not allowed here", id.Role))
	}
}

func Current(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status), "message": msg})
}
