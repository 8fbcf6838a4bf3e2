package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tw-license-service/internal/infra/logging"
)

type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are HS256 bearer claims; Subject is the owner id for owner tokens.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewAuthManager(secret, issuer string, ttl time.Duration) *AuthManager {
	return &AuthManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Mint issues a token for subject. Used by the seed tool and tests.
func (a *AuthManager) Mint(subject string, role Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*Claims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return nil, ErrMissingToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(a.issuer))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type principalKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Require rejects requests without a valid token (401) or with another role (403).
func (a *AuthManager) Require(role Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				Fail(w, r, http.StatusUnauthorized, CodeUnauthorized, "authentication required", nil)
				return
			}
			if claims.Role != role {
				Fail(w, r, http.StatusForbidden, CodeForbidden, "insufficient role", nil)
				return
			}
			ctx := WithPrincipal(r.Context(), Principal{Subject: claims.Subject, Role: claims.Role})
			if role == RoleOwner {
				ctx = logging.WithOwnerID(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
