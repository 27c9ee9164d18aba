package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/normgraph/normgraph/internal/types"
)

// verifyLeeway absorbs small clock skew between issuer and verifier.
const verifyLeeway = 30 * time.Second

// Claims are the token claims: standard registered claims plus roles.
type Claims struct {
	jwt.RegisteredClaims
	Roles []Role `json:"roles"`
}

// Handler issues and verifies HS256 tokens.
type Handler struct {
	secret []byte
	expiry time.Duration
}

// NewHandler creates a token handler. The secret must not be empty.
func NewHandler(secret []byte, expiry time.Duration) (*Handler, error) {
	if len(secret) == 0 {
		return nil, types.NewError(types.AUTH_TOKEN_INVALID, "JWT secret cannot be empty")
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Handler{secret: secret, expiry: expiry}, nil
}

// Issue mints a token for a subject with the given roles.
func (h *Handler) Issue(subject string, roles []Role) (string, error) {
	if subject == "" {
		return "", types.NewError(types.AUTH_TOKEN_INVALID, "token subject cannot be empty")
	}
	for _, role := range roles {
		if !role.IsValid() {
			return "", types.NewError(types.AUTH_TOKEN_INVALID, "unknown role: "+string(role))
		}
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.expiry)),
		},
		Roles: roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", types.WrapError(types.AUTH_TOKEN_INVALID, "failed to sign token", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (h *Handler) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method: " + t.Method.Alg())
			}
			return h.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(verifyLeeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.WrapError(types.AUTH_TOKEN_EXPIRED, "token expired", err)
		}
		return nil, types.WrapError(types.AUTH_TOKEN_INVALID, "token verification failed", err)
	}
	if !token.Valid {
		return nil, types.NewError(types.AUTH_TOKEN_INVALID, "token is not valid")
	}
	return claims, nil
}
