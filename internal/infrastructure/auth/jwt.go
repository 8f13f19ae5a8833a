package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/kirillkom/visa-desk/internal/core/domain"
)

// Claims carries the session fields issued by the identity service.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens and turns them into sessions.
type Verifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewVerifier(secret, issuer string, ttl time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

func (v *Verifier) Verify(raw string) (domain.Session, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Session{}, domain.WrapError(domain.ErrUnauthorized, "verify token", err)
	}
	if !token.Valid {
		return domain.Session{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("invalid token"))
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return domain.Session{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("unexpected issuer"))
	}

	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return domain.Session{}, domain.WrapError(domain.ErrUnauthorized, "verify token", fmt.Errorf("unknown role %q", claims.Role))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Session{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("missing subject"))
	}
	return domain.Session{
		UserID: claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// Issue signs a token for session. Used by tooling and tests; production tokens
// come from the identity service sharing the secret.
func (v *Verifier) Issue(session domain.Session) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  session.Name,
		Email: session.Email,
		Role:  string(session.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
