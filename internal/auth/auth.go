// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vehiql/internal/model"
)

var (
	ErrNoToken      = errors.New("no authorization token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the token claims the service reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller of a request.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoToken
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		if tok := strings.TrimSpace(header[7:]); tok != "" {
			return tok, nil
		}
	}
	return "", fmt.Errorf("%w: invalid authorization format", ErrInvalidToken)
}

// Verify parses the token and returns the identity behind it.
func (v *Verifier) Verify(token string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Identity{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// Issue signs a token for subject. It is used by tooling and tests; production
// tokens come from the identity provider.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type ctxKey struct{}

// WithUser stores the resolved user in ctx.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the user stored by WithUser.
func UserFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*model.User)
	return u, ok && u != nil
}
