package access

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atomicbase/directory/tools"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// ValidateToken parses and validates a JWT token string with the given secret.
func ValidateToken(tokenString string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errors.New("no secret configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// NewToken creates a new JWT token for the given subject and roles.
func NewToken(secret []byte, sub string, roles []string, expiry time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("no secret configured")
	}
	now := time.Now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		Roles: roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Provider builds the access Context of HTTP callers.
type Provider struct {
	Secret   []byte
	Enforcer *Enforcer
	Policy   Policy
}

// FromRequest returns the caller of r on surface. A request without an
// Authorization header is anonymous; a malformed or invalid token is an error.
func (p *Provider) FromRequest(r *http.Request, surface Surface) (Context, error) {
	c := Context{
		Surface:    surface,
		Policy:     p.Policy,
		RemoteAddr: tools.ClientIP(r),
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return c, nil
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return c, fmt.Errorf("%w: invalid Authorization header format", tools.ErrUnauthorized)
	}

	claims, err := ValidateToken(parts[1], p.Secret)
	if err != nil {
		return c, fmt.Errorf("%w: %v", tools.ErrUnauthorized, err)
	}

	caps, err := p.Enforcer.Capabilities(claims.Roles)
	if err != nil {
		return c, err
	}

	c.UserID = claims.Subject
	c.Authenticated = true
	c.Capabilities = caps
	return c, nil
}
