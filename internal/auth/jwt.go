package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of tokens minted by IssueToken.
const Issuer = "fragments"

// Claims holds JWT token claims.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Bearer authenticates bearer tokens: HS256 tokens signed with a shared
// secret, and OIDC ID tokens when a provider is configured.
type Bearer struct {
	secret []byte
	oidc   *OIDCProvider
}

// NewBearer creates a bearer authenticator. Either argument may be empty,
// but not both.
func NewBearer(jwtSecret string, oidc *OIDCProvider) (*Bearer, error) {
	if jwtSecret == "" && oidc == nil {
		return nil, errors.New("bearer auth needs a JWT secret or an OIDC provider")
	}
	return &Bearer{secret: []byte(jwtSecret), oidc: oidc}, nil
}

// Authenticate validates the Authorization bearer token.
func (b *Bearer) Authenticate(r *http.Request) (string, error) {
	tokenStr := extractToken(r)
	if tokenStr == "" {
		return "", ErrUnauthenticated
	}

	var errs []error
	if len(b.secret) > 0 {
		claims, err := b.validateToken(tokenStr)
		if err == nil {
			return claims.Email, nil
		}
		errs = append(errs, err)
	}
	if b.oidc != nil {
		email, err := b.oidc.ValidateToken(r.Context(), tokenStr)
		if err == nil {
			return email, nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf("invalid token: %w", errors.Join(errs...))
}

// Challenge implements Authenticator.
func (b *Bearer) Challenge() string {
	return `Bearer realm="fragments"`
}

func (b *Bearer) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return b.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())

	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("token has no email claim")
	}
	return claims, nil
}

// IssueToken mints an HS256 token for email, valid for ttl.
func IssueToken(secret, email string, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New("jwt secret is required")
	}
	if email == "" {
		return "", time.Time{}, errors.New("email is required")
	}

	now := time.Now()
	expires := now.Add(ttl)
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   HashEmail(email),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, expires, nil
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

var (
	_ Authenticator = (*Basic)(nil)
	_ Authenticator = (*Bearer)(nil)
)
