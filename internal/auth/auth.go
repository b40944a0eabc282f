// Package auth identifies the caller of each request and derives the owner
// id fragments are stored under.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/AndyChoi4495/fragments/internal/logging"
	"github.com/AndyChoi4495/fragments/internal/metrics"
	"github.com/AndyChoi4495/fragments/internal/protocol"
)

type contextKey string

const ownerContextKey contextKey = "owner"

// ErrUnauthenticated is returned by authenticators when a request carries
// no usable credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a request to the caller's email address.
type Authenticator interface {
	Authenticate(r *http.Request) (email string, err error)
	// Challenge is the WWW-Authenticate value sent with a 401.
	Challenge() string
}

// Owner is the authenticated principal of a request.
type Owner struct {
	Email string
	ID    string
}

// HashEmail derives the owner id from an email: the hex SHA-256 of the
// trimmed, lowercased address.
func HashEmail(email string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(h[:])
}

// Middleware rejects unauthenticated requests and stores the Owner in the
// request context.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, err := a.Authenticate(r)
			if err != nil || email == "" {
				metrics.RecordAuthAttempt(false)
				if err != nil && !errors.Is(err, ErrUnauthenticated) {
					logging.WithContext(r.Context()).Warn("authentication failed", zap.Error(err))
				}
				w.Header().Set("WWW-Authenticate", a.Challenge())
				sendAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			metrics.RecordAuthAttempt(true)

			owner := &Owner{Email: email, ID: HashEmail(email)}
			ctx := context.WithValue(r.Context(), ownerContextKey, owner)
			ctx = logging.WithFields(ctx, zap.String("owner_id", owner.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithOwner returns a context carrying owner. Used by tests and in-process
// callers that bypass the middleware.
func WithOwner(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ownerContextKey, &Owner{Email: email, ID: HashEmail(email)})
}

// GetOwner returns the authenticated owner, or nil.
func GetOwner(ctx context.Context) *Owner {
	owner, _ := ctx.Value(ownerContextKey).(*Owner)
	return owner
}

// OwnerID returns the owner id of the request, or "".
func OwnerID(ctx context.Context) string {
	if o := GetOwner(ctx); o != nil {
		return o.ID
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.NewError(code, message))
}
