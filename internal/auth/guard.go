package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/apperr"
	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/metrics"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID    int64
	Role      domain.Role
	TokenID   string
	ExpiresAt time.Time
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == domain.RoleAdmin
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by the guard.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireAdmin returns a Forbidden error unless id is an admin.
func RequireAdmin(id Identity) error {
	if id.IsAdmin() {
		return nil
	}
	metrics.RecordGuardRejection("forbidden")
	return apperr.New(apperr.Forbidden, "Admin access required")
}

const bearerPrefix = "Bearer "

// Guard turns an Authorization header into an Identity. It never checks roles.
type Guard struct {
	codec    *TokenCodec
	denylist Denylist
	logger   zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewGuard builds a guard. denylist may be nil, in which case tokens are
// valid until they expire.
func NewGuard(codec *TokenCodec, denylist Denylist, logger zerolog.Logger) *Guard {
	return &Guard{
		codec:    codec,
		denylist: denylist,
		logger:   logger.With().Str("component", "guard").Logger(),
		Now:      time.Now,
	}
}

// Authenticate validates header and returns the caller. Failures are
// *apperr.Error values of kind Unauthenticated, or Transient when the
// denylist cannot be consulted.
func (g *Guard) Authenticate(ctx context.Context, header string) (Identity, error) {
	if strings.TrimSpace(header) == "" {
		return Identity{}, g.reject("missing", "Missing authorization header", nil)
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return Identity{}, g.reject("malformed", "Invalid token", errors.New("authorization scheme is not Bearer"))
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return Identity{}, g.reject("malformed", "Invalid token", errors.New("empty bearer token"))
	}

	claims, err := g.codec.Verify(token, g.Now())
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired):
		return Identity{}, g.reject("expired", "Token expired", err).WithCode("TOKEN_EXPIRED")
	case errors.Is(err, ErrTokenSignature):
		return Identity{}, g.reject("signature", "Invalid token", err)
	default:
		return Identity{}, g.reject("malformed", "Invalid token", err)
	}

	if g.denylist != nil {
		revoked, err := g.denylist.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			metrics.RecordGuardRejection("unavailable")
			g.logger.Error().Err(err).Msg("denylist lookup failed")
			return Identity{}, apperr.Wrap(apperr.Transient, "Service temporarily unavailable", err).WithReason("denylist lookup")
		}
		if revoked {
			return Identity{}, g.reject("revoked", "Invalid token", errors.New("token revoked"))
		}
	}

	return Identity{
		UserID:    claims.SubjectID,
		Role:      claims.Role,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func (g *Guard) reject(reason, message string, cause error) *apperr.Error {
	metrics.RecordGuardRejection(reason)
	event := g.logger.Debug().Str("reason", reason)
	if cause != nil {
		event = event.Err(cause)
	}
	event.Msg("request rejected")

	e := apperr.New(apperr.Unauthenticated, message).WithReason(reason)
	e.Err = cause
	return e
}

// Middleware authenticates every request and stores the Identity in its
// context. Failures are handed to onError and the chain stops.
func (g *Guard) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
