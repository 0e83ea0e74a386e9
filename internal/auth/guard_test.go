package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Clark-Hu/movie-catalog/internal/apperr"
	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/logging"
)

func newTestGuard(t *testing.T, denylist Denylist) (*Guard, *TokenCodec) {
	t.Helper()
	codec := newTestCodec(t)
	g := NewGuard(codec, denylist, logging.Nop())
	g.Now = func() time.Time { return issueAt.Add(time.Minute) }
	return g, codec
}

func TestGuard_Authenticate(t *testing.T) {
	g, codec := newTestGuard(t, nil)
	token, _, err := codec.Issue(5, domain.RoleUser, issueAt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	expired, _, err := codec.Issue(5, domain.RoleUser, issueAt.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	id, err := g.Authenticate(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserID != 5 || id.Role != domain.RoleUser || id.IsAdmin() {
		t.Fatalf("identity = %+v", id)
	}

	tests := []struct {
		name     string
		header   string
		wantMsg  string
		wantCode string
	}{
		{"missing", "", "Missing authorization header", "UNAUTHORIZED"},
		{"wrong scheme", "Basic " + token, "Invalid token", "UNAUTHORIZED"},
		{"no token", "Bearer ", "Invalid token", "UNAUTHORIZED"},
		{"garbage", "Bearer nope", "Invalid token", "UNAUTHORIZED"},
		{"tampered", "Bearer " + token + "x", "Invalid token", "UNAUTHORIZED"},
		{"expired", "Bearer " + expired, "Token expired", "TOKEN_EXPIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Authenticate(context.Background(), tt.header)
			appErr, ok := apperr.As(err)
			if !ok || appErr.Kind != apperr.Unauthenticated {
				t.Fatalf("error = %v, want Unauthenticated", err)
			}
			if appErr.Message != tt.wantMsg || appErr.Code != tt.wantCode {
				t.Fatalf("message/code = %q/%q, want %q/%q", appErr.Message, appErr.Code, tt.wantMsg, tt.wantCode)
			}
		})
	}
}

func TestGuard_Revocation(t *testing.T) {
	denylist := NewMemoryDenylist()
	g, codec := newTestGuard(t, denylist)
	token, claims, err := codec.Issue(3, domain.RoleAdmin, issueAt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := g.Authenticate(context.Background(), "Bearer "+token); err != nil {
		t.Fatalf("Authenticate before revoke: %v", err)
	}
	if err := denylist.Revoke(context.Background(), claims.TokenID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, err = g.Authenticate(context.Background(), "Bearer "+token)
	if apperr.KindOf(err) != apperr.Unauthenticated {
		t.Fatalf("revoked token error = %v, want Unauthenticated", err)
	}
}

type failingDenylist struct{}

func (failingDenylist) Revoke(context.Context, string, time.Time) error {
	return errors.New("down")
}

func (failingDenylist) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("down")
}

func TestGuard_DenylistUnavailableFailsClosed(t *testing.T) {
	unreachable := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = unreachable.Close() })

	for name, dl := range map[string]Denylist{
		"stub":  failingDenylist{},
		"redis": NewRedisDenylist(unreachable),
	} {
		t.Run(name, func(t *testing.T) {
			g, codec := newTestGuard(t, dl)
			token, _, err := codec.Issue(3, domain.RoleUser, issueAt)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			_, err = g.Authenticate(context.Background(), "Bearer "+token)
			if apperr.KindOf(err) != apperr.Transient {
				t.Fatalf("error = %v, want Transient", err)
			}
		})
	}
}

func TestGuard_Middleware(t *testing.T) {
	g, codec := newTestGuard(t, nil)
	token, _, err := codec.Issue(11, domain.RoleAdmin, issueAt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var seen Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			t.Fatalf("identity missing from context")
		}
		seen = id
		w.WriteHeader(http.StatusNoContent)
	})
	onError := func(w http.ResponseWriter, _ *http.Request, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	h := g.Middleware(onError)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen.UserID != 11 || !seen.IsAdmin() {
		t.Fatalf("status=%d identity=%+v", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := RequireAdmin(Identity{Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := RequireAdmin(Identity{Role: domain.RoleUser}); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("user error = %v, want Forbidden", err)
	}
}

func TestMemoryDenylist_ExpiredEntriesLapse(t *testing.T) {
	d := NewMemoryDenylist()
	now := issueAt
	d.now = func() time.Time { return now }

	if err := d.Revoke(context.Background(), "jti", issueAt.Add(time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked, _ := d.IsRevoked(context.Background(), "jti"); !revoked {
		t.Fatalf("expected revoked before expiry")
	}
	now = issueAt.Add(time.Minute)
	if revoked, _ := d.IsRevoked(context.Background(), "jti"); revoked {
		t.Fatalf("entry should lapse at expiry")
	}
}
