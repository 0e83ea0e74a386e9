package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
)

// Verification failures. The guard collapses malformed and signature
// failures into one client-facing message.
var (
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenSignature = errors.New("auth: invalid token signature")
	ErrTokenExpired   = errors.New("auth: token expired")
)

// Claims is the verified content of a session token.
type Claims struct {
	SubjectID int64
	Role      domain.Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 session tokens with a process-wide secret.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec returns a codec. The secret must be non-empty and ttl positive.
func NewTokenCodec(secret []byte, ttl time.Duration) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &TokenCodec{secret: secret, ttl: ttl}, nil
}

// TTL is the lifetime given to every issued token.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for subjectID valid over [now, now+TTL). Times are
// truncated to whole seconds; the returned Claims carry the encoded values.
func (c *TokenCodec) Issue(subjectID int64, role domain.Role, now time.Time) (string, Claims, error) {
	if !role.Valid() {
		return "", Claims{}, fmt.Errorf("issue token: unknown role %q", role)
	}
	issued := jwt.NewNumericDate(now)
	expires := jwt.NewNumericDate(now.Add(c.ttl))
	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  issued,
			ExpiresAt: expires,
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, Claims{
		SubjectID: subjectID,
		Role:      role,
		TokenID:   claims.ID,
		IssuedAt:  issued.Time,
		ExpiresAt: expires.Time,
	}, nil
}

// Verify checks the signature, then expiry (now >= exp is expired), then the
// claim contents. It returns ErrTokenMalformed, ErrTokenSignature or
// ErrTokenExpired on failure.
func (c *TokenCodec) Verify(token string, now time.Time) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var tc tokenClaims
	parsed, err := parser.ParseWithClaims(token, &tc, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, fmt.Errorf("%w: %v", ErrTokenSignature, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if !parsed.Valid {
		return Claims{}, ErrTokenMalformed
	}

	subject, err := strconv.ParseInt(tc.Subject, 10, 64)
	if err != nil || subject <= 0 {
		return Claims{}, fmt.Errorf("%w: bad subject", ErrTokenMalformed)
	}
	role := domain.Role(tc.Role)
	if !role.Valid() {
		return Claims{}, fmt.Errorf("%w: unknown role %q", ErrTokenMalformed, tc.Role)
	}
	if tc.ID == "" || tc.IssuedAt == nil {
		return Claims{}, fmt.Errorf("%w: missing claims", ErrTokenMalformed)
	}

	return Claims{
		SubjectID: subject,
		Role:      role,
		TokenID:   tc.ID,
		IssuedAt:  tc.IssuedAt.Time,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}
