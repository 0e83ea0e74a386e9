package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/apperr"
	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/metrics"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
	"github.com/Clark-Hu/movie-catalog/internal/validation"
)

// UserStore is the credential store the service depends on.
type UserStore interface {
	Create(ctx context.Context, params repository.UserCreateParams) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72,bcryptlen"`
}

// LoginInput is the login payload.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is a freshly issued token and the user it belongs to.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.UserSummary
}

// Service registers users and exchanges credentials for session tokens.
type Service struct {
	users     UserStore
	hasher    PasswordHasher
	codec     *TokenCodec
	denylist  Denylist
	logger    zerolog.Logger
	dummyHash string

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewService wires the service. denylist may be nil.
func NewService(users UserStore, hasher PasswordHasher, codec *TokenCodec, denylist Denylist, logger zerolog.Logger) (*Service, error) {
	// Compared against on unknown emails so login latency does not reveal
	// whether an account exists.
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Service{
		users:     users,
		hasher:    hasher,
		codec:     codec,
		denylist:  denylist,
		logger:    logger.With().Str("component", "auth").Logger(),
		dummyHash: dummy,
		Now:       time.Now,
	}, nil
}

// Register creates a user with role "user" and returns a session for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)

	if violations := validation.Check(&in); violations != nil {
		metrics.RecordAuthAttempt("register", "validation")
		return Session{}, apperr.ValidationFailed(violations)
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return Session{}, s.storeError("register", err)
	}
	if exists {
		metrics.RecordAuthAttempt("register", "conflict")
		return Session{}, errAccountExists()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		metrics.RecordAuthAttempt("register", "error")
		return Session{}, apperr.Wrap(apperr.Internal, "Failed to register user", err)
	}

	user, err := s.users.Create(ctx, repository.UserCreateParams{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordAuthAttempt("register", "conflict")
			return Session{}, errAccountExists()
		}
		return Session{}, s.storeError("register", err)
	}

	session, err := s.issue(user)
	if err != nil {
		return Session{}, err
	}
	metrics.RecordAuthAttempt("register", "ok")
	s.logger.Info().Int64("user_id", user.ID).Msg("user registered")
	return session, nil
}

// Login exchanges credentials for a session. An unknown email and a wrong
// password produce the same error.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		metrics.RecordAuthAttempt("login", "bad_request")
		return Session{}, apperr.New(apperr.BadRequest, "Email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(in.Password, s.dummyHash)
			metrics.RecordAuthAttempt("login", "invalid_credentials")
			return Session{}, errInvalidCredentials("unknown email")
		}
		return Session{}, s.storeError("login", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		metrics.RecordAuthAttempt("login", "invalid_credentials")
		return Session{}, errInvalidCredentials("password mismatch")
	}

	session, err := s.issue(user)
	if err != nil {
		return Session{}, err
	}
	metrics.RecordAuthAttempt("login", "ok")
	return session, nil
}

// CurrentUser returns the account behind an authenticated identity.
func (s *Service) CurrentUser(ctx context.Context, id Identity) (domain.UserSummary, error) {
	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.UserSummary{}, apperr.New(apperr.Unauthenticated, "Invalid token").WithReason("subject no longer exists")
		}
		return domain.UserSummary{}, s.storeError("me", err)
	}
	return user.Summary(), nil
}

// RevocationEnabled reports whether Logout can revoke tokens.
func (s *Service) RevocationEnabled() bool {
	return s.denylist != nil
}

// Logout revokes the caller's token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, id Identity) error {
	if s.denylist == nil {
		return apperr.New(apperr.Internal, "Token revocation is not configured")
	}
	if err := s.denylist.Revoke(ctx, id.TokenID, id.ExpiresAt); err != nil {
		s.logger.Error().Err(err).Msg("revoke token failed")
		return apperr.Wrap(apperr.Transient, "Service temporarily unavailable", err).WithReason("denylist write")
	}
	return nil
}

func (s *Service) issue(user domain.User) (Session, error) {
	token, claims, err := s.codec.Issue(user.ID, user.Role, s.Now())
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "Failed to issue token", err)
	}
	return Session{Token: token, ExpiresAt: claims.ExpiresAt, User: user.Summary()}, nil
}

func (s *Service) storeError(operation string, err error) error {
	metrics.RecordAuthAttempt(operation, "error")
	if errors.Is(err, repository.ErrUnavailable) {
		return apperr.Wrap(apperr.Transient, "Service temporarily unavailable", err)
	}
	return apperr.Wrap(apperr.Internal, "Internal server error", err)
}

func errAccountExists() error {
	return apperr.New(apperr.Conflict, "Email or username already exists")
}

func errInvalidCredentials(reason string) error {
	return apperr.New(apperr.InvalidCredentials, "Invalid credentials").WithReason(reason)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
