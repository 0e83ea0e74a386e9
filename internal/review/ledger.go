// Package review owns the review lifecycle and the movie rating aggregate.
//
// Every mutation runs in a single store transaction that also recomputes the
// movie's rating, so a committed movie rating always equals the mean of its
// committed reviews (0 with none).
package review

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/apperr"
	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/metrics"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
	"github.com/Clark-Hu/movie-catalog/internal/validation"
)

// Store is the transactional review storage.
type Store interface {
	Create(ctx context.Context, params repository.ReviewCreateParams) (domain.Review, error)
	Update(ctx context.Context, params repository.ReviewUpdateParams) (domain.Review, error)
	Delete(ctx context.Context, id, userID int64) error
	ListByMovie(ctx context.Context, movieID int64) ([]domain.ReviewWithAuthor, error)
	Summary(ctx context.Context, movieID int64) (domain.RatingSummary, error)
}

// AddInput is the payload for a new review.
type AddInput struct {
	MovieID *int64  `json:"movie_id" validate:"required"`
	Rating  *int    `json:"rating" validate:"required,rating"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

// UpdateInput is a partial update; absent fields keep their values.
type UpdateInput struct {
	Rating  *int    `json:"rating" validate:"omitempty,rating"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

// Ledger validates review mutations and maps storage failures to apperr kinds.
type Ledger struct {
	store  Store
	logger zerolog.Logger
}

func NewLedger(store Store, logger zerolog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger.With().Str("component", "review").Logger()}
}

// Add records userID's review of a movie.
func (l *Ledger) Add(ctx context.Context, userID int64, in AddInput) (domain.Review, error) {
	if violations := validation.Check(&in); violations != nil {
		metrics.RecordReviewMutation("add", "validation")
		return domain.Review{}, apperr.ValidationFailed(violations)
	}

	created, err := l.store.Create(ctx, repository.ReviewCreateParams{
		MovieID: *in.MovieID,
		UserID:  userID,
		Rating:  *in.Rating,
		Comment: in.Comment,
	})
	if err != nil {
		return domain.Review{}, l.mutationError("add", err, "Movie not found")
	}

	metrics.RecordReviewMutation("add", "ok")
	l.logger.Debug().Int64("review_id", created.ID).Int64("movie_id", created.MovieID).Msg("review added")
	return created, nil
}

// Update modifies a review the caller owns. Someone else's review is
// reported as not found.
func (l *Ledger) Update(ctx context.Context, reviewID, userID int64, in UpdateInput) (domain.Review, error) {
	if violations := validation.Check(&in); violations != nil {
		metrics.RecordReviewMutation("update", "validation")
		return domain.Review{}, apperr.ValidationFailed(violations)
	}

	updated, err := l.store.Update(ctx, repository.ReviewUpdateParams{
		ID:      reviewID,
		UserID:  userID,
		Rating:  in.Rating,
		Comment: in.Comment,
	})
	if err != nil {
		return domain.Review{}, l.mutationError("update", err, errNotOwned)
	}

	metrics.RecordReviewMutation("update", "ok")
	return updated, nil
}

// Delete removes a review the caller owns.
func (l *Ledger) Delete(ctx context.Context, reviewID, userID int64) error {
	if err := l.store.Delete(ctx, reviewID, userID); err != nil {
		return l.mutationError("delete", err, errNotOwned)
	}
	metrics.RecordReviewMutation("delete", "ok")
	return nil
}

// ForMovie lists a movie's reviews.
func (l *Ledger) ForMovie(ctx context.Context, movieID int64) ([]domain.ReviewWithAuthor, error) {
	reviews, err := l.store.ListByMovie(ctx, movieID)
	if err != nil {
		return nil, readError(err, "Movie not found")
	}
	return reviews, nil
}

// Summary returns the stored aggregate for a movie.
func (l *Ledger) Summary(ctx context.Context, movieID int64) (domain.RatingSummary, error) {
	summary, err := l.store.Summary(ctx, movieID)
	if err != nil {
		return domain.RatingSummary{}, readError(err, "Movie not found")
	}
	return summary, nil
}

const errNotOwned = "Review not found or you do not have permission"

func (l *Ledger) mutationError(operation string, err error, notFoundMsg string) error {
	var kind apperr.Kind
	var out *apperr.Error
	switch {
	case errors.Is(err, repository.ErrNotFound):
		kind = apperr.NotFound
		out = apperr.New(kind, notFoundMsg)
	case errors.Is(err, repository.ErrConflict):
		kind = apperr.Conflict
		out = apperr.New(kind, "You have already reviewed this movie")
	case errors.Is(err, repository.ErrUnavailable):
		kind = apperr.Transient
		out = apperr.Wrap(kind, "Service temporarily unavailable", err)
	default:
		kind = apperr.Internal
		out = apperr.Wrap(kind, "Internal server error", err)
		l.logger.Error().Err(err).Str("operation", operation).Msg("review mutation failed")
	}
	metrics.RecordReviewMutation(operation, kind.String())
	return out
}

func readError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.New(apperr.NotFound, notFoundMsg)
	case errors.Is(err, repository.ErrUnavailable):
		return apperr.Wrap(apperr.Transient, "Service temporarily unavailable", err)
	default:
		return apperr.Wrap(apperr.Internal, "Internal server error", err)
	}
}
