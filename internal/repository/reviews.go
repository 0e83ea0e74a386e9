package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
)

// ReviewsRepository writes reviews and keeps movies.rating equal to the mean
// of the movie's reviews. Every mutation locks the movie row first, so
// concurrent mutations of one movie serialize and each recompute sees all
// previously committed reviews.
type ReviewsRepository struct {
	base
}

const reviewColumns = `id, movie_id, user_id, rating, comment, created_at, updated_at`

const (
	lockMovieSQL = `SELECT id FROM movies WHERE id = $1 FOR UPDATE`

	recomputeRatingSQL = `
        UPDATE movies
        SET rating = COALESCE((SELECT AVG(rating)::float8 FROM reviews WHERE movie_id = $1), 0)
        WHERE id = $1
    `
)

// ReviewCreateParams captures the payload required to create a review.
type ReviewCreateParams struct {
	MovieID int64
	UserID  int64
	Rating  int
	Comment *string
}

// ReviewUpdateParams carries a partial update of a review owned by UserID.
type ReviewUpdateParams struct {
	ID      int64
	UserID  int64
	Rating  *int
	Comment *string
}

// Create inserts a review and recomputes the movie rating in one transaction.
// A missing movie yields ErrNotFound; an existing review by the same user
// yields ErrConflict.
func (r *ReviewsRepository) Create(ctx context.Context, params ReviewCreateParams) (domain.Review, error) {
	var review domain.Review
	err := r.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := lockMovie(ctx, tx, params.MovieID); err != nil {
			return err
		}

		var exists bool
		const dupSQL = `SELECT EXISTS (SELECT 1 FROM reviews WHERE movie_id = $1 AND user_id = $2)`
		if err := tx.QueryRow(ctx, dupSQL, params.MovieID, params.UserID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}

		query := fmt.Sprintf(`
            INSERT INTO reviews (movie_id, user_id, rating, comment)
            VALUES ($1,$2,$3,$4)
            RETURNING %s
        `, reviewColumns)
		var err error
		review, err = scanReview(tx.QueryRow(ctx, query, params.MovieID, params.UserID, params.Rating, params.Comment))
		if err != nil {
			return err
		}
		return recompute(ctx, tx, params.MovieID)
	})
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

// Update changes a review owned by params.UserID. A review that does not
// exist or belongs to someone else yields ErrNotFound.
func (r *ReviewsRepository) Update(ctx context.Context, params ReviewUpdateParams) (domain.Review, error) {
	var review domain.Review
	err := r.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		movieID, err := ownedReviewMovie(ctx, tx, params.ID, params.UserID)
		if err != nil {
			return err
		}
		if err := lockMovie(ctx, tx, movieID); err != nil {
			return err
		}

		query := fmt.Sprintf(`
            UPDATE reviews
            SET rating = COALESCE($3, rating),
                comment = COALESCE($4, comment),
                updated_at = now()
            WHERE id = $1 AND user_id = $2
            RETURNING %s
        `, reviewColumns)
		review, err = scanReview(tx.QueryRow(ctx, query, params.ID, params.UserID, params.Rating, params.Comment))
		if err != nil {
			return err
		}
		return recompute(ctx, tx, movieID)
	})
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

// Delete removes a review owned by userID and recomputes the movie rating.
func (r *ReviewsRepository) Delete(ctx context.Context, id, userID int64) error {
	return r.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		movieID, err := ownedReviewMovie(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if err := lockMovie(ctx, tx, movieID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM reviews WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return recompute(ctx, tx, movieID)
	})
}

// ListByMovie returns the movie's reviews with author names, newest first.
func (r *ReviewsRepository) ListByMovie(ctx context.Context, movieID int64) ([]domain.ReviewWithAuthor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT r.id, r.movie_id, r.user_id, r.rating, r.comment, r.created_at, r.updated_at, u.username
        FROM reviews r
        JOIN users u ON u.id = r.user_id
        WHERE r.movie_id = $1
        ORDER BY r.created_at DESC, r.id DESC
    `
	rows, err := r.pool.Query(ctx, query, movieID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	items := make([]domain.ReviewWithAuthor, 0)
	for rows.Next() {
		var item domain.ReviewWithAuthor
		if err := rows.Scan(
			&item.ID,
			&item.MovieID,
			&item.UserID,
			&item.Rating,
			&item.Comment,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Username,
		); err != nil {
			return nil, translateErr(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(err)
	}
	return items, nil
}

// Summary returns the stored rating and the review count for a movie.
func (r *ReviewsRepository) Summary(ctx context.Context, movieID int64) (domain.RatingSummary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT m.rating, COUNT(r.id)::int8
        FROM movies m
        LEFT JOIN reviews r ON r.movie_id = m.id
        WHERE m.id = $1
        GROUP BY m.id
    `
	var summary domain.RatingSummary
	if err := r.pool.QueryRow(ctx, query, movieID).Scan(&summary.Average, &summary.Count); err != nil {
		return domain.RatingSummary{}, translateErr(err)
	}
	return summary, nil
}

func lockMovie(ctx context.Context, tx pgx.Tx, movieID int64) error {
	var id int64
	return tx.QueryRow(ctx, lockMovieSQL, movieID).Scan(&id)
}

func ownedReviewMovie(ctx context.Context, tx pgx.Tx, id, userID int64) (int64, error) {
	var movieID int64
	err := tx.QueryRow(ctx, `SELECT movie_id FROM reviews WHERE id = $1 AND user_id = $2`, id, userID).Scan(&movieID)
	return movieID, err
}

func recompute(ctx context.Context, tx pgx.Tx, movieID int64) error {
	_, err := tx.Exec(ctx, recomputeRatingSQL, movieID)
	return err
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var review domain.Review
	err := row.Scan(
		&review.ID,
		&review.MovieID,
		&review.UserID,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}
