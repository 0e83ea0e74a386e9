package domain

import "time"

// Movie represents a catalog entry. Rating is the mean of the movie's review
// ratings and is only ever written by the review ledger.
type Movie struct {
	ID            int64
	Title         string
	OriginalTitle *string
	Year          *int
	Description   *string
	Rating        float64
	CreatedBy     *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MovieDetail is a movie together with its reviews, newest first.
type MovieDetail struct {
	Movie
	Reviews []ReviewWithAuthor
}
