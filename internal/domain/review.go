package domain

import "time"

// Review is one user's rating of one movie. At most one exists per (MovieID, UserID).
type Review struct {
	ID        int64
	MovieID   int64
	UserID    int64
	Rating    int
	Comment   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReviewWithAuthor adds the reviewer's username for display.
type ReviewWithAuthor struct {
	Review
	Username string
}

// RatingSummary provides average and count for a movie's reviews.
type RatingSummary struct {
	Average float64
	Count   int64
}
