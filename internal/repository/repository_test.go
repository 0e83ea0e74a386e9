package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/testdb"
)

type testEnv struct {
	ctx        context.Context
	repository *Repository
}

func newTestEnv(tb testing.TB) *testEnv {
	tb.Helper()
	pool := testdb.New(tb, 40000)
	return &testEnv{
		ctx:        context.Background(),
		repository: NewWithPool(pool, 5*time.Second),
	}
}

func mustCreateUser(tb testing.TB, env *testEnv, username string) domain.User {
	tb.Helper()
	user, err := env.repository.Users.Create(env.ctx, UserCreateParams{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$04$placeholder",
	})
	if err != nil {
		tb.Fatalf("create user %q: %v", username, err)
	}
	return user
}

func mustCreateMovie(tb testing.TB, env *testEnv, title string) domain.Movie {
	tb.Helper()
	year := 2020
	movie, err := env.repository.Movies.Create(env.ctx, MovieCreateParams{Title: title, Year: &year})
	if err != nil {
		tb.Fatalf("create movie %q: %v", title, err)
	}
	return movie
}

func TestUsersRepository_CreateAndLookup(t *testing.T) {
	env := newTestEnv(t)

	user := mustCreateUser(t, env, "alice")
	if user.Role != domain.RoleUser {
		t.Fatalf("default role = %q, want user", user.Role)
	}

	byEmail, err := env.repository.Users.GetByEmail(env.ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Fatalf("GetByEmail id = %d, want %d", byEmail.ID, user.ID)
	}

	if _, err := env.repository.Users.GetByEmail(env.ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	exists, err := env.repository.Users.ExistsByUsernameOrEmail(env.ctx, "someone", "alice@example.com")
	if err != nil || !exists {
		t.Fatalf("ExistsByUsernameOrEmail = %v, %v; want true", exists, err)
	}

	_, err = env.repository.Users.Create(env.ctx, UserCreateParams{
		Username:     "alice2",
		Email:        "alice@example.com",
		PasswordHash: "x",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email error = %v, want ErrConflict", err)
	}

	promoted, err := env.repository.Users.SetRole(env.ctx, "alice", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if promoted.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want admin", promoted.Role)
	}
	if _, err := env.repository.Users.SetRole(env.ctx, "ghost", domain.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetRole unknown user error = %v, want ErrNotFound", err)
	}
}

func TestUsersRepository_ConcurrentDuplicateRegistration(t *testing.T) {
	env := newTestEnv(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.repository.Users.Create(env.ctx, UserCreateParams{
				Username:     "racer",
				Email:        fmt.Sprintf("racer-%d@example.com", i),
				PasswordHash: "x",
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded.Load() != 1 || conflicts.Load() != workers-1 {
		t.Fatalf("succeeded=%d conflicts=%d, want 1/%d", succeeded.Load(), conflicts.Load(), workers-1)
	}
}

func TestMoviesRepository_CreateGetList(t *testing.T) {
	env := newTestEnv(t)

	movieA := mustCreateMovie(t, env, "Movie A")
	movieB := mustCreateMovie(t, env, "Movie B")
	if movieA.Rating != 0 {
		t.Fatalf("new movie rating = %v, want 0", movieA.Rating)
	}

	if _, err := env.repository.Movies.GetByID(env.ctx, 999999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown ID, got %v", err)
	}

	filters := MovieListFilters{Limit: 1}
	firstPage, err := env.repository.Movies.List(env.ctx, filters)
	if err != nil {
		t.Fatalf("List first page: %v", err)
	}
	if len(firstPage.Items) != 1 {
		t.Fatalf("first page size = %d, want 1", len(firstPage.Items))
	}
	if firstPage.NextCursor == nil {
		t.Fatalf("expected next cursor")
	}

	cursor, err := DecodeCursor(*firstPage.NextCursor)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}

	filters.Cursor = cursor
	secondPage, err := env.repository.Movies.List(env.ctx, filters)
	if err != nil {
		t.Fatalf("List second page: %v", err)
	}
	if len(secondPage.Items) != 1 {
		t.Fatalf("second page size = %d, want 1", len(secondPage.Items))
	}
	if firstPage.Items[0].ID == secondPage.Items[0].ID {
		t.Fatalf("pagination returned duplicate movie")
	}

	q := "movie b"
	searched, err := env.repository.Movies.List(env.ctx, MovieListFilters{Query: &q})
	if err != nil {
		t.Fatalf("List query: %v", err)
	}
	if len(searched.Items) != 1 || searched.Items[0].ID != movieB.ID {
		t.Fatalf("search returned %+v, want Movie B", searched.Items)
	}
}

func TestMoviesRepository_UpdateDelete(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Draft")

	title := "Final"
	updated, err := env.repository.Movies.Update(env.ctx, movie.ID, MovieUpdateParams{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Final" || updated.Year == nil || *updated.Year != 2020 {
		t.Fatalf("partial update clobbered fields: %+v", updated)
	}

	if err := env.repository.Movies.Delete(env.ctx, movie.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := env.repository.Movies.Delete(env.ctx, movie.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete error = %v, want ErrNotFound", err)
	}
	if _, err := env.repository.Movies.Update(env.ctx, movie.ID, MovieUpdateParams{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update deleted movie error = %v, want ErrNotFound", err)
	}
}

func TestReviewsRepository_RatingFollowsMutations(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Rated")
	alice := mustCreateUser(t, env, "alice")
	bob := mustCreateUser(t, env, "bob")

	assertRating := func(want float64, count int64) {
		t.Helper()
		summary, err := env.repository.Reviews.Summary(env.ctx, movie.ID)
		if err != nil {
			t.Fatalf("Summary: %v", err)
		}
		if math.Abs(summary.Average-want) > 1e-9 || summary.Count != count {
			t.Fatalf("summary = %+v, want average %v count %d", summary, want, count)
		}
	}

	reviewA, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: movie.ID, UserID: alice.ID, Rating: 8})
	if err != nil {
		t.Fatalf("create alice review: %v", err)
	}
	assertRating(8, 1)

	comment := "meh"
	if _, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: movie.ID, UserID: bob.ID, Rating: 6, Comment: &comment}); err != nil {
		t.Fatalf("create bob review: %v", err)
	}
	assertRating(7, 2)

	if _, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: movie.ID, UserID: alice.ID, Rating: 1}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate review error = %v, want ErrConflict", err)
	}
	assertRating(7, 2)

	newRating := 10
	updated, err := env.repository.Reviews.Update(env.ctx, ReviewUpdateParams{ID: reviewA.ID, UserID: alice.ID, Rating: &newRating})
	if err != nil {
		t.Fatalf("update review: %v", err)
	}
	if updated.Rating != 10 {
		t.Fatalf("updated rating = %d, want 10", updated.Rating)
	}
	assertRating(8, 2)

	if err := env.repository.Reviews.Delete(env.ctx, reviewA.ID, alice.ID); err != nil {
		t.Fatalf("delete review: %v", err)
	}
	assertRating(6, 1)

	reviews, err := env.repository.Reviews.ListByMovie(env.ctx, movie.ID)
	if err != nil {
		t.Fatalf("ListByMovie: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Username != "bob" || reviews[0].Comment == nil || *reviews[0].Comment != "meh" {
		t.Fatalf("ListByMovie = %+v", reviews)
	}
}

func TestReviewsRepository_OwnershipAndMissingMovie(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Owned")
	alice := mustCreateUser(t, env, "alice")
	mallory := mustCreateUser(t, env, "mallory")

	review, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: movie.ID, UserID: alice.ID, Rating: 4})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	rating := 1
	if _, err := env.repository.Reviews.Update(env.ctx, ReviewUpdateParams{ID: review.ID, UserID: mallory.ID, Rating: &rating}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign update error = %v, want ErrNotFound", err)
	}
	if err := env.repository.Reviews.Delete(env.ctx, review.ID, mallory.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete error = %v, want ErrNotFound", err)
	}
	if _, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: 424242, UserID: alice.ID, Rating: 4}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing movie error = %v, want ErrNotFound", err)
	}
	if _, err := env.repository.Reviews.Summary(env.ctx, 424242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing movie summary error = %v, want ErrNotFound", err)
	}

	if err := env.repository.Movies.Delete(env.ctx, movie.ID); err != nil {
		t.Fatalf("delete movie: %v", err)
	}
	if err := env.repository.Reviews.Delete(env.ctx, review.ID, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cascade should remove reviews, got %v", err)
	}
}

func TestTranslateErr(t *testing.T) {
	deadline, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"unique", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_email_key"}, ErrConflict},
		{"foreign key", &pgconn.PgError{Code: pgForeignKeyViolation}, ErrNotFound},
		{"deadline", fmt.Errorf("query: %w", deadline.Err()), ErrUnavailable},
		{"sentinel passthrough", ErrConflict, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translateErr(tt.in); !errors.Is(got, tt.want) {
				t.Fatalf("translateErr(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	plain := errors.New("syntax error")
	if got := translateErr(plain); got != plain {
		t.Fatalf("unknown errors should pass through unchanged, got %v", got)
	}
	if translateErr(nil) != nil {
		t.Fatalf("translateErr(nil) should be nil")
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!!", "e30", "bm90IGpzb24"} {
		if _, err := DecodeCursor(token); err == nil {
			t.Fatalf("DecodeCursor(%q) expected error", token)
		}
	}
	if c, err := DecodeCursor(""); err != nil || c != nil {
		t.Fatalf("empty cursor = %v, %v; want nil, nil", c, err)
	}
}

func BenchmarkMoviesRepositoryCreate(b *testing.B) {
	env := newTestEnv(b)

	for i := 0; i < b.N; i++ {
		if _, err := env.repository.Movies.Create(env.ctx, MovieCreateParams{Title: fmt.Sprintf("Bench Movie %d", i)}); err != nil {
			b.Fatalf("create movie: %v", err)
		}
	}
}

func BenchmarkReviewsRepositoryCreate(b *testing.B) {
	env := newTestEnv(b)

	movie := mustCreateMovie(b, env, "Bench Movie")
	for i := 0; i < b.N; i++ {
		user := mustCreateUser(b, env, fmt.Sprintf("bench-%d", i))
		if _, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: movie.ID, UserID: user.ID, Rating: 7}); err != nil {
			b.Fatalf("create review: %v", err)
		}
	}
}
