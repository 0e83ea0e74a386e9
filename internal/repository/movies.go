package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
)

// MoviesRepository provides persistence helpers for movie entities. It never
// writes the rating column; see ReviewsRepository.
type MoviesRepository struct {
	base
}

const movieColumns = `
    id,
    title,
    original_title,
    year,
    description,
    rating,
    created_by,
    created_at,
    updated_at
`

// MovieCreateParams bundles the fields required to create a movie.
type MovieCreateParams struct {
	Title         string
	OriginalTitle *string
	Year          *int
	Description   *string
	CreatedBy     *int64
}

// MovieUpdateParams carries a partial update; nil fields are left unchanged.
type MovieUpdateParams struct {
	Title         *string
	OriginalTitle *string
	Year          *int
	Description   *string
}

// MovieListFilters encapsulates search and pagination options.
type MovieListFilters struct {
	Query  *string
	Year   *int
	Limit  int
	Cursor *MovieCursor
}

// MovieCursor allows stable pagination by created_at/id.
type MovieCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        int64     `json:"id"`
}

// MovieListResult returns the paginated payload.
type MovieListResult struct {
	Items      []domain.Movie
	NextCursor *string
}

// Create inserts a new movie row with a zero rating.
func (r *MoviesRepository) Create(ctx context.Context, params MovieCreateParams) (domain.Movie, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
        INSERT INTO movies (title, original_title, year, description, created_by)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING %s
    `, movieColumns)

	row := r.pool.QueryRow(ctx, query, params.Title, params.OriginalTitle, params.Year, params.Description, params.CreatedBy)
	movie, err := scanMovie(row)
	if err != nil {
		return domain.Movie{}, translateErr(err)
	}
	return movie, nil
}

// GetByID fetches a movie by its identifier.
func (r *MoviesRepository) GetByID(ctx context.Context, id int64) (domain.Movie, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM movies WHERE id = $1`, movieColumns)
	movie, err := scanMovie(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Movie{}, translateErr(err)
	}
	return movie, nil
}

// Update applies the non-nil fields of params.
func (r *MoviesRepository) Update(ctx context.Context, id int64, params MovieUpdateParams) (domain.Movie, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
        UPDATE movies
        SET title = COALESCE($2, title),
            original_title = COALESCE($3, original_title),
            year = COALESCE($4, year),
            description = COALESCE($5, description),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, movieColumns)

	row := r.pool.QueryRow(ctx, query, id, params.Title, params.OriginalTitle, params.Year, params.Description)
	movie, err := scanMovie(row)
	if err != nil {
		return domain.Movie{}, translateErr(err)
	}
	return movie, nil
}

// Delete removes a movie and, through the foreign key, its reviews.
func (r *MoviesRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns movies that match the provided filters, newest first.
func (r *MoviesRepository) List(ctx context.Context, filters MovieListFilters) (MovieListResult, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := arg("%" + strings.TrimSpace(*filters.Query) + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %s OR original_title ILIKE %s)", q, q))
	}
	if filters.Year != nil {
		where = append(where, fmt.Sprintf("year = %s", arg(*filters.Year)))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(movieColumns)
	queryBuilder.WriteString(" FROM movies")

	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return MovieListResult{}, translateErr(err)
	}
	defer rows.Close()

	items := make([]domain.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return MovieListResult{}, translateErr(err)
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return MovieListResult{}, translateErr(err)
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(MovieCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return MovieListResult{}, err
		}
		nextCursor = &token
	}

	return MovieListResult{Items: items, NextCursor: nextCursor}, nil
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var movie domain.Movie
	err := row.Scan(
		&movie.ID,
		&movie.Title,
		&movie.OriginalTitle,
		&movie.Year,
		&movie.Description,
		&movie.Rating,
		&movie.CreatedBy,
		&movie.CreatedAt,
		&movie.UpdatedAt,
	)
	if err != nil {
		return domain.Movie{}, err
	}
	return movie, nil
}

func encodeCursor(c MovieCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a MovieCursor.
func DecodeCursor(token string) (*MovieCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor MovieCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	if cursor.ID <= 0 || cursor.CreatedAt.IsZero() {
		return nil, fmt.Errorf("invalid cursor payload")
	}
	return &cursor, nil
}
