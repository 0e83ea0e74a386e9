package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/movie-catalog/internal/apperr"
	"github.com/Clark-Hu/movie-catalog/internal/auth"
	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
	"github.com/Clark-Hu/movie-catalog/internal/validation"
)

type movieCreateRequest struct {
	Title         string  `json:"title" validate:"required,min=2,max=255"`
	OriginalTitle *string `json:"original_title" validate:"omitempty,max=255"`
	Year          *int    `json:"year" validate:"omitempty,movieyear"`
	Description   *string `json:"description" validate:"omitempty,max=5000"`
}

type movieUpdateRequest struct {
	Title         *string `json:"title" validate:"omitempty,min=2,max=255"`
	OriginalTitle *string `json:"original_title" validate:"omitempty,max=255"`
	Year          *int    `json:"year" validate:"omitempty,movieyear"`
	Description   *string `json:"description" validate:"omitempty,max=5000"`
}

type movieResponse struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	OriginalTitle *string   `json:"original_title"`
	Year          *int      `json:"year"`
	Description   *string   `json:"description"`
	Rating        float64   `json:"rating"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type reviewResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type movieDetailResponse struct {
	movieResponse
	Reviews []reviewResponse `json:"reviews"`
}

type movieListResponse struct {
	Success    bool            `json:"success"`
	Data       []movieResponse `json:"data"`
	Count      int             `json:"count"`
	NextCursor *string         `json:"nextCursor,omitempty"`
}

type movieDataResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

type ratingSummaryResponse struct {
	Success bool    `json:"success"`
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	filters, err := buildMovieFilters(r.URL.Query())
	if err != nil {
		s.respondAppError(w, r, apperr.Wrap(apperr.BadRequest, err.Error(), err))
		return
	}

	result, err := s.repo.Movies.List(r.Context(), filters)
	if err != nil {
		s.respondAppError(w, r, movieError(err))
		return
	}

	items := make([]movieResponse, 0, len(result.Items))
	for _, movie := range result.Items {
		items = append(items, toMovieResponse(movie))
	}
	s.respondJSON(w, http.StatusOK, movieListResponse{
		Success:    true,
		Data:       items,
		Count:      len(items),
		NextCursor: result.NextCursor,
	})
}

func buildMovieFilters(query url.Values) (repository.MovieListFilters, error) {
	var filters repository.MovieListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	if val := strings.TrimSpace(query.Get("year")); val != "" {
		year, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid year value")
		}
		filters.Year = &year
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "movie")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	movie, err := s.repo.Movies.GetByID(r.Context(), id)
	if err != nil {
		s.respondAppError(w, r, movieError(err))
		return
	}
	reviews, err := s.ledger.ForMovie(r.Context(), id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	detail := toMovieDetailResponse(domain.MovieDetail{Movie: movie, Reviews: reviews})
	s.respondJSON(w, http.StatusOK, movieDataResponse{Success: true, Data: detail})
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "movie")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	summary, err := s.ledger.Summary(r.Context(), id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ratingSummaryResponse{
		Success: true,
		Average: roundToOneDecimal(summary.Average),
		Count:   summary.Count,
	})
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	var req movieCreateRequest
	mismatched, err := decodeFields(w, r, &req)
	if err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.OriginalTitle = normalizeStringPtr(req.OriginalTitle)
	req.Description = normalizeStringPtr(req.Description)
	if violations := mergeViolations(validation.Check(&req), mismatched); violations != nil {
		s.respondAppError(w, r, apperr.ValidationFailed(violations))
		return
	}

	id, _ := auth.IdentityFrom(r.Context())
	movie, err := s.repo.Movies.Create(r.Context(), repository.MovieCreateParams{
		Title:         req.Title,
		OriginalTitle: req.OriginalTitle,
		Year:          req.Year,
		Description:   req.Description,
		CreatedBy:     &id.UserID,
	})
	if err != nil {
		s.respondAppError(w, r, movieError(err))
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/movies/%d", movie.ID))
	s.respondJSON(w, http.StatusCreated, messageResponse{Success: true, Message: "Movie created", ID: &movie.ID})
}

func (s *Server) handleUpdateMovie(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "movie")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var req movieUpdateRequest
	mismatched, err := decodeFields(w, r, &req)
	if err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		req.Title = &title
	}
	req.OriginalTitle = normalizeStringPtr(req.OriginalTitle)
	req.Description = normalizeStringPtr(req.Description)
	if violations := mergeViolations(validation.Check(&req), mismatched); violations != nil {
		s.respondAppError(w, r, apperr.ValidationFailed(violations))
		return
	}

	movie, err := s.repo.Movies.Update(r.Context(), id, repository.MovieUpdateParams{
		Title:         req.Title,
		OriginalTitle: req.OriginalTitle,
		Year:          req.Year,
		Description:   req.Description,
	})
	if err != nil {
		s.respondAppError(w, r, movieError(err))
		return
	}
	s.respondJSON(w, http.StatusOK, movieDataResponse{Success: true, Message: "Movie updated", Data: toMovieResponse(movie)})
}

func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "movie")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if err := s.repo.Movies.Delete(r.Context(), id); err != nil {
		s.respondAppError(w, r, movieError(err))
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Movie deleted"})
}

func movieError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.New(apperr.NotFound, "Movie not found")
	case errors.Is(err, repository.ErrUnavailable):
		return apperr.Wrap(apperr.Transient, "Service temporarily unavailable", err)
	default:
		return apperr.Wrap(apperr.Internal, "Internal server error", err)
	}
}

func toMovieDetailResponse(detail domain.MovieDetail) movieDetailResponse {
	out := movieDetailResponse{
		movieResponse: toMovieResponse(detail.Movie),
		Reviews:       make([]reviewResponse, 0, len(detail.Reviews)),
	}
	for _, rv := range detail.Reviews {
		out.Reviews = append(out.Reviews, reviewResponse{
			ID:        rv.ID,
			UserID:    rv.UserID,
			Username:  rv.Username,
			Rating:    rv.Rating,
			Comment:   rv.Comment,
			CreatedAt: rv.CreatedAt,
			UpdatedAt: rv.UpdatedAt,
		})
	}
	return out
}

func toMovieResponse(movie domain.Movie) movieResponse {
	return movieResponse{
		ID:            movie.ID,
		Title:         movie.Title,
		OriginalTitle: movie.OriginalTitle,
		Year:          movie.Year,
		Description:   movie.Description,
		Rating:        roundToOneDecimal(movie.Rating),
		CreatedAt:     movie.CreatedAt,
		UpdatedAt:     movie.UpdatedAt,
	}
}
