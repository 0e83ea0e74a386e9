package httpserver

import (
	"fmt"
	"net/http"
	"testing"
)

func BenchmarkAddReview(b *testing.B) {
	srv := buildTestServer(b)
	session := register(b, srv, "bench", "bench@example.com")

	movieIDs := make([]int64, b.N)
	for i := range movieIDs {
		movieIDs[i] = createMovie(b, srv, fmt.Sprintf("Benchmark Movie %d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := do(b, srv, http.MethodPost, "/api/reviews", session.Token, map[string]interface{}{
			"movie_id": movieIDs[i],
			"rating":   i%10 + 1,
		})
		if rec.Code != http.StatusCreated {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

func BenchmarkListMovies(b *testing.B) {
	srv := buildTestServer(b)
	for i := 0; i < 50; i++ {
		createMovie(b, srv, fmt.Sprintf("Listed %d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := do(b, srv, http.MethodGet, "/api/movies?limit=20", "", nil)
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
