package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/movie-catalog/internal/auth"
	"github.com/Clark-Hu/movie-catalog/internal/review"
)

func (s *Server) handleAddReview(w http.ResponseWriter, r *http.Request) {
	var req review.AddInput
	mismatched, err := decodeFields(w, r, &req)
	if err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	if s.rejectMismatched(w, r, &req, mismatched) {
		return
	}

	id, _ := auth.IdentityFrom(r.Context())
	created, err := s.ledger.Add(r.Context(), id.UserID, req)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, messageResponse{Success: true, Message: "Review added", ID: &created.ID})
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	reviewID, err := pathID(r, "id", "review")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req review.UpdateInput
	mismatched, err := decodeFields(w, r, &req)
	if err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	if s.rejectMismatched(w, r, &req, mismatched) {
		return
	}

	id, _ := auth.IdentityFrom(r.Context())
	if _, err := s.ledger.Update(r.Context(), reviewID, id.UserID, req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Review updated"})
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	reviewID, err := pathID(r, "id", "review")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	id, _ := auth.IdentityFrom(r.Context())
	if err := s.ledger.Delete(r.Context(), reviewID, id.UserID); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Review deleted"})
}
