package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/movie-catalog/internal/auth"
	"github.com/Clark-Hu/movie-catalog/internal/domain"
)

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
}

type sessionResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

type meResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

func toUserResponse(u domain.UserSummary, withRole bool) userResponse {
	resp := userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
	if withRole {
		resp.Role = string(u.Role)
	}
	return resp
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	mismatched, err := decodeFields(w, r, &req)
	if err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	if s.rejectMismatched(w, r, &req, mismatched) {
		return
	}

	session, err := s.auth.Register(r.Context(), req)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sessionResponse{
		Success: true,
		Message: "User registered",
		Token:   session.Token,
		User:    toUserResponse(session.User, false),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginInput
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, r, err)
		return
	}

	session, err := s.auth.Login(r.Context(), req)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessionResponse{
		Success: true,
		Message: "Login successful",
		Token:   session.Token,
		User:    toUserResponse(session.User, true),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	user, err := s.auth.CurrentUser(r.Context(), id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, meResponse{Success: true, User: toUserResponse(user, true)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	if err := s.auth.Logout(r.Context(), id); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out"})
}
