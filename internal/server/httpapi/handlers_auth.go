package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/cellscope/internal/server/services"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// health is deliberately outside the envelope.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: s.version})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.services.Auth.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "Registered", "username", res.Username)
	writeData(w, http.StatusCreated, registerResponse{
		UserID:    res.UserID,
		Username:  res.Username,
		CreatedAt: formatTime(res.CreatedAt),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.services.Auth.Login(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		User:         res.User,
	})
}

// logout only acknowledges: tokens are stateless and the client discards
// them.
func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, messageResponse{Message: "Logged out successfully. Please discard your tokens."})
}
