package server

import (
	"net/http"

	"appraiserai/pkg/domain"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(req.Email, req.Password)
	if err != nil {
		s.audit(r, "appraiser.signup", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "appraiser.signup", "success", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "appraiser.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "appraiser.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	templates := s.app.Templates()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": templates,
		"count": len(templates),
	})
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

// /admin/credential
func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		status, err := s.app.GetCredential(r.Context(), user)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodPut:
		var req credentialRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		status, err := s.app.SetCredential(r.Context(), user, req.APIKey)
		if err != nil {
			s.audit(r, "appraiser.credential.set", "fail", "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "appraiser.credential.set", "success", "user_id", user.ID)
		writeJSON(w, http.StatusOK, status)
	case http.MethodDelete:
		if err := s.app.ClearCredential(r.Context(), user); err != nil {
			s.audit(r, "appraiser.credential.clear", "fail", "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "appraiser.credential.clear", "success", "user_id", user.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}
