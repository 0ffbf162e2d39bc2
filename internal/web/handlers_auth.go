package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/tidycsv/internal/auth"
	"github.com/JonMunkholm/tidycsv/internal/logging"
)

// handleLoginPage renders the login form, or sends a logged-in user on to
// the dashboard.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.TokenFromRequest(r); ok {
		if _, ok := s.auth.Resolve(token); ok {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
	}
	render(w, r, http.StatusOK, loginPage(""))
}

// handleLogin checks the submitted credentials and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sess, err := s.auth.Login(r.Context(), auth.Credentials{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		if wantsJSON(r) {
			writeJSON(w, status, ErrorResponse{
				Error:   "Invalid credentials",
				Message: "Invalid credentials",
				Action:  "Check your username and password",
				Code:    "AUTH002",
				Status:  status,
			})
			return
		}
		render(w, r, status, loginPage("Invalid credentials"))
		return
	}

	auth.SetSessionCookie(w, sess, s.cfg.Auth.CookieSecure)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": sess.Username})
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// handleLogout ends the caller's session, if any.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.TokenFromRequest(r); ok {
		if id, ok := s.auth.Resolve(token); ok {
			logging.FromContext(r.Context()).Info("user logged out", "username", id.Username)
		}
		s.auth.Logout(token)
	}
	auth.ClearSessionCookie(w, s.cfg.Auth.CookieSecure)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
