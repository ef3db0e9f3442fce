package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sbaj179/School-Connect-2/internal/auth"
	"github.com/sbaj179/School-Connect-2/internal/identity"
	"github.com/sbaj179/School-Connect-2/internal/model"
)

// The session gate mirrors both tokens into cookies so the page guard can run
// a presence check without a provider round trip. The cookies are mirrors,
// not the authority; GET /api/session re-validates against the provider.
const (
	accessTokenCookie  = "access-token"
	refreshTokenCookie = "refresh-token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type loginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    int64       `json:"expires_at"`
	User         sessionUser `json:"user"`
}

type sessionResponse struct {
	User  *sessionUser `json:"user"`
	Error *string      `json:"error"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing fields.")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Missing fields.")
		return
	}

	session, err := s.provider.Authenticate(r.Context(), req.Email, req.Password, r.UserAgent(), clientIP(r))
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials.")
			return
		}
		log.Error().Err(err).Msg("login failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return
	}

	s.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt.Unix(),
		User:         sessionUser{ID: session.IdentityID, Email: req.Email},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &body); err == nil && body.RefreshToken != "" {
		token = body.RefreshToken
	} else if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		writeMessage(w, http.StatusBadRequest, "Missing refresh token.")
		return
	}

	session, err := s.provider.Refresh(r.Context(), token, r.UserAgent(), clientIP(r))
	if err != nil {
		if errors.Is(err, identity.ErrInvalidSession) || errors.Is(err, identity.ErrIdentityNotFound) {
			s.clearSessionCookies(w)
			writeMessage(w, http.StatusUnauthorized, "Session expired — sign in.")
			return
		}
		log.Error().Err(err).Msg("refresh failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return
	}

	s.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt.Unix(),
		User:         sessionUser{ID: session.IdentityID},
	})
}

// handleSession is the authoritative session check. No local session is a
// normal anonymous outcome, not an error status; a cached session the
// provider no longer recognizes is cleared before reporting, so the next
// attempt starts clean.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(accessTokenCookie)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusOK, sessionResponse{Error: strptr("no-session")})
		return
	}

	ident, err := s.provider.GetUser(r.Context(), cookie.Value)
	if err != nil {
		// Best-effort revocation: if the cached token still names an
		// identity, drop its refresh sessions along with the cookies.
		if claims, parseErr := auth.ParseToken(s.cfg.JWTSecret, cookie.Value); parseErr == nil {
			if revokeErr := s.provider.SignOut(r.Context(), claims.IdentityID); revokeErr != nil {
				log.Warn().Err(revokeErr).Msg("stale-session revocation failed")
			}
		}
		s.clearSessionCookies(w)
		writeJSON(w, http.StatusOK, sessionResponse{Error: strptr("stale-session")})
		return
	}

	// Re-mirror both tokens for the page guard.
	session := model.Session{AccessToken: cookie.Value}
	if refresh, err := r.Cookie(refreshTokenCookie); err == nil {
		session.RefreshToken = refresh.Value
	}
	s.setSessionCookies(w, session)

	writeJSON(w, http.StatusOK, sessionResponse{
		User: &sessionUser{ID: ident.ID, Email: ident.Email},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if ident, ok := s.sessionIdentity(r); ok {
		if err := s.provider.SignOut(r.Context(), ident.ID); err != nil {
			log.Warn().Err(err).Msg("sign-out revocation failed")
		}
	}
	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) setSessionCookies(w http.ResponseWriter, session model.Session) {
	setCookie(w, accessTokenCookie, session.AccessToken, s.cfg.AccessTokenTTL)
	if session.RefreshToken != "" {
		setCookie(w, refreshTokenCookie, session.RefreshToken, s.cfg.RefreshTokenTTL)
	}
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	expireCookie(w, accessTokenCookie)
	expireCookie(w, refreshTokenCookie)
}

func setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
}

func expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func strptr(s string) *string {
	return &s
}
