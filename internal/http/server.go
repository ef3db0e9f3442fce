package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sbaj179/School-Connect-2/internal/claim"
	"github.com/sbaj179/School-Connect-2/internal/config"
	"github.com/sbaj179/School-Connect-2/internal/identity"
	"github.com/sbaj179/School-Connect-2/internal/model"
)

// Store is the slice of the repository the handlers read from. Row lookups
// return nil on miss.
type Store interface {
	GetProfileByIdentity(ctx context.Context, identityID string) (*model.Profile, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error)
	GetGroup(ctx context.Context, groupID string) (*model.Group, error)
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
	ListGroupMessages(ctx context.Context, groupID string) ([]model.Message, error)
	LatestGroupMessages(ctx context.Context, groupIDs []string) (map[string]model.Message, error)
	ProfileNames(ctx context.Context, userIDs []string) (map[string]string, error)
	CreateMessage(ctx context.Context, message model.Message) error
}

type Server struct {
	cfg      config.Config
	store    Store
	provider identity.Provider
	claims   *claim.Service
	redis    *redis.Client
}

func NewServer(cfg config.Config, store Store, provider identity.Provider, claims *claim.Service, redisClient *redis.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		provider: provider,
		claims:   claims,
		redis:    redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/claim/student", s.handleClaimStudent)
		r.Post("/claim/teacher", s.handleClaimTeacher)

		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Get("/session", s.handleSession)

		r.Get("/profile/me", s.handleProfileMe)
		r.Get("/inbox", s.handleInbox)
		r.Route("/groups/{groupID}", func(r chi.Router) {
			r.Get("/", s.handleGetGroup)
			r.Get("/messages", s.handleListMessages)
			r.Post("/messages", s.handlePostMessage)
		})
	})

	s.mountPages(r)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeMessage emits the {message} error body every failure on this surface
// carries.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return "unknown"
}

// sessionIdentity re-validates the caller against the provider, reading the
// access token from the Authorization header or the mirrored cookie.
func (s *Server) sessionIdentity(r *http.Request) (model.Identity, bool) {
	token := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	} else if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		return model.Identity{}, false
	}
	ident, err := s.provider.GetUser(r.Context(), token)
	if err != nil {
		return model.Identity{}, false
	}
	return ident, true
}
