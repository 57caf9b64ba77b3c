// Package httpapi exposes the dashboard HTTP API: trigger category
// management, monitoring session control, and song/trigger inspection.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/arieluchka/spotify-ocd-saver/internal/app/monitor"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
	"github.com/arieluchka/spotify-ocd-saver/internal/infra/storage"
)

// userHeader identifies the acting user scope. Absent means the
// global scope.
const userHeader = "X-User-ID"

// Scanner runs manual scan passes requested through the API.
type Scanner interface {
	ScanSong(ctx context.Context, songID int64, userID *int64, force bool) (song.ScanStatus, error)
}

// Sessions is the monitoring session control surface.
type Sessions interface {
	Start(userID *int64, overrides map[string]any) (monitor.SessionStatus, error)
	Stop(sessionID string) error
	Status() []monitor.SessionStatus
	StatusFor(userID *int64) (monitor.SessionStatus, bool)
}

// Config holds API server settings.
type Config struct {
	// GapToleranceMs is the default merge tolerance for window reads.
	GapToleranceMs int64
	AllowedOrigins []string
}

// Server bundles the API handlers and their dependencies.
type Server struct {
	store    *storage.Store
	scanner  Scanner
	sessions Sessions
	cfg      Config
	log      zerolog.Logger
}

// NewServer creates the API server.
func NewServer(store *storage.Store, scanner Scanner, sessions Sessions, cfg Config) *Server {
	return &Server{
		store:    store,
		scanner:  scanner,
		sessions: sessions,
		cfg:      cfg,
		log:      zlog.With().Str("component", "httpapi").Logger(),
	}
}

// Handler returns the routed HTTP handler, CORS-wrapped.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)

	mux.HandleFunc("/api/trigger-categories", s.handleCategories)
	mux.HandleFunc("/api/trigger-categories/", s.handleCategory)

	mux.HandleFunc("/api/monitoring/start", s.handleMonitoringStart)
	mux.HandleFunc("/api/monitoring/stop", s.handleMonitoringStop)
	mux.HandleFunc("/api/monitoring/status", s.handleMonitoringStatus)

	mux.HandleFunc("/api/songs/search", s.handleSongSearch)
	mux.HandleFunc("/api/songs/contaminated", s.handleContaminated)
	mux.HandleFunc("/api/songs/", s.handleSong)

	return corsMiddleware(s.cfg.AllowedOrigins)(mux)
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("httpapi: failed to encode response")
	}
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// userScope extracts the acting user from the request header. A
// missing header is the global scope, not an error.
func (s *Server) userScope(r *http.Request) (*int64, error) {
	raw := r.Header.Get(userHeader)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := allowAll
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						allowed = true
						break
					}
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+userHeader)
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
