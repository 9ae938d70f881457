package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/stemvoice/internal/config"
	"github.com/ent0n29/stemvoice/internal/host"
	"github.com/ent0n29/stemvoice/internal/library"
	"github.com/ent0n29/stemvoice/internal/observability"
	"github.com/ent0n29/stemvoice/internal/session"
)

// VoiceSession is the controller surface exposed over HTTP.
type VoiceSession interface {
	Start(ctx context.Context) error
	Stop()
	Toggle(ctx context.Context) error
	Status() session.Status
}

// HostHub attaches browser UIs to the controller.
type HostHub interface {
	Serve(ctx context.Context, conn *websocket.Conn, initial any)
	Clients() int
}

type Server struct {
	cfg      config.Config
	voice    VoiceSession
	hub      HostHub
	library  library.Store
	metrics  *observability.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, voice VoiceSession, hub HostHub, store library.Store, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		voice:   voice,
		hub:     hub,
		library: store,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser pages may drive the microphone.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)

	r.Get("/v1/voice/session", s.handleSessionStatus)
	r.Post("/v1/voice/session/start", s.handleStartSession)
	r.Post("/v1/voice/session/stop", s.handleStopSession)
	r.Post("/v1/voice/session/toggle", s.handleToggleSession)

	r.Get("/v1/library/songs", s.handleListSongs)
	r.Post("/v1/library/songs", s.handleUpsertSong)
	r.Delete("/v1/library/songs", s.handleClearSongs)

	r.Get("/v1/host/ws", s.handleHostWS)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"session_state": s.voice.Status().State,
		"library_store": s.libraryMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.library.List(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "library_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"host_clients":  s.hub.Clients(),
		"library_store": s.libraryMode(),
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if err := s.voice.Start(r.Context()); err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) handleStopSession(w http.ResponseWriter, _ *http.Request) {
	s.voice.Stop()
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) handleToggleSession(w http.ResponseWriter, r *http.Request) {
	if err := s.voice.Toggle(r.Context()); err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrCaptureDenied):
		respondError(w, http.StatusForbidden, "capture_denied", err.Error())
	case errors.Is(err, session.ErrConnectFailed):
		respondError(w, http.StatusBadGateway, "connect_failed", err.Error())
	default:
		s.logger.Error().Err(err).Msg("voice session request failed")
		respondError(w, http.StatusInternalServerError, "session_error", err.Error())
	}
}

type songsResponse struct {
	Songs []library.Song `json:"songs"`
}

func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.library.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "library_error", err.Error())
		return
	}
	if songs == nil {
		songs = []library.Song{}
	}
	respondJSON(w, http.StatusOK, songsResponse{Songs: songs})
}

func (s *Server) handleUpsertSong(w http.ResponseWriter, r *http.Request) {
	var song library.Song
	if err := decodeJSON(r, &song); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	saved, err := s.library.Upsert(r.Context(), song)
	if err != nil {
		if errors.Is(err, library.ErrInvalidSong) {
			respondError(w, http.StatusBadRequest, "invalid_song", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "library_error", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleClearSongs(w http.ResponseWriter, r *http.Request) {
	if err := s.library.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "library_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHostWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.Serve(r.Context(), conn, host.StateEvent(s.voice.Status()))
}

func (s *Server) libraryMode() string {
	if _, ok := s.library.(*library.PostgresStore); ok {
		return "postgres"
	}
	return "in-memory"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
