package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/capture"
	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/interlock"
)

// LightController changes lights under the safety policy
type LightController interface {
	Apply(ctx context.Context, name domain.LightName, req interlock.LightRequest) (interlock.Result, error)
	PendingOff(name domain.LightName) (time.Time, bool)
	Config() interlock.Config
}

// ImageCapturer runs the capture workflow
type ImageCapturer interface {
	Capture(ctx context.Context, source string) (capture.Image, error)
	Available() bool
	Config() capture.Config
}

// Info is static process information reported by /api/config
type Info struct {
	MockMode        bool
	SampleRate      float64
	EmitInterval    time.Duration
	HistoryCapacity int
}

// Deps are the collaborators the handlers need. Events and Push may be nil.
type Deps struct {
	State  *domain.SharedState
	Lights LightController
	Camera ImageCapturer
	Events domain.EventRepository
	Push   http.Handler
	Info   Info
}

// Server serves the JSON API and the push endpoint
type Server struct {
	Deps
	started time.Time
	now     func() time.Time
}

// NewServer creates the API server
func NewServer(deps Deps) *Server {
	return &Server{
		Deps:    deps,
		started: time.Now(),
		now:     time.Now,
	}
}

// Router returns the handler tree with logging, recovery and CORS
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	if s.Push != nil {
		r.Handle("/ws", s.Push)
		r.Handle("/socket", s.Push)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(
		hlog.NewHandler(log.Logger),
		hlog.RemoteAddrHandler("remote"),
		hlog.AccessHandler(accessLog),
	)

	api.HandleFunc("/readings", s.getReading).Methods(http.MethodGet)
	api.HandleFunc("/readings/history", s.getHistory).Methods(http.MethodGet)
	api.HandleFunc("/environment", s.getEnvironment).Methods(http.MethodGet)
	api.HandleFunc("/trigger-light", s.triggerExposure).Methods(http.MethodPost)
	api.HandleFunc("/led", s.triggerExposure).Methods(http.MethodPost)
	api.HandleFunc("/lights/{name}", s.getLight).Methods(http.MethodGet)
	api.HandleFunc("/lights/{name}", s.setLight).Methods(http.MethodPost)
	api.HandleFunc("/capture-image", s.captureImage).Methods(http.MethodPost)
	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/config", s.getConfig).Methods(http.MethodGet)
	api.HandleFunc("/events", s.listEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/{id:[0-9]+}", s.getEvent).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(cors(r))
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	event := hlog.FromRequest(r).Debug()
	if status >= http.StatusInternalServerError {
		event = hlog.FromRequest(r).Warn()
	}
	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}
