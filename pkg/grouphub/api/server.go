// Package api exposes group subscriptions and test notifications over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/randalmurphal/grouphub/pkg/grouphub/bus"
	"github.com/randalmurphal/grouphub/pkg/grouphub/event"
	"github.com/randalmurphal/grouphub/pkg/grouphub/store"
)

// IntegrationID identifies events dispatched from the HTTP API.
const IntegrationID = "api"

// Dispatcher is the part of the event bus the API uses.
type Dispatcher interface {
	Dispatch(ctx context.Context, integrationID, groupID string, eventType event.EventType, data event.DocumentData, message string) error
}

// DispatcherFactory builds a dispatcher whose fan-out runs on exec.
// The API calls it once per request that dispatches events.
type DispatcherFactory func(exec bus.Executor) Dispatcher

// BusFactory returns a DispatcherFactory building bus services from opts
// with the request's executor appended.
func BusFactory(opts ...bus.Option) DispatcherFactory {
	return func(exec bus.Executor) Dispatcher {
		all := make([]bus.Option, 0, len(opts)+1)
		all = append(all, opts...)
		all = append(all, bus.WithExecutor(exec))
		return bus.New(all...)
	}
}

// Server serves the grouphub HTTP API.
type Server struct {
	store  store.Store
	newBus DispatcherFactory
	logger *slog.Logger
	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server over st. newBus builds the dispatcher used by the
// test event endpoint.
func New(st store.Store, newBus DispatcherFactory, opts ...Option) *Server {
	s := &Server{
		store:  st,
		newBus: newBus,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/groups/{groupID}", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", s.listWebhooks)
			r.Post("/", s.createWebhook)
			r.Delete("/{id}", s.deleteWebhook)
		})
		r.Route("/notifiers", func(r chi.Router) {
			r.Get("/", s.listNotifiers)
			r.Post("/", s.createNotifier)
			r.Delete("/{id}", s.deleteNotifier)
		})
		r.Post("/events/test", s.testEvent)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
