/*
Copyright 2025 The Edgeplane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package apiserver serves the declarative API: CustomResourceDefinitions
// under the built-in apiextensions group, and instances of every declared kind
// under their own group. Mutations emit reconcile messages; reads are served
// straight from the store.
package apiserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/utils/clock"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	v1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
	"github.com/edgeplane/edgeplane/internal/metrics"
	"github.com/edgeplane/edgeplane/internal/queue"
	"github.com/edgeplane/edgeplane/internal/store"
)

const (
	defaultListen          = ":8080"
	defaultShutdownTimeout = 10 * time.Second
)

// A Server serves the edgeplane API.
type Server struct {
	store    store.Store
	producer queue.Producer

	log      logging.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	clock    clock.Clock
	listen   string

	router chi.Router
}

// An Option configures the server.
type Option func(*Server)

// WithLogger configures how the server logs requests.
func WithLogger(log logging.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics configures the registry backing /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithListen configures the listen address.
func WithListen(addr string) Option {
	return func(s *Server) {
		s.listen = addr
	}
}

// WithClock configures the clock used to render object ages.
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// New returns a server for the supplied store, emitting reconcile messages to
// the supplied producer.
func New(st store.Store, producer queue.Producer, o ...Option) *Server {
	s := &Server{
		store:    st,
		producer: producer,
		log:      logging.NewNopLogger(),
		metrics:  metrics.New(),
		validate: validator.New(),
		clock:    clock.RealClock{},
		listen:   defaultListen,
	}
	for _, fn := range o {
		fn(s)
	}

	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Get("/apis", s.handleDiscoverGroups)

	// The built-in group. Static routes win over the parameterised ones
	// below, and the router does not backtrack out of a static subtree, so
	// the group discovery endpoint needs registering here too.
	r.Get("/apis/"+v1.Group, s.handleDiscoverVersions)
	r.Route("/apis/"+v1.Group+"/"+v1.Version, func(r chi.Router) {
		r.Get("/", s.handleDiscoverResources)
		r.Get("/dependencygraph", s.handleDependencyGraph)
		r.Route("/"+v1.CustomResourceDefinitionPlural, func(r chi.Router) {
			r.Get("/", s.handleListCRDs)
			r.Post("/", s.handleCreateCRD)
			r.Get("/{name}", s.handleGetCRD)
			r.Delete("/{name}", s.handleDeleteCRD)
		})
	})

	r.Route("/apis/{group}", func(r chi.Router) {
		r.Get("/", s.handleDiscoverVersions)
		r.Route("/{version}", func(r chi.Router) {
			r.Get("/", s.handleDiscoverResources)
			r.Route("/namespaces/{namespace}/{plural}", func(r chi.Router) {
				r.Get("/", s.handleListResources)
				r.Post("/", s.handleCreateResource)
				r.Get("/{name}", s.handleGetResource)
				r.Patch("/{name}", s.handlePatchResource)
				r.Delete("/{name}", s.handleDeleteResource)
			})
			r.Route("/{plural}", func(r chi.Router) {
				r.Get("/", s.handleListResources)
				r.Post("/", s.handleCreateResource)
				r.Get("/{name}", s.handleGetResource)
				r.Patch("/{name}", s.handlePatchResource)
				r.Delete("/{name}", s.handleDeleteResource)
			})
		})
	})

	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store not ready: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// logRequests logs one line per request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("Served request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

func (s *Server) clockNow() time.Time {
	return s.clock.Now()
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
