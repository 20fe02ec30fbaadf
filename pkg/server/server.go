// Package server exposes the registry over HTTP: the sparse index, crate
// downloads, and the crates.io-compatible publish/yank/ownership API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/freighter-registry/freighter/pkg/auth"
	"github.com/freighter-registry/freighter/pkg/index"
	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/freighter-registry/freighter/pkg/metrics"
	"github.com/freighter-registry/freighter/pkg/storage"
	"github.com/freighter-registry/freighter/pkg/types"
)

// healthcheckTimeout is the hard per-provider limit for the aggregate
// healthcheck.
const healthcheckTimeout = 4 * time.Second

// ServiceConfig is the HTTP-facing configuration of the registry.
type ServiceConfig struct {
	Address          string `yaml:"address"`
	DownloadEndpoint string `yaml:"download_endpoint"`
	APIEndpoint      string `yaml:"api_endpoint"`
	MetricsAddress   string `yaml:"metrics_address"`
	// AllowRegistration enables the account-creation endpoint.
	AllowRegistration bool `yaml:"allow_registration"`
	// AuthRequired gates the read endpoints too: config and index fetches,
	// downloads, search and listing. The healthcheck, the /me page and
	// account registration stay open. Requires cargo's `-Z registry-auth`
	// feature.
	AuthRequired bool `yaml:"auth_required"`
	// CrateSizeLimit bounds the tarball size accepted on publish, in bytes.
	CrateSizeLimit int `yaml:"crate_size_limit"`
}

// State bundles the providers behind the HTTP surface.
type State struct {
	Config  ServiceConfig
	Index   index.Provider
	Storage storage.Storage
	Auth    auth.Provider
}

// NewState assembles the service state.
func NewState(config ServiceConfig, idx index.Provider, store storage.Storage, authn auth.Provider) *State {
	return &State{
		Config:  config,
		Index:   idx,
		Storage: store,
		Auth:    authn,
	}
}

// Router builds the HTTP handler for a service state.
func Router(s *State) http.Handler {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Use(catchPanics)

	r.Route("/index", func(r chi.Router) {
		r.Get("/config.json", s.registryConfig)
		r.Get("/*", s.getSparseMeta)
	})
	r.Route("/downloads", func(r chi.Router) {
		r.Get("/{name}/{version}", s.serveCrate)
		r.NotFound(plainStatus(http.StatusNotFound, "Freighter: Invalid URL for the crate download endpoint"))
	})
	r.Route("/api/v1/crates", func(r chi.Router) {
		r.Put("/new", s.publish)
		r.Delete("/{name}/{version}/yank", s.yank)
		r.Put("/{name}/{version}/unyank", s.unyank)
		r.Get("/{name}/owners", s.listOwners)
		r.Put("/{name}/owners", s.addOwners)
		r.Delete("/{name}/owners", s.removeOwners)
		r.Post("/account", s.register)
		r.Get("/", s.search)
		r.NotFound(plainStatus(http.StatusNotFound, "Freighter: Invalid URL for the crates.io API endpoint"))
	})
	r.Get("/me", s.registerPage)
	r.Get("/all", s.listAll)
	r.Get("/healthcheck", s.healthcheck)
	r.NotFound(plainStatus(http.StatusNotFound, ""))

	return r
}

// metricsMiddleware records a duration histogram labeled by response code
// and the matched route template.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		code := strconv.Itoa(ww.Status())
		timer.ObserveDurationVec(metrics.RequestDuration, code, endpoint)
	})
}

// catchPanics converts handler panics into a counted 500 instead of tearing
// down the server.
func catchPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				metrics.PanicsTotal.Inc()
				log.WithComponent("server").Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("panic in request handler")
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func plainStatus(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		if body != "" {
			fmt.Fprint(w, body)
		}
	}
}

// healthcheck aggregates the providers' healthchecks under a hard timeout.
// It is unauthenticated and must not leak backend error strings.
func (s *State) healthcheck(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		label string
		run   func(context.Context) error
	}{
		{"auth", s.Auth.Healthcheck},
		{"index", s.Index.Healthcheck},
		{"storage", s.Storage.Healthcheck},
	}

	var g errgroup.Group
	for _, check := range checks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), healthcheckTimeout)
			defer cancel()
			err := check.run(ctx)
			if err == nil {
				return nil
			}
			outcome := "failed"
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = "timed out"
			}
			metrics.HealthcheckFailures.WithLabelValues(check.label, outcome).Inc()
			log.WithComponent("server").Error().
				Str("provider", check.label).Err(err).Msg("healthcheck")
			return fmt.Errorf("%s %s", check.label, outcome)
		})
	}

	if err := g.Wait(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "OK")
}

// listAll enumerates every crate in the index.
func (s *State) listAll(w http.ResponseWriter, r *http.Request) {
	if s.Config.AuthRequired {
		token, ok := s.requireToken(w, r)
		if !ok {
			return
		}
		if err := s.Auth.AuthViewFullIndex(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}
	}

	q := types.ListQuery{}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.PerPage = &n
		}
	}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Page = &n
		}
	}

	all, err := s.Index.List(r.Context(), &q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, all)
}

// registerPage serves the landing page explaining how to obtain a token.
func (s *State) registerPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var unsupported *auth.UnsupportedRegistrationError
	if err := s.Auth.RegisterSupported(); errors.As(err, &unsupported) {
		fmt.Fprint(w, unsupported.HTML)
		return
	}
	fmt.Fprint(w, registerHTML)
}

// requireToken extracts the bearer token, writing the response itself when
// the token is missing or malformed.
func (s *State) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := s.Auth.TokenFromRequest(r)
	if err != nil {
		writeError(w, err)
		return "", false
	}
	if token == "" {
		http.Error(w, "Auth token missing", http.StatusUnauthorized)
		return "", false
	}
	return token, true
}
