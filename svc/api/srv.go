package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"

	"github.com/KazeTachinuu/copy-paste/cfg"
	"github.com/KazeTachinuu/copy-paste/svc/db"
	"github.com/KazeTachinuu/copy-paste/svc/lim"
	"github.com/KazeTachinuu/copy-paste/svc/svc"
	"github.com/KazeTachinuu/copy-paste/svc/util"
)

type Server struct {
	router     *chi.Mux
	store      *svc.Store
	gov        *lim.Governor
	cfg        *cfg.Cfg
	kv         db.KV
	httpServer *http.Server
}

func NewServer(c *cfg.Cfg, store *svc.Store, gov *lim.Governor, kv db.KV) *Server {
	r := chi.NewRouter()
	mw := NewMw(gov, c)
	s := &Server{
		router: r,
		store:  store,
		gov:    gov,
		cfg:    c,
		kv:     kv,
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.CORS)
		r.Use(mw.JSONContentType)
		r.Use(mw.Telemetry)
		r.Use(mw.RateLimit)
		hdl := &Hdl{store: store, cfg: c}
		r.Post("/api/paste", hdl.CreatePaste)
		r.Get("/api/paste/{code}", hdl.GetPaste)
		r.Get("/api/pastes", hdl.ListPastes)
	})

	s.httpServer = &http.Server{
		Addr:           ":" + c.Port,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 256 * 1024,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
