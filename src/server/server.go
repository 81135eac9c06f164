package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lost-woods/entropyd/src/api"
	"github.com/lost-woods/entropyd/src/rng"
)

type Options struct {
	Addr           string
	APIKey         string
	HealthInterval time.Duration
}

type Server struct {
	opts   Options
	gw     *rng.Gateway
	health *rng.Health
	router *gin.Engine
	log    *zap.SugaredLogger
}

func New(opts Options, gw *rng.Gateway, h *rng.Health, log *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"X-API-KEY", "Accept"},
		AllowAllOrigins:  true,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(api.CheckHeader("X-API-KEY", opts.APIKey))

	handlers := api.NewHandlers(gw, h, log)
	router.GET("/bytes", handlers.ReadBytes)
	router.GET("/health", handlers.Health)

	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 10 * time.Second
	}
	return &Server{opts: opts, gw: gw, health: h, router: router, log: log}
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully. Background
// health monitoring runs for the lifetime of the server.
func (s *Server) Run(ctx context.Context) error {
	hctx, stop := context.WithCancel(ctx)
	defer stop()

	var set *rng.SourceSet
	if agg := s.gw.Aggregator(); agg != nil {
		set = agg.Set()
	}
	rng.CheckSources(set, s.health)
	go rng.PeriodicHealthCheck(hctx, s.gw, s.health, s.opts.HealthInterval)

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("entropy gateway listening", "addr", s.opts.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
