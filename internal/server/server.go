// Package server assembles the HTTP stack and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Brownie44l1/plant-identifier/internal/config"
	"github.com/Brownie44l1/plant-identifier/internal/handlers"
	"github.com/Brownie44l1/plant-identifier/internal/model"
	"github.com/Brownie44l1/plant-identifier/internal/ui"
	"github.com/Brownie44l1/plant-identifier/internal/upload"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Config    *config.Config
	Predictor model.Predictor
	Registry  *upload.Registry
	Previews  *upload.Previews
	Logger    *zap.Logger
}

type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	registry *upload.Registry
	logger   *zap.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server requires config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine, err := buildEngine(opts, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      opts.Config,
		engine:   engine,
		registry: opts.Registry,
		logger:   logger.Named("server"),
	}, nil
}

func buildEngine(opts Options, logger *zap.Logger) (*gin.Engine, error) {
	cfg := opts.Config

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger.Named("http")))
	engine.Use(apiOnly(cors.New(corsConfig(cfg.Server.AllowedOrigins))))
	engine.Use(ui.Static())

	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}

	handlers.NewHandler(opts.Predictor, cfg.Upload.MaxBytes, logger).Register(engine)

	pages, err := ui.NewHandlers(ui.Options{
		Registry: opts.Registry,
		Previews: opts.Previews,
		Sessions: ui.NewSessionStore(cfg.Server.SessionSecret),
		MaxBytes: cfg.Upload.MaxBytes,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	pages.Register(engine)

	return engine, nil
}

// Handler exposes the assembled router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on the configured port and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener runs the HTTP server on ln together with the form sweeper.
// Cancelling ctx drains in-flight requests, then closes every form.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.engine,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
	}

	s.logger.Info("starting server", zap.String("addr", ln.Addr().String()))

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if s.registry != nil {
		eg.Go(func() error {
			return s.registry.Run(egctx, s.cfg.Upload.SweepInterval)
		})
	}

	return eg.Wait()
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}

// apiOnly applies mw to the JSON API and leaves the page routes alone.
func apiOnly(mw gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || strings.HasPrefix(path, "/api/") || path == "/api" {
			mw(c)
		}
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
