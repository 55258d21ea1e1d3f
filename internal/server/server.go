// Package server exposes the print bridge over two loopback listeners: one
// TLS-terminated for pages under strict mixed-content policies, one
// plaintext for clients that refuse a self-signed certificate. Both serve
// the identical route set.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/anymobile/print-helper/internal/certs"
	"github.com/anymobile/print-helper/internal/config"
)

type Server struct {
	cfg     config.ServerConfig
	handler *Handler
	bundle  *certs.Bundle
	log     *zap.Logger
}

func New(cfg config.ServerConfig, handler *Handler, bundle *certs.Bundle, log *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		bundle:  bundle,
		log:     log,
	}
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Permissive on purpose: the service binds loopback only and performs
	// no privileged action without an explicit job payload.
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"*"}
	engine.Use(cors.New(corsCfg))

	s.handler.RegisterRoutes(engine)
	return engine
}

// Run starts both listeners and blocks until ctx is cancelled. A bind
// failure on one port is logged and leaves the other serving; clients fall
// back between protocols themselves.
func (s *Server) Run(ctx context.Context) {
	engine := s.buildEngine()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", s.cfg.HTTPPort),
		Handler:      engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	httpsServer := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", s.cfg.HTTPSPort),
		Handler:      engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{s.bundle.Certificate},
			MinVersion:   tls.VersionTLS12,
		},
	}

	go func() {
		s.log.Info("starting HTTP listener", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP listener failed", zap.Error(err))
		}
	}()

	go func() {
		s.log.Info("starting HTTPS listener", zap.String("addr", httpsServer.Addr))
		if err := httpsServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTPS listener failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP listener shutdown failed", zap.Error(err))
	}
	if err := httpsServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTPS listener shutdown failed", zap.Error(err))
	}
}
