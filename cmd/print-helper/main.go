package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/anymobile/print-helper/internal/certs"
	"github.com/anymobile/print-helper/internal/config"
	"github.com/anymobile/print-helper/internal/history"
	"github.com/anymobile/print-helper/internal/logging"
	"github.com/anymobile/print-helper/internal/printing"
	"github.com/anymobile/print-helper/internal/server"
	"github.com/anymobile/print-helper/internal/tools"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", filepath.Join(config.AppDir(), "config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logBuffer := logging.NewBuffer(cfg.Logging.BufferSize)
	logger, err := logging.New(cfg.Logging.Level, logBuffer)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	certManager := certs.NewManager(cfg.Certs.Dir, cfg.Certs.TrustTTL, logger.Named("certs"))
	bundle, err := certManager.EnsureCertificate()
	if err != nil {
		logger.Fatal("failed to prepare TLS certificate", zap.Error(err))
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Fatal("failed to open job history", zap.Error(err))
	}
	defer store.Close()

	provisioner := tools.NewProvisioner(
		cfg.Tools.Dir,
		cfg.Tools.DownloadTimeout,
		cfg.Tools.InstallerTimeout,
		logger.Named("tools"),
	)

	backend := printing.NewBackend(provisioner, cfg.Dispatch, cfg.Tools, logger.Named("printing"))
	dispatcher := printing.NewDispatcher(backend, store, cfg.Dispatch.ScratchRetention, logger.Named("dispatch"))

	// Provision the rasterizer in the background so the first job can take
	// the high-fidelity path; server availability never waits on it.
	if runtime.GOOS == "windows" {
		go func() {
			gs := tools.GhostscriptTool(cfg.Tools.GhostscriptSHA256)
			if _, err := provisioner.Ensure(ctx, gs); err != nil {
				logger.Warn("ghostscript provisioning failed, jobs will use the generic path",
					zap.Error(err))
			}
		}()
	}

	handler := server.NewHandler(
		version,
		dispatcher,
		backend,
		certManager,
		store,
		logBuffer,
		cfg.Server.HTTPPort,
		cfg.Server.HTTPSPort,
		logger.Named("server"),
	)

	srv := server.New(cfg.Server, handler, bundle, logger.Named("server"))

	logger.Info("print helper starting",
		zap.String("version", version),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("https_port", cfg.Server.HTTPSPort))

	srv.Run(ctx)

	logger.Info("print helper stopped")
}
