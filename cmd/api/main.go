package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pelayanan.org/internal/audit"
	"pelayanan.org/internal/auth"
	"pelayanan.org/internal/httpapi"
	"pelayanan.org/internal/ledger"
	"pelayanan.org/internal/migrate"
	"pelayanan.org/internal/obs"
	"pelayanan.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "unknown"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	audit.SetLogger(logger)

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := os.Getenv("PELAYANAN_AUTH_SECRET")
	if secret == "" {
		logger.Fatal("PELAYANAN_AUTH_SECRET is required")
	}
	dsn := os.Getenv("PELAYANAN_PG_DSN")
	if dsn == "" {
		logger.Fatal("PELAYANAN_PG_DSN is required")
	}

	if err := migrate.Up(ctx, dsn); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	principals, err := pg.Open(dsn)
	if err != nil {
		logger.Fatal("open principal store", zap.Error(err))
	}
	defer func() { _ = principals.Close() }()

	ledgerDSN := os.Getenv("PELAYANAN_LEDGER_PG_DSN")
	if ledgerDSN == "" {
		ledgerDSN = dsn
	}
	led, err := ledger.Open(ctx, ledgerDSN)
	if err != nil {
		logger.Fatal("open revocation ledger", zap.Error(err))
	}
	defer led.Close()

	codec, err := auth.NewCodec(secret,
		auth.WithOfflineKeys(
			os.Getenv("PELAYANAN_OFFLINE_PRIVATE_KEY"),
			os.Getenv("PELAYANAN_OFFLINE_PUBLIC_KEY"),
		),
	)
	if err != nil {
		logger.Fatal("configure codec", zap.Error(err))
	}
	if !codec.OfflineEnabled() {
		logger.Info("offline tokens disabled: no signing key configured")
	}

	svc := auth.NewService(principals, led, codec, auth.WithLogger(logger))

	api := httpapi.New(httpapi.ReadyProbe{DB: principals.DB(), Ledger: led}, version, svc, principals, logger)
	if origins := os.Getenv("PELAYANAN_CORS_ORIGIN"); origins != "" {
		api.SetCORSOrigins(strings.Split(origins, ","))
	}

	addr := os.Getenv("PELAYANAN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting pelayanan-api", zap.String("version", version), zap.String("addr", addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
