// Package main запускает сервис коротких ссылок: HTTP-переходы, API создания ссылок и gRPC.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tempizhere/redirector/internal/analytics"
	"github.com/tempizhere/redirector/internal/app"
	"github.com/tempizhere/redirector/internal/classifier"
	"github.com/tempizhere/redirector/internal/config"
	grpcserver "github.com/tempizhere/redirector/internal/grpc"
	applog "github.com/tempizhere/redirector/internal/log"
	"github.com/tempizhere/redirector/internal/middleware"
	"github.com/tempizhere/redirector/internal/ratelimit"
	"github.com/tempizhere/redirector/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		stdlog.Fatalf("failed to load config: %v", err)
	}

	logger, err := applog.NewLogger(cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		stop()
		_ = logger.Sync()
		stdlog.Fatal(err)
	}
}

// run собирает зависимости, запускает серверы и останавливает их после отмены ctx
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, closeStore, err := app.NewStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close storage", zap.Error(err))
		}
	}()

	rateStore, closeRate, err := app.NewRateStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRate(); err != nil {
			logger.Warn("Failed to close rate limit store", zap.Error(err))
		}
	}()

	secret := cfg.FingerprintSecret
	if secret == "" {
		if secret, err = randomSecret(); err != nil {
			return err
		}
		logger.Warn("Fingerprint secret is not configured, visitor hashes will change after restart")
	}

	svc := service.NewService(store, cfg.BaseURL, cfg.RootDomain, logger)
	cls := classifier.New(cfg.RootDomain, cfg.DevHosts)
	limiter := ratelimit.NewLimiter(rateStore, cfg.RateLimitMax, logger)
	dispatcher := analytics.NewDispatcher(analytics.NewRecorder(store, secret), cfg.ClickTimeout, logger)

	routerCfg := app.RouterConfig{
		TrustedSubnet:  cfg.TrustedSubnet,
		ClientIPHeader: cfg.ClientIPHeader,
		JWTSecret:      cfg.JWTSecret,
	}
	routerCfg.Throttle = newThrottle(cfg, logger)
	if cfg.JWTSecret == "" {
		logger.Warn("JWT secret is not configured, all requests are anonymous")
	}

	a := app.NewApp(svc, cls, limiter, dispatcher, cfg.CountryHeader, logger)
	httpServer := &http.Server{
		Addr:              cfg.RunAddr,
		Handler:           app.NewRouter(a, routerCfg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)

	listener, err := net.Listen("tcp", cfg.RunAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.RunAddr, err)
	}
	go func() {
		logger.Info("Starting HTTP server", zap.String("address", listener.Addr().String()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = httpServer.Close()
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
		grpcServer = grpcserver.NewGRPCServer(
			grpcserver.NewServer(svc, cls, limiter, dispatcher, logger),
			cfg.JWTSecret,
			logger,
		)
		go func() {
			logger.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
			if err := grpcServer.Serve(grpcListener); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Pending clicks were not recorded before shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
	return runErr
}

// newThrottle создаёт ограничитель переходов или возвращает nil, если он отключён
func newThrottle(cfg *config.Config, logger *zap.Logger) *middleware.Throttle {
	if cfg.RedirectRPS <= 0 {
		return nil
	}
	if cfg.TrustedSubnet == "" {
		logger.Warn("Redirect throttle is keyed by RemoteAddr because trusted subnet is not configured; behind a proxy all clients share one bucket",
			zap.Float64("redirect_rps", cfg.RedirectRPS),
			zap.Int("redirect_burst", cfg.RedirectBurst))
	}
	return middleware.NewThrottle(cfg.RedirectRPS, cfg.RedirectBurst, logger)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate fingerprint secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
