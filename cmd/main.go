/*
Package main is the entry point for the relaychat server.

Usage: relaychat HOST [-p PORT]

It loads configuration, initializes the global logging system, builds the credential,
history and registry components, starts the TCP listener, the optional admin HTTP server
and the operator console, and handles SIGINT/SIGTERM with a graceful shutdown.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"relaychat/internal/app/chat"
	"relaychat/internal/app/console"
	"relaychat/internal/app/credential"
	"relaychat/internal/app/db"
	"relaychat/internal/app/history"
	"relaychat/internal/app/storage"
	"relaychat/internal/configs"
	"relaychat/internal/handler"
	"relaychat/internal/pkg/auth/jwt"
	"relaychat/internal/pkg/limiter"
	"relaychat/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables and the command line
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configs.ParseArgs(cfg, os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		}
		os.Exit(2)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("bind", cfg.BindAddress()).
		Str("credential_backend", cfg.CredentialBackend).
		Str("duplicate_login_policy", cfg.DuplicateLoginPolicy).
		Bool("archive", cfg.ArchiveEnabled()).
		Str("admin_addr", cfg.AdminAddr).
		Float64("accept_rate", cfg.AcceptRate).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := newCredentialStore(ctx, cfg)
	defer closeStore()

	var archive storage.ArchiveService
	if cfg.ArchiveEnabled() {
		archive, err = storage.NewArchiveService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize history archive")
		}
	}

	registry := chat.NewRegistry()
	deps := &chat.Deps{
		Registry:          registry,
		Credentials:       credential.NewService(store, cfg.BcryptCost),
		History:           history.NewFileStore(cfg.HistoryDir, archive),
		ReplaceDuplicates: cfg.DuplicateLoginPolicy == configs.DuplicateLoginReplace,
	}

	var admission *limiter.IPRateLimiter
	if cfg.AdmissionEnabled() {
		admission = limiter.NewIPRateLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst)
		defer admission.Stop()
	}

	listener := chat.NewListener(cfg.BindAddress(), deps, cfg.ReadBufferSize, admission)
	if err := listener.Listen(ctx); err != nil {
		logx.Fatal(err, "Failed to bind relay listener")
	}

	go func() {
		if err := listener.Serve(ctx); err != nil {
			logx.Error(err, "Relay listener stopped")
		}
	}()

	var adminServer *http.Server
	var mintToken func() (string, error)
	if cfg.AdminAddr != "" {
		appDeps := handler.NewAppDeps(cfg, deps)
		defer appDeps.Close()

		adminServer = &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      handler.Router(appDeps),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
			BaseContext:  func(_ net.Listener) context.Context { return ctx },
		}

		go func() {
			logx.Info("Admin HTTP server starting", "addr", cfg.AdminAddr)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Fatal(err, "Admin server failed to start")
			}
		}()

		mintToken = func() (string, error) {
			host, _ := os.Hostname()
			return jwt.GenerateToken(&jwt.Payload{ID: host, Role: jwt.RoleOperator}, cfg.AdminJWTSecret, jwt.OperatorTokenExpiration)
		}
	}

	// q on the console closes every socket and exits without waiting for sessions.
	op := console.New(os.Stdin, os.Stdout, func() {
		closed := registry.CloseAll()
		logx.Info("Operator quit.", "closed_sessions", closed)
		os.Exit(0)
	}, mintToken)
	go func() {
		if err := op.Run(); err != nil {
			logx.Error(err, "Console input failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	if err := listener.Close(); err != nil {
		logx.Error(err, "Failed to close relay listener")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "Admin server forced to shutdown")
		}
	}

	registry.CloseAll()

	waited := make(chan struct{})
	go func() {
		listener.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		logx.Warn("Timed out waiting for sessions to finish.")
	}

	logx.Info("Server gracefully stopped.")
}

// newCredentialStore builds the configured credential backend and its cleanup function.
func newCredentialStore(ctx context.Context, cfg *configs.AppConfig) (credential.Store, func()) {
	if cfg.CredentialBackend != configs.CredentialBackendPostgres {
		return credential.NewMemoryStore(), func() {}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to the credential database")
	}
	return credential.NewPostgresStore(pool), pool.Close
}
