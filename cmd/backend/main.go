package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lesson-library/internal/blob"
	"lesson-library/internal/catalog"
	"lesson-library/internal/config"
	"lesson-library/internal/db"
	"lesson-library/internal/logx"
	"lesson-library/internal/server"
	"lesson-library/internal/session"
	"lesson-library/internal/store"
	"lesson-library/internal/store/jsonfile"
	"lesson-library/internal/store/postgres"
	"lesson-library/internal/teachers"

	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logx.Warn("could not read .env", logx.Fields{"error": err.Error()})
	}

	cfg, err := config.Load(getenvDefault("LIBRARY_CONFIG", ""))
	if err != nil {
		logx.Error("config_load_failed", nil, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logx.Error("config_invalid", nil, err)
		os.Exit(1)
	}
	for _, w := range cfg.Warnings() {
		logx.Warn("config_warning", logx.Fields{"detail": w})
	}

	build := server.BuildInfo{
		Version: getenvDefault("LIBRARY_VERSION", "dev"),
		Commit:  getenvDefault("LIBRARY_COMMIT", "unknown"),
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		logx.Error("store_open_failed", logx.Fields{"store": cfg.Store}, err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		logx.Error("blob_open_failed", logx.Fields{"blob": cfg.Blob}, err)
		os.Exit(1)
	}

	creds := teachers.NewCredentials(st)
	mailer := server.NewEmailService(cfg.SMTP, cfg.AdminEmail, cfg.BaseURL)
	workflow := teachers.NewWorkflow(st, creds, mailer)
	cat := catalog.New(st)
	gateway := catalog.NewGateway(cat, blobs, cfg.AllowedExtensions)

	sessions, err := session.New(session.Options{
		Dir:           cfg.SessionDir,
		Secret:        cfg.SessionSecret,
		TTL:           cfg.SessionTTL,
		AdminPassword: cfg.AdminPassword,
		Secure:        strings.HasPrefix(cfg.BaseURL, "https://"),
	}, creds)
	if err != nil {
		logx.Error("session_init_failed", nil, err)
		os.Exit(1)
	}
	go sessions.StartSweeper(ctx, time.Hour)

	srv, err := server.New(server.Config{
		Addr:           cfg.Addr,
		Build:          build,
		Store:          st,
		Workflow:       workflow,
		Credentials:    creds,
		Catalog:        cat,
		Gateway:        gateway,
		Sessions:       sessions,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		logx.Error("server_init_failed", nil, err)
		os.Exit(1)
	}

	// Start the HTTP server in a background goroutine so we can wait for signals.
	errCh := make(chan error, 1)
	go func() {
		logx.Info("starting", logx.Fields{
			"addr": cfg.Addr, "store": cfg.Store, "blob": cfg.Blob,
			"version": build.Version, "commit": build.Commit,
		})
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logx.Info("shutting_down", logx.Fields{"signal": sig.String()})
		stop()
		// Give in-flight requests 5 seconds to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logx.Error("shutdown_error", nil, err)
			os.Exit(1)
		}
		logx.Info("shutdown_complete", nil)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error("server_error", nil, err)
			os.Exit(1)
		}
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		conn, err := db.OpenDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		logx.Info("running_migrations", nil)
		if err := db.RunMigrations(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		logx.Info("migrations_complete", nil)
		return postgres.New(conn), nil
	default:
		return jsonfile.New(cfg.DataDir)
	}
}

func openBlobs(ctx context.Context, cfg config.Config) (blob.Storage, error) {
	switch cfg.Blob {
	case config.BlobMinio:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return blob.NewMinio(ctx, blob.MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
		})
	default:
		return blob.NewLocal(cfg.UploadDir)
	}
}

// getenvDefault reads an environment variable and returns a default value if not set.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
