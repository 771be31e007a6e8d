package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"vaultgate.org/internal/authrequest"
	"vaultgate.org/internal/config"
	"vaultgate.org/internal/device"
	"vaultgate.org/internal/httpapi"
	"vaultgate.org/internal/obs"
	"vaultgate.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Connect to Postgres when a DSN is configured; otherwise the service
	// runs on in-memory stores, which is enough for local development.
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		authRequestStore authrequest.Store
		deviceStore      device.Store
	)
	if db != nil {
		authRequestStore = authrequest.NewPostgres(db)
		deviceStore = device.NewPostgres(db)
	} else {
		authRequestStore = authrequest.NewInMemory()
		deviceStore = device.NewInMemory()
	}

	authRequests := authrequest.NewService(authRequestStore, authrequest.WithTTL(cfg.RequestTTL))
	devices := device.NewService(deviceStore)
	events := stream.New()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, authRequests, devices, events)
	api.SetRateLimit(cfg.RateLimitBurst, cfg.RateLimitPerSec)
	api.SetMaxBodyBytes(cfg.MaxBodyBytes)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting vaultgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
