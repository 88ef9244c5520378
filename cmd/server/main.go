package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"videoportal-backend-go/internal/config"
	"videoportal-backend-go/internal/db"
	httpapi "videoportal-backend-go/internal/http"
	"videoportal-backend-go/internal/migrations"
	"videoportal-backend-go/internal/services"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cleanupLogs, err := setupLogger(cfg.LogDir, cfg.LogRetentionDays)
	if err != nil {
		log.Printf("logger setup failed: %v", err)
	} else {
		defer cleanupLogs()
	}

	database, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()
	if err := migrations.Apply(database); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	if err := os.MkdirAll(cfg.MediaStoragePath, 0o755); err != nil {
		log.Fatalf("media storage: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	hub := services.NewMetricsHub()
	server := httpapi.NewServer(database, cfg, hub, newMailer(cfg))
	maintenance := &services.Maintenance{
		DB:            database,
		Hub:           hub,
		DiskPath:      cfg.MetricsDiskPath,
		SampleEvery:   time.Duration(cfg.MetricsSampleSeconds) * time.Second,
		SweepSchedule: cfg.PendingSweepSchedule,
		PendingMaxAge: time.Duration(cfg.ActivationTTLSeconds) * time.Second,
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return maintenance.Run(gctx)
	})
	g.Go(func() error {
		log.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctxShutdown)
	})
	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}
	log.Printf("shutdown complete")
}

func newMailer(cfg config.Config) services.Mailer {
	if cfg.SMTPHost == "" {
		log.Printf("SMTP_HOST not set, mail is written to the log")
		return services.LogMailer{}
	}
	return services.SMTPMailer{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}
}
