package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docuport/api/internal/app"
	"docuport/api/internal/config"
	"docuport/api/internal/email"
	"docuport/api/internal/notify"
	"docuport/api/internal/store"
	"docuport/api/internal/vault"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.Pool{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var backend vault.Backend
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		log.Printf("Using MinIO artifact storage at %s", cfg.MinioEndpoint)
		backend, err = vault.NewMinioBackend(ctx, vault.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	} else {
		log.Printf("Using local artifact storage at %s", cfg.StorageDir)
		backend, err = vault.NewFSBackend(cfg.StorageDir)
	}
	if err != nil {
		log.Fatalf("artifact storage init failed: %v", err)
	}

	artifactVault, err := vault.New(vault.DeriveKey(cfg.VaultSecret, cfg.VaultSalt), backend)
	if err != nil {
		log.Fatalf("vault init failed: %v", err)
	}

	notifier := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	service := app.New(cfg, dataStore, artifactVault, notifier)

	var dedup notify.Deduper
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisDedup, err := notify.NewRedisDeduper(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisDedup.Close()
		dedup = redisDedup
	} else {
		log.Printf("WARNING: no Redis configured, deadline notifications are at-least-once")
	}

	trigger := notify.New(dataStore, notifier, dedup, cfg.BaseURL)
	go trigger.Run(ctx, cfg.NotifyInterval)
	go service.Invitations().RunSweeper(ctx, cfg.SweepInterval)

	httpServer := app.NewHTTPServer(service)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Docuport API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
