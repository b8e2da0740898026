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

	"github.com/joho/godotenv"

	"homebase/api/internal/app"
	"homebase/api/internal/cache"
	"homebase/api/internal/config"
	"homebase/api/internal/media"
	"homebase/api/internal/remote"
	"homebase/api/internal/search"
	"homebase/api/internal/session"
	"homebase/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	var client remote.Client
	switch cfg.RemoteBackend {
	case "postgres":
		pg, err := remote.OpenPG(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer pg.Close()
		client = pg
	default:
		client = remote.NewRestClient(cfg.RemoteURL, cfg.RemoteAPIKey)
	}

	cacheStore, err := cache.NewStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer cacheStore.Close()

	auth := session.NewGoTrueClient(cfg.AuthURL, cfg.AuthAPIKey)
	if rest, ok := client.(*remote.RestClient); ok {
		// authenticated requests carry the user's bearer token
		auth.OnChange(func(sess *session.Session) {
			if sess == nil {
				rest.SetToken("")
				return
			}
			rest.SetToken(sess.Token)
		})
	}
	entityStore := store.NewEntityStore(client)
	gate := session.NewGate(auth, client, cacheStore)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, entityStore)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	var mediaService *media.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaService, err = media.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("photo storage connection failed: %v", err)
		}
	}

	service := app.New(cfg, entityStore, gate, auth, cacheStore, searchService, mediaService)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Homebase API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
