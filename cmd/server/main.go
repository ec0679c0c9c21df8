package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/geotrail/trackrec-go/internal/api"
	"github.com/geotrail/trackrec-go/internal/blobstore"
	"github.com/geotrail/trackrec-go/internal/config"
	"github.com/geotrail/trackrec-go/internal/handler"
	"github.com/geotrail/trackrec-go/internal/location"
	"github.com/geotrail/trackrec-go/internal/repository"
	"github.com/geotrail/trackrec-go/internal/service"
	"github.com/geotrail/trackrec-go/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize store:", err)
	}
	defer store.Close()

	repo := repository.NewTrackRepository(store)
	trackService := service.NewTrackService(repo)

	// The HTTP ingestion endpoint publishes into the foreground source;
	// the MQTT topic, when configured, feeds the background stream.
	foreground := location.NewChannelSource()
	var background location.Source
	if cfg.MQTTBrokerURL != "" {
		mqttSource, err := location.NewMQTTSource(location.MQTTOptions{
			BrokerURL: cfg.MQTTBrokerURL,
			Topic:     cfg.MQTTTopic,
		})
		if err != nil {
			log.Printf("Background stream disabled: %v", err)
		} else {
			defer mqttSource.Close()
			background = mqttSource
		}
	}

	recSession := session.New(repo, foreground, background, session.Options{
		AutosaveInterval: cfg.AutosaveInterval,
		FixTimeout:       cfg.FixTimeout,
	})
	if err := recSession.Restore(context.Background()); err != nil {
		log.Printf("Session restore incomplete: %v", err)
	}

	trackHandler := handler.NewTrackHandler(trackService)
	recordingHandler := handler.NewRecordingHandler(recSession, trackService, foreground)
	router := api.SetupRouter(cfg, trackHandler, recordingHandler)

	srv := &http.Server{Addr: cfg.Port, Handler: router}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Flush the in-progress recording before the store goes away; the
	// session marker survives so a restart can resume into the same track.
	recSession.Flush(ctx)

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

func openStore(cfg *config.Config) (blobstore.Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		return blobstore.OpenRedis(blobstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return blobstore.OpenSQLite(cfg.DBPath)
	}
}
