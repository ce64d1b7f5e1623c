package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ai-feed-curator/internal/bootstrap"
	"ai-feed-curator/internal/config"
	"ai-feed-curator/internal/server"
	"ai-feed-curator/pkg/store"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Persistent Store
	boltStore, err := store.NewBoltStore(cfg.App.StorePath)
	if err != nil {
		log.Panicf("Unable to open store: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(boltStore, cfg)

	// 4. Start Background Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("Background: Starting Curation Service...")
	if err := container.CurationService.Consume(ctx); err != nil {
		log.Panicf("Curation consumer error: %v", err)
	}
	if err := container.WebSocketHub.Run(ctx); err != nil {
		log.Panicf("WebSocket hub error: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		if err := srv.Run(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	cancel()
	if err := srv.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := container.Bus.Close(); err != nil {
		log.Printf("Bus close error: %v", err)
	}
	if err := boltStore.Close(); err != nil {
		log.Printf("Store close error: %v", err)
	}
	_ = container.Logger.Sync()
}
