package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/areimx/faceit-ext-chatbot-service/internal/config"
	"github.com/areimx/faceit-ext-chatbot-service/internal/dataplane/client"
	"github.com/areimx/faceit-ext-chatbot-service/internal/manager"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	cfg := config.Load()

	dp := client.New(cfg.DataPlaneURL, cfg.DataPlaneAPIKey)
	m := manager.New(manager.ManagerConfig{WorkerBinary: cfg.WorkerBinary}, dp)

	r := manager.NewRouter(m)
	srv := &http.Server{Addr: ":" + cfg.ManagerPort, Handler: r}
	go func() {
		log.Printf("[Manager] health surface on :%s", cfg.ManagerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Manager] health surface: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		sig := <-sigCh
		log.Printf("[Manager] %s received, shutting down", sig)
		m.Stop()
		cancel()
	}()

	err := m.Run(ctx)
	srv.Close()
	if err != nil {
		log.Fatalf("[Manager] %v", err)
	}
	log.Println("[Manager] shutdown complete")
}
