package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/areimx/faceit-ext-chatbot-service/internal/config"
	"github.com/areimx/faceit-ext-chatbot-service/internal/dataplane/client"
	"github.com/areimx/faceit-ext-chatbot-service/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	cfg := config.Load()

	botID, err := strconv.Atoi(os.Getenv("BOT_ID"))
	if err != nil || botID <= 0 {
		log.Fatalf("BOT_ID missing or invalid")
	}

	dp := client.New(cfg.DataPlaneURL, cfg.DataPlaneAPIKey)
	w := worker.New(botID, cfg, dp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("worker %d: %s received, draining", botID, sig)
		w.Stop()
		cancel()
	}()

	if err := w.Run(ctx); err != nil {
		if errors.Is(err, worker.ErrCircuitOpen) || errors.Is(err, worker.ErrStartupBudget) {
			log.Printf("worker %d: %v", botID, err)
			os.Exit(1)
		}
		log.Fatalf("worker %d: %v", botID, err)
	}
}
