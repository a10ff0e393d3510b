package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/areimx/faceit-ext-chatbot-service/internal/config"
	"github.com/areimx/faceit-ext-chatbot-service/internal/database"
	"github.com/areimx/faceit-ext-chatbot-service/internal/dataplane"
	"github.com/areimx/faceit-ext-chatbot-service/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	cfg := config.Load()

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	service := dataplane.NewService(db)
	oauth := dataplane.NewFaceitOAuth(cfg.OAuthTokenURL, cfg.FaceitClientID, cfg.FaceitClientSecret)
	tokens := dataplane.NewTokenService(db, oauth, cfg.RefreshMinAge, cfg.ForcedRefreshMinAge)
	notifier := dataplane.NewWorkerNotifier(worker.ControlPortBase)

	handler := dataplane.NewHandler(service, tokens, notifier)
	r := dataplane.NewRouter(handler, cfg.DataPlaneAPIKey)

	log.Printf("data-plane starting on :%s", cfg.DataPlanePort)
	if err := r.Run(":" + cfg.DataPlanePort); err != nil {
		log.Fatalf("failed to start data-plane: %v", err)
	}
}
