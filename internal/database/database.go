package database

import (
	"fmt"
	"log"

	"github.com/areimx/faceit-ext-chatbot-service/internal/config"
	"github.com/areimx/faceit-ext-chatbot-service/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg *config.Config) *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	log.Println("database connected")
	return db
}

func AutoMigrate(db *gorm.DB) {
	// Add parent_guid to entities if missing (backward compat with the
	// pre-channel schema where every entity was a community).
	db.Exec(`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'entities')
		   AND NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'entities' AND column_name = 'parent_guid')
		THEN
			ALTER TABLE entities ADD COLUMN parent_guid varchar(64);
		END IF;
	END $$;`)

	// Relax NOT NULL on preset_id: an entity may run on custom words only.
	db.Exec(`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'profanity_configs' AND column_name = 'preset_id')
		THEN
			ALTER TABLE profanity_configs ALTER COLUMN preset_id DROP NOT NULL;
		END IF;
	END $$;`)

	err := db.AutoMigrate(
		&models.Bot{},
		&models.BotEntityRelation{},
		&models.Entity{},
		&models.ManagerRelation{},
		&models.ProfanityConfig{},
		&models.ProfanityPreset{},
	)
	if err != nil {
		log.Fatalf("failed to auto-migrate: %v", err)
	}
	log.Println("database migrated")
}
