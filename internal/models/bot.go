package models

import "time"

type Bot struct {
	ID               int       `gorm:"primaryKey" json:"id"`
	Status           string    `gorm:"size:20;not null;default:'active';index" json:"status"`
	Guid             string    `gorm:"size:64;uniqueIndex;not null" json:"guid"`
	Nickname         string    `gorm:"size:100" json:"nickname"`
	RefreshToken     string    `gorm:"size:2048" json:"-"`
	AccessToken      string    `gorm:"size:2048" json:"-"`
	LastTokenRefresh time.Time `json:"last_token_refresh"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

const (
	BotStatusActive   = "active"
	BotStatusInactive = "inactive"
)

type BotEntityRelation struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	EntityGuid string `gorm:"size:64;uniqueIndex;not null" json:"entity_guid"`
	BotID      int    `gorm:"not null;index" json:"bot_id"`
	Bot        Bot    `gorm:"foreignKey:BotID;constraint:OnDelete:CASCADE" json:"-"`
}
