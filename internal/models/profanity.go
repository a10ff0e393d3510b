package models

import (
	"encoding/json"
	"time"
)

type ProfanityConfig struct {
	EntityGuid          string          `gorm:"primaryKey;size:64" json:"entity_guid"`
	PresetID            *int            `gorm:"index" json:"preset_id,omitempty"`
	CustomWords         json.RawMessage `gorm:"type:jsonb" json:"custom_words,omitempty"`
	WebhookURL          string          `gorm:"size:500" json:"webhook_url,omitempty"`
	WebhookMessage      string          `gorm:"size:2000" json:"webhook_message,omitempty"`
	ReplyMessage        string          `gorm:"size:2000" json:"reply_message,omitempty"`
	MuteDurationSeconds int             `gorm:"not null;default:0" json:"mute_duration_seconds"`
	Active              bool            `gorm:"not null;default:true" json:"active"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type ProfanityPreset struct {
	ID        int             `gorm:"primaryKey" json:"preset_id"`
	Name      string          `gorm:"size:100;not null" json:"preset_name"`
	Language  string          `gorm:"size:10;not null;default:'en'" json:"language"`
	Words     json.RawMessage `gorm:"type:jsonb" json:"words"`
	Active    bool            `gorm:"not null;default:true" json:"active"`
	UpdatedAt time.Time       `json:"updated_at"`
}
