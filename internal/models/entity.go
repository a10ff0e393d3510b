package models

import (
	"encoding/json"
	"time"
)

type Entity struct {
	Guid            string          `gorm:"primaryKey;size:64" json:"guid"`
	Type            string          `gorm:"size:20;not null;default:'community'" json:"type"`
	ParentGuid      *string         `gorm:"size:64" json:"parent_guid,omitempty"`
	Status          string          `gorm:"size:20;not null;default:'active';index" json:"status"`
	Name            string          `gorm:"size:255" json:"name"`
	Commands        json.RawMessage `gorm:"type:jsonb" json:"commands,omitempty"`
	Timers          json.RawMessage `gorm:"type:jsonb" json:"timers,omitempty"`
	TimerCounterMax int             `gorm:"not null;default:0" json:"timer_counter_max"`
	ReadOnly        bool            `gorm:"not null;default:false" json:"read_only"`
	WelcomeMessage  string          `gorm:"size:2000" json:"welcome_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

const (
	EntityTypeCommunity = "community"
	EntityTypeChat      = "chat"
	EntityTypeIHL       = "ihl"

	EntityStatusActive   = "active"
	EntityStatusInactive = "inactive"
)

// Command is one entry of the commands blob: "!trigger" -> response.
type Command struct {
	Response     string `json:"response"`
	AttachmentID string `json:"attachment_id,omitempty"`
}

// Timer is one entry of the ordered timers blob.
type Timer struct {
	Message      string `json:"message"`
	AttachmentID string `json:"attachment_id,omitempty"`
}

type ManagerRelation struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	EntityGuid string `gorm:"size:64;not null;index:idx_manager_entity_user,unique" json:"entity_guid"`
	UserGuid   string `gorm:"size:64;not null;index:idx_manager_entity_user,unique" json:"user_guid"`
}
