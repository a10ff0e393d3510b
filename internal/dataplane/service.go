package dataplane

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/areimx/faceit-ext-chatbot-service/internal/dataplane/client"
	"github.com/areimx/faceit-ext-chatbot-service/internal/models"
	"github.com/areimx/faceit-ext-chatbot-service/internal/moderation"
)

var ErrNotFound = errors.New("not found")

// Service owns the relational store. All dynamic JSON blobs are
// validated here so workers only ever see well-formed values.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) ActiveBots() ([]client.ActiveBot, error) {
	var bots []models.Bot
	if err := s.db.Where("status = ?", models.BotStatusActive).Order("id").Find(&bots).Error; err != nil {
		return nil, err
	}
	out := make([]client.ActiveBot, 0, len(bots))
	for _, b := range bots {
		out = append(out, client.ActiveBot{BotID: b.ID})
	}
	return out, nil
}

func (s *Service) BotByID(id int) (*models.Bot, error) {
	var bot models.Bot
	err := s.db.First(&bot, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

// BotEntities returns the active entities owned by a bot, keyed by
// entity guid.
func (s *Service) BotEntities(botID int) (map[string]client.EntityConfig, error) {
	var relations []models.BotEntityRelation
	if err := s.db.Where("bot_id = ?", botID).Find(&relations).Error; err != nil {
		return nil, err
	}

	out := make(map[string]client.EntityConfig, len(relations))
	for _, rel := range relations {
		cfg, err := s.EntityData(rel.EntityGuid)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[cfg.Guid] = *cfg
	}
	return out, nil
}

func (s *Service) EntityData(guid string) (*client.EntityConfig, error) {
	var entity models.Entity
	err := s.db.First(&entity, "guid = ? AND status = ?", guid, models.EntityStatusActive).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg := &client.EntityConfig{
		Guid:            entity.Guid,
		Name:            entity.Name,
		Type:            entity.Type,
		Commands:        decodeCommands(entity.Guid, entity.Commands),
		Timers:          decodeTimers(entity.Guid, entity.Timers),
		TimerCounterMax: entity.TimerCounterMax,
		ReadOnly:        entity.ReadOnly,
		WelcomeMessage:  entity.WelcomeMessage,
	}
	if entity.ParentGuid != nil {
		cfg.ParentGuid = *entity.ParentGuid
	}
	return cfg, nil
}

// EntityOwner resolves the bot owning an entity.
func (s *Service) EntityOwner(guid string) (int, error) {
	var rel models.BotEntityRelation
	err := s.db.First(&rel, "entity_guid = ?", guid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return rel.BotID, nil
}

func (s *Service) SetEntityStatus(guid, status string) error {
	if status != models.EntityStatusActive && status != models.EntityStatusInactive {
		return fmt.Errorf("invalid status %q", status)
	}
	res := s.db.Model(&models.Entity{}).Where("guid = ?", guid).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Preset(id int) (*client.Preset, error) {
	var preset models.ProfanityPreset
	err := s.db.First(&preset, "id = ? AND active = ?", id, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client.Preset{
		PresetID:   preset.ID,
		PresetName: preset.Name,
		Language:   preset.Language,
		Words:      decodeWords(fmt.Sprintf("preset %d", preset.ID), preset.Words),
	}, nil
}

// ProfanityConfig returns an entity's filter config extended with its
// manager exemptions.
func (s *Service) ProfanityConfig(entityGuid string) (*client.ProfanityConfig, error) {
	var cfg models.ProfanityConfig
	err := s.db.First(&cfg, "entity_guid = ?", entityGuid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var managers []models.ManagerRelation
	if err := s.db.Where("entity_guid = ?", entityGuid).Find(&managers).Error; err != nil {
		return nil, err
	}
	guids := make([]string, 0, len(managers))
	for _, m := range managers {
		guids = append(guids, m.UserGuid)
	}

	return &client.ProfanityConfig{
		EntityGuid:          cfg.EntityGuid,
		PresetID:            cfg.PresetID,
		CustomWords:         decodeWords("entity "+entityGuid, cfg.CustomWords),
		WebhookURL:          cfg.WebhookURL,
		WebhookMessage:      cfg.WebhookMessage,
		ReplyMessage:        cfg.ReplyMessage,
		MuteDurationSeconds: cfg.MuteDurationSeconds,
		Active:              cfg.Active,
		ManagerGuids:        guids,
	}, nil
}

func decodeCommands(entityGuid string, raw json.RawMessage) map[string]models.Command {
	if len(raw) == 0 {
		return map[string]models.Command{}
	}
	var out map[string]models.Command
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Printf("dataplane: malformed commands blob for %s: %v", entityGuid, err)
		return map[string]models.Command{}
	}
	if out == nil {
		out = map[string]models.Command{}
	}
	return out
}

func decodeTimers(entityGuid string, raw json.RawMessage) []models.Timer {
	if len(raw) == 0 {
		return []models.Timer{}
	}
	var out []models.Timer
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Printf("dataplane: malformed timers blob for %s: %v", entityGuid, err)
		return []models.Timer{}
	}
	return out
}

// decodeWords parses a word blob and drops entries outside the allowed
// word shape, so nothing regex-hostile ever reaches a worker.
func decodeWords(owner string, raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var words []string
	if err := json.Unmarshal(raw, &words); err != nil {
		log.Printf("dataplane: malformed word blob for %s: %v", owner, err)
		return []string{}
	}
	return moderation.FilterWords(words)
}
