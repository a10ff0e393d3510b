package dataplane

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/areimx/faceit-ext-chatbot-service/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Bot{},
		&models.BotEntityRelation{},
		&models.Entity{},
		&models.ManagerRelation{},
		&models.ProfanityConfig{},
		&models.ProfanityPreset{},
	))
	return db
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func seedEntity(t *testing.T, db *gorm.DB, entity models.Entity) {
	t.Helper()
	require.NoError(t, db.Create(&entity).Error)
}

func TestEntityDataDecodesBlobs(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	seedEntity(t, db, models.Entity{
		Guid:            "e1",
		Type:            models.EntityTypeChat,
		ParentGuid:      strPtr("p1"),
		Status:          models.EntityStatusActive,
		Name:            "Channel One",
		Commands:        json.RawMessage(`{"help":{"response":"use !discord"}}`),
		Timers:          json.RawMessage(`[{"message":"T0"},{"message":"T1","attachment_id":"a1"}]`),
		TimerCounterMax: 5,
		ReadOnly:        true,
		WelcomeMessage:  "hi",
	})

	cfg, err := svc.EntityData("e1")
	require.NoError(t, err)
	assert.Equal(t, "p1", cfg.ParentGuid)
	assert.Equal(t, "use !discord", cfg.Commands["help"].Response)
	require.Len(t, cfg.Timers, 2)
	assert.Equal(t, "a1", cfg.Timers[1].AttachmentID)
	assert.True(t, cfg.ReadOnly)
}

func TestEntityDataMalformedBlobsFallBack(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	seedEntity(t, db, models.Entity{
		Guid:     "e2",
		Type:     models.EntityTypeCommunity,
		Status:   models.EntityStatusActive,
		Commands: json.RawMessage(`"not a map"`),
		Timers:   json.RawMessage(`{"not":"a list"}`),
	})

	cfg, err := svc.EntityData("e2")
	require.NoError(t, err)
	assert.Empty(t, cfg.Commands)
	assert.Empty(t, cfg.Timers)
}

func TestEntityDataAbsentAndInactive(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	_, err := svc.EntityData("ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	seedEntity(t, db, models.Entity{Guid: "e3", Type: models.EntityTypeCommunity, Status: models.EntityStatusInactive})
	_, err = svc.EntityData("e3")
	assert.ErrorIs(t, err, ErrNotFound, "inactive entities are invisible")
}

func TestBotEntitiesSkipsInactive(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	require.NoError(t, db.Create(&models.Bot{ID: 1, Status: models.BotStatusActive, Guid: "bot-1"}).Error)
	seedEntity(t, db, models.Entity{Guid: "live", Type: models.EntityTypeCommunity, Status: models.EntityStatusActive})
	seedEntity(t, db, models.Entity{Guid: "dead", Type: models.EntityTypeCommunity, Status: models.EntityStatusInactive})
	require.NoError(t, db.Create(&models.BotEntityRelation{EntityGuid: "live", BotID: 1}).Error)
	require.NoError(t, db.Create(&models.BotEntityRelation{EntityGuid: "dead", BotID: 1}).Error)

	entities, err := svc.BotEntities(1)
	require.NoError(t, err)
	assert.Contains(t, entities, "live")
	assert.NotContains(t, entities, "dead")
}

func TestSetEntityStatus(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	seedEntity(t, db, models.Entity{Guid: "e1", Type: models.EntityTypeCommunity, Status: models.EntityStatusActive})

	require.NoError(t, svc.SetEntityStatus("e1", models.EntityStatusInactive))

	var entity models.Entity
	require.NoError(t, db.First(&entity, "guid = ?", "e1").Error)
	assert.Equal(t, models.EntityStatusInactive, entity.Status)

	assert.Error(t, svc.SetEntityStatus("e1", "bogus"))
	assert.ErrorIs(t, svc.SetEntityStatus("ghost", models.EntityStatusActive), ErrNotFound)
}

func TestProfanityConfigWithManagers(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	require.NoError(t, db.Create(&models.ProfanityConfig{
		EntityGuid:          "e1",
		PresetID:            intPtr(7),
		CustomWords:         json.RawMessage(`["Custom", "bad(word", "ok"]`),
		MuteDurationSeconds: 60,
		Active:              true,
	}).Error)
	require.NoError(t, db.Create(&models.ManagerRelation{EntityGuid: "e1", UserGuid: "mgr1"}).Error)
	require.NoError(t, db.Create(&models.ManagerRelation{EntityGuid: "e1", UserGuid: "mgr2"}).Error)

	cfg, err := svc.ProfanityConfig("e1")
	require.NoError(t, err)
	require.NotNil(t, cfg.PresetID)
	assert.Equal(t, 7, *cfg.PresetID)
	assert.Equal(t, []string{"custom", "ok"}, cfg.CustomWords, "malformed words are dropped at the boundary")
	assert.ElementsMatch(t, []string{"mgr1", "mgr2"}, cfg.ManagerGuids)
}

func TestPresetLookup(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	require.NoError(t, db.Create(&models.ProfanityPreset{
		ID:       3,
		Name:     "English",
		Language: "en",
		Words:    json.RawMessage(`["one","two"]`),
		Active:   true,
	}).Error)
	require.NoError(t, db.Create(&models.ProfanityPreset{
		ID:     4,
		Name:   "Disabled",
		Words:  json.RawMessage(`["x"]`),
		Active: false,
	}).Error)
	// gorm writes the column default for a zero-valued field that has a
	// default tag, so the inactive flag is set with an explicit update.
	require.NoError(t, db.Model(&models.ProfanityPreset{}).Where("id = ?", 4).Update("active", false).Error)

	preset, err := svc.Preset(3)
	require.NoError(t, err)
	assert.Equal(t, "English", preset.PresetName)
	assert.Equal(t, []string{"one", "two"}, preset.Words)

	_, err = svc.Preset(4)
	assert.ErrorIs(t, err, ErrNotFound, "inactive presets are not served")
}

func TestActiveBotsOrdered(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	for _, b := range []models.Bot{
		{ID: 3, Status: models.BotStatusActive, Guid: "g3"},
		{ID: 1, Status: models.BotStatusActive, Guid: "g1"},
		{ID: 2, Status: models.BotStatusInactive, Guid: "g2"},
	} {
		require.NoError(t, db.Create(&b).Error)
	}

	bots, err := svc.ActiveBots()
	require.NoError(t, err)
	require.Len(t, bots, 2)
	assert.Equal(t, 1, bots[0].BotID)
	assert.Equal(t, 3, bots[1].BotID)
}

func TestTokenRefreshThrottle(t *testing.T) {
	db := testDB(t)

	refreshes := 0
	oauth := oauthFunc(func(refreshToken string) (string, string, error) {
		refreshes++
		return "fresh-access", "fresh-refresh", nil
	})

	tokens := NewTokenService(db, oauth, 30*time.Minute, time.Minute)
	base := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	now := base
	tokens.now = func() time.Time { return now }

	bot := &models.Bot{ID: 1, Status: models.BotStatusActive, Guid: "g1", RefreshToken: "rt", LastTokenRefresh: base.Add(-2 * time.Hour)}
	require.NoError(t, db.Create(bot).Error)

	// Stale token: a plain call refreshes.
	require.NoError(t, tokens.MaybeRefresh(bot, false))
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, "fresh-access", bot.AccessToken)

	// Within the 30 minute window nothing happens, forced or not.
	now = now.Add(10 * time.Minute)
	require.NoError(t, tokens.MaybeRefresh(bot, false))
	assert.Equal(t, 1, refreshes)

	now = now.Add(-10*time.Minute + 30*time.Second)
	require.NoError(t, tokens.MaybeRefresh(bot, true))
	assert.Equal(t, 1, refreshes, "forced refresh throttled under a minute")

	// Past the forced threshold a forced call goes through.
	now = base.Add(2 * time.Minute)
	require.NoError(t, tokens.MaybeRefresh(bot, true))
	assert.Equal(t, 2, refreshes)

	// A non-forced call still waits for the 30 minute window.
	now = now.Add(5 * time.Minute)
	require.NoError(t, tokens.MaybeRefresh(bot, false))
	assert.Equal(t, 2, refreshes)
}

type oauthFunc func(refreshToken string) (string, string, error)

func (f oauthFunc) Refresh(refreshToken string) (string, string, error) { return f(refreshToken) }
