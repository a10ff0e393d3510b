package moderation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areimx/faceit-ext-chatbot-service/internal/models"
)

type fakeActions struct {
	deletes []string
	mutes   []string
	muteFor []time.Duration
}

func (f *fakeActions) DeleteMessage(messageID, authorJID, mucJID string) error {
	f.deletes = append(f.deletes, messageID)
	return nil
}

func (f *fakeActions) MuteUser(clubID, userGuid string, until time.Time) error {
	f.mutes = append(f.mutes, clubID+"/"+userGuid)
	f.muteFor = append(f.muteFor, time.Until(until))
	return nil
}

type fakeNotifier struct {
	calls []string
}

func (f *fakeNotifier) Notify(webhookURL, message, entityName, authorGuid, body string) {
	f.calls = append(f.calls, webhookURL)
}

func testPipeline(t *testing.T, presetWords map[int][]string) (*Pipeline, *fakeActions, *fakeNotifier) {
	t.Helper()
	actions := &fakeActions{}
	notifier := &fakeNotifier{}
	fetch := func(id int) ([]string, error) {
		words, ok := presetWords[id]
		if !ok {
			return nil, fmt.Errorf("no preset %d", id)
		}
		return words, nil
	}
	p := NewPipeline(NewPresetCache(), fetch, actions, notifier, "muc.test")
	p.SetBotGuid("bot-guid")
	return p, actions, notifier
}

func intPtr(v int) *int { return &v }

func communitySettings(guid string) EntitySettings {
	return EntitySettings{Guid: guid, Name: "Room " + guid, Type: models.EntityTypeCommunity}
}

func msg(entity, author, body string) InboundMessage {
	return InboundMessage{
		EntityGuid: entity,
		AuthorGuid: author,
		AuthorJID:  "club-" + entity + "-general@muc.test/" + author,
		MessageID:  "m-" + body,
		Body:       body,
	}
}

// One violating message produces exactly one delete, one mute, one
// webhook call and at most one reply.
func TestBannedWordSingleDelivery(t *testing.T) {
	p, actions, notifier := testPipeline(t, map[int][]string{7: {"badword"}})

	require.NoError(t, p.Configure(communitySettings("e1"), &ProfanitySettings{
		Active:              true,
		PresetID:            intPtr(7),
		WebhookURL:          "https://discord.test/hook",
		ReplyMessage:        "watch your language",
		MuteDurationSeconds: 120,
	}))

	emissions := p.Process(msg("e1", "u1", "this is b a d w o r d indeed"))

	require.Len(t, emissions, 1)
	assert.Equal(t, "watch your language", emissions[0].Message)
	assert.Len(t, actions.deletes, 1)
	assert.Len(t, actions.mutes, 1)
	assert.Equal(t, []string{"e1/u1"}, actions.mutes)
	assert.Len(t, notifier.calls, 1)
}

func TestBannedWordNoMuteWhenZeroDuration(t *testing.T) {
	p, actions, _ := testPipeline(t, nil)

	require.NoError(t, p.Configure(communitySettings("e1"), &ProfanitySettings{
		Active:      true,
		CustomWords: []string{"badword"},
	}))

	emissions := p.Process(msg("e1", "u1", "badword"))
	assert.Empty(t, emissions, "no reply configured")
	assert.Len(t, actions.deletes, 1)
	assert.Empty(t, actions.mutes)
}

// Managers and the bot itself are never moderated.
func TestExemptAuthors(t *testing.T) {
	p, actions, notifier := testPipeline(t, nil)

	settings := communitySettings("e1")
	settings.ReadOnly = true
	require.NoError(t, p.Configure(settings, &ProfanitySettings{
		Active:       true,
		CustomWords:  []string{"badword"},
		ManagerGuids: []string{"mgr1"},
	}))

	for _, author := range []string{"mgr1", "bot-guid"} {
		emissions := p.Process(msg("e1", author, "badword"))
		assert.Empty(t, emissions)
	}
	assert.Empty(t, actions.deletes)
	assert.Empty(t, actions.mutes)
	assert.Empty(t, notifier.calls)
}

func TestReadOnlyMode(t *testing.T) {
	p, actions, _ := testPipeline(t, nil)

	settings := communitySettings("e2")
	settings.ReadOnly = true
	require.NoError(t, p.Configure(settings, &ProfanitySettings{Active: false, ManagerGuids: []string{"mgr1"}}))

	p.Process(msg("e2", "u1", "hi"))

	require.Len(t, actions.deletes, 1)
	require.Len(t, actions.mutes, 1)
	assert.InDelta(t, readOnlyMuteDuration.Seconds(), actions.muteFor[0].Seconds(), 1.0)

	p.Process(msg("e2", "mgr1", "hi"))
	assert.Len(t, actions.deletes, 1, "manager is exempt from read-only")
}

// The cursor advances before emission, so the first trigger yields the
// second timer, and rotation wraps in order.
func TestTimerRotation(t *testing.T) {
	p, _, _ := testPipeline(t, nil)

	settings := communitySettings("e3")
	settings.TimerCounterMax = 2
	settings.Timers = []models.Timer{
		{Message: "T0"}, {Message: "T1"}, {Message: "T2"},
	}
	require.NoError(t, p.Configure(settings, nil))

	var fired []string
	feed := func(n int) {
		for i := 0; i < n; i++ {
			for _, e := range p.Process(msg("e3", "u1", fmt.Sprintf("chatter %d", i))) {
				fired = append(fired, e.Message)
			}
		}
	}

	feed(3)
	assert.Equal(t, []string{"T1"}, fired)
	feed(3)
	assert.Equal(t, []string{"T1", "T2"}, fired)
	feed(3)
	assert.Equal(t, []string{"T1", "T2", "T0"}, fired)
}

func TestCommandLookup(t *testing.T) {
	p, _, _ := testPipeline(t, nil)

	settings := communitySettings("e4")
	settings.TimerCounterMax = 100
	settings.Commands = map[string]models.Command{
		"discord": {Response: "join us at discord.gg/x", AttachmentID: "att-9"},
	}
	require.NoError(t, p.Configure(settings, nil))

	emissions := p.Process(msg("e4", "u1", "!Discord"))
	require.Len(t, emissions, 1)
	assert.Equal(t, "join us at discord.gg/x", emissions[0].Message)
	assert.Equal(t, "att-9", emissions[0].AttachmentID)

	assert.Empty(t, p.Process(msg("e4", "u1", "!unknown")))
	assert.Empty(t, p.Process(msg("e4", "u1", "discord")), "no bang prefix, no command")
}

// A banned-word hit ends the pipeline: no timer tick side effects leak
// a second emission for the same message.
func TestEarlyReturnOnBannedWord(t *testing.T) {
	p, actions, _ := testPipeline(t, nil)

	settings := communitySettings("e5")
	settings.TimerCounterMax = 0
	settings.Timers = []models.Timer{{Message: "T0"}}
	require.NoError(t, p.Configure(settings, &ProfanitySettings{
		Active:      true,
		CustomWords: []string{"badword"},
	}))

	emissions := p.Process(msg("e5", "u1", "badword"))
	assert.Empty(t, emissions)
	assert.Len(t, actions.deletes, 1)
}

func TestChannelMuteTargetsParentClub(t *testing.T) {
	p, actions, _ := testPipeline(t, nil)

	settings := EntitySettings{Guid: "c1", Name: "Channel", Type: models.EntityTypeChat, ParentGuid: "p1"}
	require.NoError(t, p.Configure(settings, &ProfanitySettings{
		Active:              true,
		CustomWords:         []string{"badword"},
		MuteDurationSeconds: 60,
	}))

	p.Process(msg("c1", "u1", "badword"))
	require.Len(t, actions.mutes, 1)
	assert.Equal(t, "p1/u1", actions.mutes[0])
}

func TestUnknownEntityIgnored(t *testing.T) {
	p, actions, _ := testPipeline(t, nil)
	assert.Empty(t, p.Process(msg("ghost", "u1", "badword")))
	assert.Empty(t, actions.deletes)
}
