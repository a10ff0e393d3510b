package moderation

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/areimx/faceit-ext-chatbot-service/internal/models"
	"github.com/areimx/faceit-ext-chatbot-service/internal/xmpp"
)

// readOnlyMuteDuration is applied to non-exempt authors posting into a
// read-only room. Not per-entity configurable; replace with a config
// field if that ever changes.
const readOnlyMuteDuration = 10 * time.Second

// EntitySettings is the per-room configuration the pipeline acts on.
type EntitySettings struct {
	Guid            string
	Name            string
	Type            string
	ParentGuid      string
	ReadOnly        bool
	TimerCounterMax int
	Timers          []models.Timer
	Commands        map[string]models.Command
}

// ProfanitySettings mirrors the entity's profanity-filter config plus
// its manager exemptions.
type ProfanitySettings struct {
	Active              bool
	PresetID            *int
	CustomWords         []string
	WebhookURL          string
	WebhookMessage      string
	ReplyMessage        string
	MuteDurationSeconds int
	ManagerGuids        []string
}

// InboundMessage is one groupchat message after classification.
type InboundMessage struct {
	EntityGuid string
	AuthorGuid string
	AuthorJID  string
	MessageID  string
	Body       string
}

// Emission is a message the worker should queue to the room.
type Emission struct {
	EntityGuid   string
	Message      string
	AttachmentID string
}

type entityState struct {
	settings EntitySettings
	prof     *ProfanitySettings
	managers map[string]bool
	match    *matcher
	counter  int
	cursor   int
}

// Pipeline runs the moderation stages for every entity a worker owns.
// All mutation goes through one mutex; the worker is the only caller.
type Pipeline struct {
	mu       sync.Mutex
	botGuid  string
	entities map[string]*entityState

	presets     *PresetCache
	fetchPreset func(int) ([]string, error)
	actions     ActionAPI
	notifier    Notifier
	mucDomain   string
}

func NewPipeline(presets *PresetCache, fetchPreset func(int) ([]string, error), actions ActionAPI, notifier Notifier, mucDomain string) *Pipeline {
	return &Pipeline{
		entities:    make(map[string]*entityState),
		presets:     presets,
		fetchPreset: fetchPreset,
		actions:     actions,
		notifier:    notifier,
		mucDomain:   mucDomain,
	}
}

// SetBotGuid records the authenticated account so the bot's own
// messages are exempt.
func (p *Pipeline) SetBotGuid(guid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.botGuid = guid
}

// Configure installs or replaces the moderation state of one entity.
// Preset references are moved, never leaked: a changed preset id
// acquires the new one first and then releases the old.
func (p *Pipeline) Configure(settings EntitySettings, prof *ProfanitySettings) error {
	p.mu.Lock()
	old := p.entities[settings.Guid]
	p.mu.Unlock()

	var oldPreset *int
	if old != nil && old.prof != nil {
		oldPreset = old.prof.PresetID
	}

	var presetWords []string
	if prof != nil && prof.PresetID != nil {
		if oldPreset != nil && *oldPreset == *prof.PresetID {
			// Same preset; the reference is carried over.
			words, ok := p.presets.Words(*prof.PresetID)
			if !ok {
				var err error
				words, err = p.presets.Acquire(*prof.PresetID, p.fetchPreset)
				if err != nil {
					return err
				}
				oldPreset = nil
			}
			presetWords = words
		} else {
			words, err := p.presets.Acquire(*prof.PresetID, p.fetchPreset)
			if err != nil {
				return err
			}
			presetWords = words
		}
	}

	if oldPreset != nil && (prof == nil || prof.PresetID == nil || *prof.PresetID != *oldPreset) {
		p.presets.Release(*oldPreset)
	}

	state := &entityState{
		settings: settings,
		prof:     prof,
		managers: make(map[string]bool),
	}
	if prof != nil {
		for _, g := range prof.ManagerGuids {
			state.managers[g] = true
		}
		state.match = newMatcher(FilterWords(append(append([]string{}, presetWords...), prof.CustomWords...)))
	}

	p.mu.Lock()
	if old != nil {
		// Counters survive reconfiguration so timers keep their cadence.
		state.counter = old.counter
		state.cursor = old.cursor
	}
	p.entities[settings.Guid] = state
	p.mu.Unlock()
	return nil
}

// Remove releases the entity's moderation resources.
func (p *Pipeline) Remove(entityGuid string) {
	p.mu.Lock()
	state, ok := p.entities[entityGuid]
	delete(p.entities, entityGuid)
	p.mu.Unlock()

	if ok && state.prof != nil && state.prof.PresetID != nil {
		p.presets.Release(*state.prof.PresetID)
	}
}

// RefreshPreset swaps the cached word list and rebuilds the matcher of
// every entity on that preset, dropping their compiled patterns.
func (p *Pipeline) RefreshPreset(presetID int, words []string) {
	if !p.presets.Replace(presetID, words) {
		return
	}
	fresh, _ := p.presets.Words(presetID)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, state := range p.entities {
		if state.prof == nil || state.prof.PresetID == nil || *state.prof.PresetID != presetID {
			continue
		}
		state.match = newMatcher(FilterWords(append(append([]string{}, fresh...), state.prof.CustomWords...)))
	}
}

// Entities returns the guids currently configured, for cleanup sweeps.
func (p *Pipeline) Entities() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.entities))
	for g := range p.entities {
		out = append(out, g)
	}
	return out
}

// Process runs stages A-D for one groupchat message and returns the
// messages to queue. The first stage that takes an action wins.
func (p *Pipeline) Process(msg InboundMessage) []Emission {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.entities[msg.EntityGuid]
	if !ok {
		return nil
	}

	exempt := msg.AuthorGuid == p.botGuid || state.managers[msg.AuthorGuid]

	// Stage A: banned words.
	if state.prof != nil && state.prof.Active && !exempt && state.match != nil {
		if word := state.match.Match(msg.Body); word != "" {
			return p.punish(state, msg, word)
		}
	}

	// Stage B: read-only mode.
	if state.settings.ReadOnly && !exempt {
		p.deleteMessage(state, msg)
		p.mute(state, msg.AuthorGuid, readOnlyMuteDuration)
		return nil
	}

	// Stage C: timer tick.
	state.counter++
	if state.counter > state.settings.TimerCounterMax && len(state.settings.Timers) > 0 {
		state.cursor = (state.cursor + 1) % len(state.settings.Timers)
		timer := state.settings.Timers[state.cursor]
		state.counter = 0
		return []Emission{{
			EntityGuid:   msg.EntityGuid,
			Message:      timer.Message,
			AttachmentID: timer.AttachmentID,
		}}
	}

	// Stage D: command.
	if strings.HasPrefix(msg.Body, "!") {
		trigger := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(msg.Body, "!")))
		if cmd, ok := state.settings.Commands[trigger]; ok {
			return []Emission{{
				EntityGuid:   msg.EntityGuid,
				Message:      cmd.Response,
				AttachmentID: cmd.AttachmentID,
			}}
		}
	}

	return nil
}

func (p *Pipeline) punish(state *entityState, msg InboundMessage, word string) []Emission {
	prof := state.prof

	p.notifier.Notify(prof.WebhookURL, prof.WebhookMessage, state.settings.Name, msg.AuthorGuid, msg.Body)

	var emissions []Emission
	if prof.ReplyMessage != "" {
		emissions = append(emissions, Emission{
			EntityGuid: msg.EntityGuid,
			Message:    prof.ReplyMessage,
		})
	}

	p.deleteMessage(state, msg)

	if prof.MuteDurationSeconds > 0 {
		p.mute(state, msg.AuthorGuid, time.Duration(prof.MuteDurationSeconds)*time.Second)
	}

	log.Printf("moderation: removed message in %s (word %q, author %s)", state.settings.Guid, word, msg.AuthorGuid)
	return emissions
}

func (p *Pipeline) deleteMessage(state *entityState, msg InboundMessage) {
	mucJID := xmpp.MucJID(xmpp.EntityRef{
		Guid:       state.settings.Guid,
		Type:       state.settings.Type,
		ParentGuid: state.settings.ParentGuid,
	}, p.mucDomain)

	if err := p.actions.DeleteMessage(msg.MessageID, msg.AuthorJID, mucJID); err != nil {
		log.Printf("moderation: delete in %s: %v", state.settings.Guid, err)
	}
}

func (p *Pipeline) mute(state *entityState, userGuid string, d time.Duration) {
	clubID := state.settings.Guid
	if (state.settings.Type == models.EntityTypeChat || state.settings.Type == models.EntityTypeIHL) && state.settings.ParentGuid != "" {
		clubID = state.settings.ParentGuid
	}
	if err := p.actions.MuteUser(clubID, userGuid, time.Now().Add(d)); err != nil {
		log.Printf("moderation: mute %s in %s: %v", userGuid, clubID, err)
	}
}

// DropCountersExcept removes counter state for rooms no longer in the
// worker's map. Runs from the hourly cleanup pass.
func (p *Pipeline) DropCountersExcept(live map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for guid, state := range p.entities {
		if !live[guid] {
			state.counter = 0
			state.cursor = 0
		}
	}
}
