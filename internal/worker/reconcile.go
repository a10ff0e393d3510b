package worker

import (
	"errors"
	"fmt"
	"log"

	"github.com/areimx/faceit-ext-chatbot-service/internal/dataplane/client"
	"github.com/areimx/faceit-ext-chatbot-service/internal/moderation"
	"github.com/areimx/faceit-ext-chatbot-service/internal/xmpp"
)

// Reconcile pulls the authoritative entity set from the data-plane and
// applies it. Runs on the periodic ticker; control-surface
// notifications apply single-entity changes through Assign, Unassign
// and Update instead.
func (w *Worker) Reconcile() error {
	fresh, err := w.dp.BotEntities(w.botID)
	if err != nil {
		return fmt.Errorf("fetch entities: %w", err)
	}
	w.applyEntitySet(fresh)
	return nil
}

func (w *Worker) applyEntitySet(fresh map[string]client.EntityConfig) {
	w.mu.Lock()
	old := make(map[string]bool, len(w.entities))
	for guid := range w.entities {
		old[guid] = true
	}
	w.mu.Unlock()

	for guid, cfg := range fresh {
		if old[guid] {
			w.updateEntity(cfg)
		} else {
			w.assignEntity(cfg)
		}
	}
	for guid := range old {
		if _, ok := fresh[guid]; !ok {
			w.unassignEntity(guid)
		}
	}
}

// assignEntity adds a room to the worker's map, wires its moderation
// state and queues the join.
func (w *Worker) assignEntity(cfg client.EntityConfig) {
	w.mu.Lock()
	delete(w.recentlyUnassigned, cfg.Guid)
	delete(w.nonExistent, cfg.Guid)
	w.entities[cfg.Guid] = cfg
	w.rooms[w.mucJID(cfg)] = cfg.Guid
	w.mu.Unlock()

	if err := w.configureModeration(cfg); err != nil {
		log.Printf("worker %d: configure moderation for %s: %v", w.botID, cfg.Guid, err)
	}
	w.enqueueRoomJoin(cfg)
}

// updateEntity overwrites configuration in place. No stanza is issued;
// the room is already joined.
func (w *Worker) updateEntity(cfg client.EntityConfig) {
	w.mu.Lock()
	prev, ok := w.entities[cfg.Guid]
	if ok {
		delete(w.rooms, w.mucJID(prev))
	}
	w.entities[cfg.Guid] = cfg
	w.rooms[w.mucJID(cfg)] = cfg.Guid
	w.mu.Unlock()

	if err := w.configureModeration(cfg); err != nil {
		log.Printf("worker %d: configure moderation for %s: %v", w.botID, cfg.Guid, err)
	}
}

// unassignEntity drops a room: moderation resources released, counters
// gone, supergroup unsubscribed, and a debounce entry added so race
// messages arriving after the leave stay silent.
func (w *Worker) unassignEntity(guid string) {
	w.pipeline.Remove(guid)

	w.mu.Lock()
	cfg, ok := w.entities[guid]
	group := w.presenceGroups[guid]
	if ok {
		delete(w.rooms, w.mucJID(cfg))
	}
	delete(w.entities, guid)
	delete(w.presenceGroups, guid)
	w.recentlyUnassigned[guid] = w.now()
	w.mu.Unlock()
	if !ok {
		return
	}

	if group == "" {
		group = w.presenceGroupFor(cfg)
	}
	w.queue.push("", &xmpp.IQ{
		Type:       xmpp.IQTypeSet,
		ID:         "unsubscribe-" + guid,
		To:         group,
		Supergroup: &xmpp.SupergroupQuery{Subscribe: &xmpp.Subscribe{Set: "false"}},
	})
}

// configureModeration loads the entity's profanity config and manager
// set and installs them in the pipeline.
func (w *Worker) configureModeration(cfg client.EntityConfig) error {
	settings := moderation.EntitySettings{
		Guid:            cfg.Guid,
		Name:            cfg.Name,
		Type:            cfg.Type,
		ParentGuid:      cfg.ParentGuid,
		ReadOnly:        cfg.ReadOnly,
		TimerCounterMax: cfg.TimerCounterMax,
		Timers:          cfg.Timers,
		Commands:        cfg.Commands,
	}

	prof, err := w.dp.ProfanityConfig(cfg.Guid)
	if err != nil {
		var notFound *client.NotFoundError
		if errors.As(err, &notFound) {
			return w.pipeline.Configure(settings, nil)
		}
		// Keep the room usable without a filter rather than fail the
		// assignment outright.
		w.pipeline.Configure(settings, nil)
		return err
	}

	return w.pipeline.Configure(settings, &moderation.ProfanitySettings{
		Active:              prof.Active,
		PresetID:            prof.PresetID,
		CustomWords:         prof.CustomWords,
		WebhookURL:          prof.WebhookURL,
		WebhookMessage:      prof.WebhookMessage,
		ReplyMessage:        prof.ReplyMessage,
		MuteDurationSeconds: prof.MuteDurationSeconds,
		ManagerGuids:        prof.ManagerGuids,
	})
}

// Assign handles a control-surface assignment. When the notification
// carries no entity payload the config is fetched from the data-plane.
func (w *Worker) Assign(entityGuid string, cfg *client.EntityConfig) error {
	if cfg == nil {
		fetched, err := w.dp.EntityData(entityGuid)
		if err != nil {
			return err
		}
		cfg = fetched
	}
	if cfg.Guid == "" {
		cfg.Guid = entityGuid
	}
	w.assignEntity(*cfg)
	return nil
}

func (w *Worker) Unassign(entityGuid string) {
	w.unassignEntity(entityGuid)
}

// Update re-fetches the entity and reconfigures it in place.
func (w *Worker) Update(entityGuid string) error {
	cfg, err := w.dp.EntityData(entityGuid)
	if err != nil {
		return err
	}

	w.mu.Lock()
	_, known := w.entities[entityGuid]
	w.mu.Unlock()

	if known {
		w.updateEntity(*cfg)
	} else {
		w.assignEntity(*cfg)
	}
	return nil
}

// RefreshPreset re-fetches a preset's words and invalidates every
// compiled pattern built from the old list.
func (w *Worker) RefreshPreset(presetID int) error {
	p, err := w.dp.Preset(presetID)
	if err != nil {
		return err
	}
	w.pipeline.RefreshPreset(presetID, p.Words)
	return nil
}
