package worker

import (
	"log"
	"os"

	"github.com/areimx/faceit-ext-chatbot-service/internal/moderation"
	"github.com/areimx/faceit-ext-chatbot-service/internal/xmpp"
)

var osExit = os.Exit

// handleStanza classifies one inbound stanza. Errors here are logged
// per stanza and never tear down the session.
func (w *Worker) handleStanza(v interface{}) {
	w.mu.Lock()
	w.lastActivity = w.now()
	w.mu.Unlock()

	switch s := v.(type) {
	case *xmpp.IQ:
		w.handleIQ(s)
	case *xmpp.Message:
		w.handleMessage(s)
	case *xmpp.Presence:
		w.handlePresence(s)
	case *xmpp.StreamError:
		log.Printf("worker %d: stream error: %s", w.botID, s.Condition.Name())
	}
}

func (w *Worker) handleIQ(iq *xmpp.IQ) {
	switch iq.Type {
	case xmpp.IQTypeGet:
		if iq.Ping != nil {
			w.handleServerPing(iq)
			return
		}
		// Anything else we do not speak; answer with an error so the
		// upstream stops retrying.
		w.replyDirect(&xmpp.IQ{
			Type:  xmpp.IQTypeError,
			ID:    iq.ID,
			To:    iq.From,
			Error: featureNotImplemented(),
		})

	case xmpp.IQTypeResult:
		if iq.MucLight != nil && iq.MucLight.PresenceGroup != "" {
			w.handleMucLightResult(iq)
		}

	case xmpp.IQTypeError:
		if iq.Error != nil && iq.Error.Code == 404 {
			w.handleEntityGone(iq)
		}
	}
}

func (w *Worker) handleServerPing(iq *xmpp.IQ) {
	w.mu.Lock()
	w.lastServerPing = w.now()
	w.mu.Unlock()
	// Pong bypasses the paced queue; the server's liveness probe must
	// not wait behind timed messages.
	w.replyDirect(&xmpp.IQ{Type: xmpp.IQTypeResult, ID: iq.ID, To: iq.From})
}

func (w *Worker) replyDirect(iq *xmpp.IQ) {
	w.mu.Lock()
	sess := w.sess
	w.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Send(iq); err != nil {
		log.Printf("worker %d: iq reply: %v", w.botID, err)
	}
}

// handleMucLightResult stores the room's presence group and queues the
// supergroup subscription that makes live messages flow.
func (w *Worker) handleMucLightResult(iq *xmpp.IQ) {
	bare := xmpp.Bare(iq.From)
	group := iq.MucLight.PresenceGroup

	w.mu.Lock()
	guid, ok := w.rooms[bare]
	if ok {
		w.presenceGroups[guid] = group
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	w.queue.push(guid, &xmpp.IQ{
		Type:       xmpp.IQTypeSet,
		ID:         "subscribe-" + guid,
		To:         group,
		Supergroup: &xmpp.SupergroupQuery{Subscribe: &xmpp.Subscribe{Set: "true"}},
	})
}

// handleEntityGone reacts to a 404 against a known room: forget it,
// flag it non-existent and tell the data-plane the room is gone.
func (w *Worker) handleEntityGone(iq *xmpp.IQ) {
	bare := xmpp.Bare(iq.From)

	w.mu.Lock()
	guid, ok := w.rooms[bare]
	if ok {
		delete(w.entities, guid)
		delete(w.rooms, bare)
		delete(w.presenceGroups, guid)
		w.nonExistent[guid] = true
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	w.pipeline.Remove(guid)
	log.Printf("worker %d: entity %s no longer exists upstream", w.botID, guid)

	go func() {
		if err := w.dp.MarkEntityStatus(guid, "inactive"); err != nil {
			log.Printf("worker %d: mark %s inactive: %v", w.botID, guid, err)
		}
	}()
}

func (w *Worker) handleMessage(msg *xmpp.Message) {
	if msg.Type != xmpp.MessageTypeGroupchat || msg.Body == "" {
		return
	}
	// History replays are never moderated.
	if msg.Delay != nil {
		return
	}

	bare := xmpp.Bare(msg.From)
	author := xmpp.Resource(msg.From)

	w.mu.Lock()
	guid, ok := w.rooms[bare]
	own := author == w.botGuid
	w.mu.Unlock()
	if !ok || own || author == "" {
		return
	}

	emissions := w.pipeline.Process(moderation.InboundMessage{
		EntityGuid: guid,
		AuthorGuid: author,
		AuthorJID:  msg.From,
		MessageID:  msg.ID,
		Body:       msg.Body,
	})
	for _, e := range emissions {
		w.enqueueRoomMessage(e.EntityGuid, e.Message, e.AttachmentID)
	}
}

func (w *Worker) enqueueRoomMessage(entityGuid, body, attachmentID string) {
	w.mu.Lock()
	e, ok := w.entities[entityGuid]
	w.mu.Unlock()
	if !ok {
		return
	}

	out := &xmpp.Message{
		Type: xmpp.MessageTypeGroupchat,
		To:   w.mucJID(e),
		Body: body,
	}
	if attachmentID != "" {
		out.Upload = &xmpp.Upload{Img: xmpp.UploadImg{ID: attachmentID}}
	}
	w.queue.push(entityGuid, out)
}

// handlePresence greets newly added members when the room has a
// welcome message configured.
func (w *Worker) handlePresence(p *xmpp.Presence) {
	if p.Type != "" || p.MucUser == nil || p.MucUser.Item == nil {
		return
	}
	if p.MucUser.Item.Affiliation != "member" {
		return
	}

	bare := xmpp.Bare(p.From)
	member := xmpp.Resource(p.From)
	if member == "" && p.MucUser.Item.JID != "" {
		member = xmpp.Bare(p.MucUser.Item.JID)
	}

	w.mu.Lock()
	guid, ok := w.rooms[bare]
	var welcome string
	var own bool
	if ok {
		welcome = w.entities[guid].WelcomeMessage
		own = member == w.botGuid
	}
	w.mu.Unlock()
	if !ok || own || member == "" || welcome == "" {
		return
	}

	to := member
	if xmpp.Domain(to) == to {
		to = member + "@" + w.cfg.ChatDomain
	}
	w.queue.push(guid, &xmpp.Message{
		Type: xmpp.MessageTypeChat,
		To:   to,
		Body: welcome,
	})
}
