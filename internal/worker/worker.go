package worker

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/areimx/faceit-ext-chatbot-service/internal/config"
	"github.com/areimx/faceit-ext-chatbot-service/internal/dataplane/client"
	"github.com/areimx/faceit-ext-chatbot-service/internal/moderation"
	"github.com/areimx/faceit-ext-chatbot-service/internal/xmpp"
)

type State string

const (
	StateInit          State = "init"
	StateFetchingCreds State = "fetching_creds"
	StateConnecting    State = "connecting"
	StateOnline        State = "online"
	StateDraining      State = "draining"
	StateOffline       State = "offline"
	StateBackoff       State = "backoff"
)

const (
	defaultPacing          = 300 * time.Millisecond
	defaultReconcileEvery  = 10 * time.Minute
	receptionCheckEvery    = 30 * time.Second
	receptionPingThreshold = 5 * time.Minute
	processCheckEvery      = 60 * time.Second
	processPingThreshold   = 10 * time.Minute
	cleanupEvery           = time.Hour
	unassignDebounce       = 5 * time.Minute

	startupRetryLimit        = 5
	initialStartupRetryDelay = 5 * time.Second
	maxStartupRetryDelay     = 5 * time.Minute
)

// ErrCircuitOpen is returned when the reconnect circuit breaker trips;
// the process exits non-zero and the manager restarts it clean.
var ErrCircuitOpen = errors.New("worker: reconnect circuit breaker tripped")

// ErrStartupBudget is returned when the startup credential fetches
// exhausted their retry budget.
var ErrStartupBudget = errors.New("worker: startup retry budget exhausted")

// session is the slice of the XMPP client the worker drives. The
// concrete implementation is xmpp.Client; tests substitute a fake.
type session interface {
	Send(v interface{}) error
	Stanzas() <-chan interface{}
	Close() error
}

// connectFunc establishes an authenticated, bound session. It returns
// the session and the bot's bound JID.
type connectFunc func(ctx context.Context, accountGuid, chatToken, resource string) (session, string, error)

// Worker owns one bot identity: its XMPP session, outgoing queue,
// entity map and moderation state. All mutable state is guarded by one
// mutex; the worker behaves as a single actor.
type Worker struct {
	botID  int
	cfg    *config.Config
	dp     *client.Client
	tokens *chatTokenClient

	pipeline *moderation.Pipeline
	queue    *stanzaQueue

	connect connectFunc
	now     func() time.Time
	exit    func(code int)

	pacing         time.Duration
	reconcileEvery time.Duration

	warnLimiter *rate.Limiter

	mu                 sync.Mutex
	state              State
	shuttingDown       bool
	botGuid            string
	nickname           string
	accessToken        string
	boundJID           string
	forceRefresh       bool
	recon              reconnectState
	startupRetries     int
	entities           map[string]client.EntityConfig
	rooms              map[string]string // bare muc jid -> entity guid
	presenceGroups     map[string]string // entity guid -> presence group jid
	nonExistent        map[string]bool
	recentlyUnassigned map[string]time.Time
	lastServerPing     time.Time
	lastActivity       time.Time
	sess               session
	subscribers        []chan StateChange

	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(botID int, cfg *config.Config, dp *client.Client) *Worker {
	w := &Worker{
		botID:  botID,
		cfg:    cfg,
		dp:     dp,
		tokens: newChatTokenClient(cfg.ChatAuthURL),

		queue: newStanzaQueue(),

		now:  time.Now,
		exit: defaultExit,

		pacing:         defaultPacing,
		reconcileEvery: defaultReconcileEvery,

		warnLimiter: rate.NewLimiter(rate.Every(time.Minute), 1),

		state:              StateInit,
		recon:              newReconnectState(),
		entities:           make(map[string]client.EntityConfig),
		rooms:              make(map[string]string),
		presenceGroups:     make(map[string]string),
		nonExistent:        make(map[string]bool),
		recentlyUnassigned: make(map[string]time.Time),

		stopCh: make(chan struct{}),
	}

	w.connect = w.dialXMPP

	actions := moderation.NewAdminClient(cfg.ChatAdminURL, w.currentToken)
	fetchPreset := func(id int) ([]string, error) {
		p, err := dp.Preset(id)
		if err != nil {
			return nil, err
		}
		return p.Words, nil
	}
	w.pipeline = moderation.NewPipeline(
		moderation.NewPresetCache(), fetchPreset, actions,
		moderation.NewDiscordNotifier(), cfg.MucDomain,
	)

	return w
}

func defaultExit(code int) {
	log.Printf("worker: exiting with status %d", code)
	// Deferred so in-flight log writes land first.
	time.Sleep(100 * time.Millisecond)
	osExit(code)
}

func (w *Worker) currentToken() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.accessToken
}

func (w *Worker) Pipeline() *moderation.Pipeline { return w.pipeline }

// Stop sets the shutdown flag; every loop observes it within one tick.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.shuttingDown = true
		w.setStateLocked(StateDraining)
		w.mu.Unlock()
		close(w.stopCh)
	})
}

func (w *Worker) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Worker) setStateLocked(s State) {
	if w.state == s {
		return
	}
	prev := w.state
	w.state = s
	if w.cfg.Verbose {
		log.Printf("worker %d: state %s -> %s", w.botID, prev, s)
	}
	w.publishLocked(StateChange{From: prev, To: s, At: w.now()})
}

// Run drives the session state machine until shutdown or a fatal
// condition. The control surface and all periodic loops run alongside.
func (w *Worker) Run(ctx context.Context) error {
	srv, err := w.startControlServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	go w.paceLoop()
	go w.reconcileLoop()
	go w.receptionWatchdogLoop()
	go w.processWatchdogLoop()
	go w.cleanupLoop()

	for {
		if w.stopped() || ctx.Err() != nil {
			w.drain()
			return nil
		}

		creds, err := w.fetchCreds()
		if err != nil {
			fatal, delay := w.startupFailure(err)
			if fatal {
				return ErrStartupBudget
			}
			if !w.sleep(ctx, delay) {
				w.drain()
				return nil
			}
			continue
		}

		err = w.runSession(ctx, creds)
		if w.stopped() || ctx.Err() != nil {
			w.drain()
			return nil
		}
		if err != nil {
			log.Printf("worker %d: session ended: %v", w.botID, err)
		}

		w.mu.Lock()
		w.setStateLocked(StateBackoff)
		delay := w.recon.schedule(w.now())
		tripped := w.recon.tripped()
		w.mu.Unlock()

		if tripped {
			return ErrCircuitOpen
		}
		if !w.sleep(ctx, delay) {
			w.drain()
			return nil
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

type credentials struct {
	accountGuid string
	chatToken   string
}

// fetchCreds performs the two credential fetches of the FetchingCreds
// state: bot config from the data-plane (force-refreshed after a
// not-authorized disconnect) and the chat session token exchange.
func (w *Worker) fetchCreds() (*credentials, error) {
	w.mu.Lock()
	w.setStateLocked(StateFetchingCreds)
	force := w.forceRefresh
	w.mu.Unlock()

	botCfg, err := w.dp.BotConfig(w.botID, force)
	if err != nil {
		return nil, fmt.Errorf("bot config: %w", err)
	}
	if botCfg.BotToken == "" {
		return nil, fmt.Errorf("bot config: empty access token")
	}

	w.mu.Lock()
	w.botGuid = botCfg.BotGuid
	w.nickname = botCfg.Nickname
	w.accessToken = botCfg.BotToken
	w.mu.Unlock()
	w.pipeline.SetBotGuid(botCfg.BotGuid)

	chatToken, err := w.tokens.Fetch(botCfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("chat token: %w", err)
	}

	return &credentials{accountGuid: botCfg.BotGuid, chatToken: chatToken}, nil
}

func (w *Worker) startupFailure(err error) (fatal bool, delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.startupRetries++
	log.Printf("worker %d: credential fetch failed (attempt %d/%d): %v",
		w.botID, w.startupRetries, startupRetryLimit, err)
	if w.startupRetries >= startupRetryLimit {
		return true, 0
	}
	delay = initialStartupRetryDelay << (w.startupRetries - 1)
	if delay > maxStartupRetryDelay {
		delay = maxStartupRetryDelay
	}
	w.setStateLocked(StateBackoff)
	return false, delay
}

func (w *Worker) dialXMPP(ctx context.Context, accountGuid, chatToken, resource string) (session, string, error) {
	c, err := xmpp.Dial(ctx, w.cfg.ChatWebsocketURL, w.cfg.ChatDomain)
	if err != nil {
		return nil, "", err
	}
	if err := c.Authenticate(accountGuid, chatToken); err != nil {
		c.Close()
		return nil, "", err
	}
	jid, err := c.BindResource(resource)
	if err != nil {
		c.Close()
		return nil, "", err
	}
	if err := c.SendInitialPresence(); err != nil {
		c.Close()
		return nil, "", err
	}
	c.Start()
	return c, jid, nil
}

// runSession covers Connecting and Online: establish the session, join
// every owned room, then serve inbound stanzas until the transport
// drops or shutdown.
func (w *Worker) runSession(ctx context.Context, creds *credentials) error {
	w.mu.Lock()
	w.setStateLocked(StateConnecting)
	w.mu.Unlock()

	resource := fmt.Sprintf("bot-%d", w.botID)
	sess, jid, err := w.connect(ctx, creds.accountGuid, creds.chatToken, resource)
	if err != nil {
		var authErr *xmpp.AuthError
		if errors.As(err, &authErr) && authErr.NotAuthorized() {
			w.mu.Lock()
			w.forceRefresh = true
			w.mu.Unlock()
		}
		w.mu.Lock()
		w.setStateLocked(StateOffline)
		w.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	w.mu.Lock()
	w.sess = sess
	w.boundJID = jid
	w.recon.reset()
	w.startupRetries = 0
	w.forceRefresh = false
	now := w.now()
	w.lastServerPing = now
	w.lastActivity = now
	w.setStateLocked(StateOnline)
	entities := make([]client.EntityConfig, 0, len(w.entities))
	for _, e := range w.entities {
		entities = append(entities, e)
	}
	w.mu.Unlock()

	log.Printf("worker %d: online as %s", w.botID, jid)

	for _, e := range entities {
		w.enqueueRoomJoin(e)
	}

	for {
		select {
		case <-w.stopCh:
			w.closeSession()
			return nil
		case <-ctx.Done():
			w.closeSession()
			return nil
		case stanza, ok := <-sess.Stanzas():
			if !ok {
				w.mu.Lock()
				w.sess = nil
				w.setStateLocked(StateOffline)
				w.mu.Unlock()
				return fmt.Errorf("transport lost")
			}
			w.handleStanza(stanza)
		}
	}
}

func (w *Worker) closeSession() {
	w.mu.Lock()
	sess := w.sess
	w.sess = nil
	// Draining is terminal; a close during shutdown stays there.
	if !w.shuttingDown {
		w.setStateLocked(StateOffline)
	}
	w.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// enqueueRoomJoin emits the MUC-Light configuration query whose reply
// carries the presence group to subscribe to.
func (w *Worker) enqueueRoomJoin(e client.EntityConfig) {
	mucJID := w.mucJID(e)
	w.queue.push(e.Guid, &xmpp.IQ{
		Type:     xmpp.IQTypeGet,
		ID:       "muclight-" + e.Guid,
		To:       mucJID,
		MucLight: &xmpp.MucLightQuery{},
	})
}

func (w *Worker) mucJID(e client.EntityConfig) string {
	return xmpp.MucJID(xmpp.EntityRef{Guid: e.Guid, Type: e.Type, ParentGuid: e.ParentGuid}, w.cfg.MucDomain)
}

func (w *Worker) presenceGroupFor(e client.EntityConfig) string {
	return xmpp.PresenceGroupJID(xmpp.EntityRef{Guid: e.Guid, Type: e.Type, ParentGuid: e.ParentGuid}, w.cfg.SupergroupDomain)
}

// paceLoop pops at most one stanza per tick while online. Stanzas to
// rooms in the non-existent set are dropped at pop time.
func (w *Worker) paceLoop() {
	ticker := time.NewTicker(w.pacing)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			sess := w.sess
			online := w.state == StateOnline
			w.mu.Unlock()
			if !online || sess == nil {
				continue
			}
			item, ok := w.queue.pop(w.isNonExistent)
			if !ok {
				continue
			}
			if err := sess.Send(item.payload); err != nil {
				log.Printf("worker %d: send failed, stanza dropped: %v", w.botID, err)
			}
		}
	}
}

func (w *Worker) isNonExistent(entityGuid string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nonExistent[entityGuid]
}

func (w *Worker) reconcileLoop() {
	ticker := time.NewTicker(w.reconcileEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.Reconcile(); err != nil {
				log.Printf("worker %d: reconcile: %v", w.botID, err)
			}
		}
	}
}

// receptionWatchdogLoop restarts the session when the server has gone
// quiet; warnings are throttled to once a minute.
func (w *Worker) receptionWatchdogLoop() {
	ticker := time.NewTicker(receptionCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			online := w.state == StateOnline
			silent := w.now().Sub(w.lastServerPing)
			w.mu.Unlock()
			if !online || silent <= receptionPingThreshold {
				continue
			}
			if w.warnLimiter.Allow() {
				log.Printf("worker %d: no server ping for %s, restarting session", w.botID, silent.Round(time.Second))
			}
			w.closeSession()
		}
	}
}

// processWatchdogLoop is the last line of defense: a worker that has
// heard nothing for far too long exits so the manager replaces it.
func (w *Worker) processWatchdogLoop() {
	ticker := time.NewTicker(processCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			online := w.state == StateOnline
			silent := w.now().Sub(w.lastServerPing)
			w.mu.Unlock()
			if online && silent > processPingThreshold {
				log.Printf("worker %d: stuck for %s, exiting", w.botID, silent.Round(time.Second))
				w.exit(1)
			}
		}
	}
}

func (w *Worker) cleanupLoop() {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cleanupPass()
		}
	}
}

func (w *Worker) cleanupPass() {
	w.mu.Lock()
	live := make(map[string]bool, len(w.entities))
	for guid := range w.entities {
		live[guid] = true
	}
	now := w.now()
	for guid, at := range w.recentlyUnassigned {
		if now.Sub(at) > unassignDebounce {
			delete(w.recentlyUnassigned, guid)
		}
	}
	w.mu.Unlock()
	w.pipeline.DropCountersExcept(live)
}

func (w *Worker) drain() {
	w.mu.Lock()
	w.setStateLocked(StateDraining)
	w.mu.Unlock()
	w.closeSession()
}

// Diagnostics is the read-only view served by /reconnection-state.
type Diagnostics struct {
	BotID            int       `json:"bot_id"`
	State            State     `json:"state"`
	BoundJID         string    `json:"bound_jid,omitempty"`
	Attempts         int       `json:"reconnect_attempts"`
	NextDelaySeconds float64   `json:"next_delay_seconds"`
	LastAttempt      time.Time `json:"last_attempt,omitempty"`
	StartupRetries   int       `json:"startup_retries"`
	ForceRefresh     bool      `json:"force_refresh"`
	Entities         int       `json:"entities"`
	QueueLength      int       `json:"queue_length"`
	NonExistent      []string  `json:"non_existent,omitempty"`
	LastServerPing   time.Time `json:"last_server_ping,omitempty"`
	LastActivity     time.Time `json:"last_activity,omitempty"`
}

func (w *Worker) Diagnostics() Diagnostics {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := Diagnostics{
		BotID:            w.botID,
		State:            w.state,
		BoundJID:         w.boundJID,
		Attempts:         w.recon.Attempts,
		NextDelaySeconds: w.recon.NextDelay.Seconds(),
		LastAttempt:      w.recon.LastAttempt,
		StartupRetries:   w.startupRetries,
		ForceRefresh:     w.forceRefresh,
		Entities:         len(w.entities),
		QueueLength:      w.queue.len(),
		LastServerPing:   w.lastServerPing,
		LastActivity:     w.lastActivity,
	}
	for guid := range w.nonExistent {
		d.NonExistent = append(d.NonExistent, guid)
	}
	return d
}

// featureNotImplemented builds the feature-not-implemented reply body.
func featureNotImplemented() *xmpp.StanzaError {
	return &xmpp.StanzaError{
		Type: "cancel",
		Condition: xmpp.Condition{
			XMLName: xml.Name{Space: "urn:ietf:params:xml:ns:xmpp-stanzas", Local: "feature-not-implemented"},
		},
	}
}
