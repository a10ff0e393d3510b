package xmpp

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
	closeWait        = 5 * time.Second
)

// AuthError reports a SASL failure; the not-authorized condition is
// what callers treat as an expired chat token.
type AuthError struct {
	Condition string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("xmpp: authentication failed: %s", e.Condition)
}

func (e *AuthError) NotAuthorized() bool {
	return e.Condition == "not-authorized"
}

// Client is one authenticated XMPP-over-WebSocket session. Handshake
// methods (Authenticate, BindResource) run before Start; after Start
// all inbound stanzas are delivered on the Stanzas channel and the
// connection may only be read by the internal loop.
type Client struct {
	conn    *websocket.Conn
	domain  string
	bound   string
	stanzas chan interface{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func Dial(ctx context.Context, wsURL, domain string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{"xmpp"},
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Client{
		conn:    conn,
		domain:  domain,
		stanzas: make(chan interface{}, 256),
		done:    make(chan struct{}),
	}

	if err := c.openStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) openStream() error {
	if err := c.write(&Open{To: c.domain, Version: "1.0"}); err != nil {
		return err
	}
	// Server answers with its own <open/>; stream features may follow
	// and are skipped by the typed read.
	for {
		v, err := c.readHandshake()
		if err != nil {
			return err
		}
		if _, ok := v.(*Open); ok {
			return nil
		}
	}
}

// Authenticate runs SASL-PLAIN with the FACEIT chat token and reopens
// the stream as required after a successful exchange.
func (c *Client) Authenticate(accountGuid, chatToken string) error {
	identity := fmt.Sprintf("%s@%s\x00%s\x00%s", accountGuid, c.domain, accountGuid, chatToken)
	auth := &SASLAuth{
		Mechanism: "PLAIN",
		Payload:   base64.StdEncoding.EncodeToString([]byte(identity)),
	}
	if err := c.write(auth); err != nil {
		return err
	}

	for {
		v, err := c.readHandshake()
		if err != nil {
			return err
		}
		switch s := v.(type) {
		case *SASLSuccess:
			return c.openStream()
		case *SASLFailure:
			return &AuthError{Condition: s.Condition.Name()}
		}
	}
}

// BindResource binds the session resource and returns the full JID the
// server assigned.
func (c *Client) BindResource(resource string) (string, error) {
	iq := &IQ{
		Type: IQTypeSet,
		ID:   "bind-1",
		Bind: &Bind{Resource: resource},
	}
	if err := c.write(iq); err != nil {
		return "", err
	}

	for {
		v, err := c.readHandshake()
		if err != nil {
			return "", err
		}
		reply, ok := v.(*IQ)
		if !ok || reply.ID != "bind-1" {
			continue
		}
		if reply.Type == IQTypeError || reply.Bind == nil {
			return "", fmt.Errorf("xmpp: resource bind rejected")
		}
		c.bound = reply.Bind.JID
		return c.bound, nil
	}
}

// SendInitialPresence announces the session globally.
func (c *Client) SendInitialPresence() error {
	return c.write(&Presence{})
}

func (c *Client) BoundJID() string { return c.bound }

// Start launches the read loop. The stanza channel is closed when the
// transport drops, which is the session's end-of-life signal.
func (c *Client) Start() {
	go c.readLoop()
}

func (c *Client) Stanzas() <-chan interface{} { return c.stanzas }

func (c *Client) readLoop() {
	defer close(c.stanzas)
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("xmpp: read: %v", err)
			}
			return
		}
		v, err := Parse(frame)
		if err != nil {
			log.Printf("xmpp: bad frame: %v", err)
			continue
		}
		if v == nil {
			continue
		}
		if _, ok := v.(*Close); ok {
			return
		}
		select {
		case c.stanzas <- v:
		case <-c.done:
			return
		}
	}
}

// Send marshals and writes one stanza. Safe for concurrent use.
func (c *Client) Send(v interface{}) error {
	return c.write(v)
}

func (c *Client) write(v interface{}) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) readHandshake() (interface{}, error) {
	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer c.conn.SetReadDeadline(time.Time{})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		v, err := Parse(frame)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
}

// Close sends the stream close frame and waits briefly for the server
// to mirror it before dropping the socket.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.write(&Close{})

		deadline := time.NewTimer(closeWait)
		defer deadline.Stop()
		select {
		case <-c.stanzas:
		case <-deadline.C:
		}
		err = c.conn.Close()
	})
	return err
}
