package xmpp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	NSFraming    = "urn:ietf:params:xml:ns:xmpp-framing"
	NSSASL       = "urn:ietf:params:xml:ns:xmpp-sasl"
	NSBind       = "urn:ietf:params:xml:ns:xmpp-bind"
	NSPing       = "urn:xmpp:ping"
	NSDelay      = "urn:xmpp:delay"
	NSMucLight   = "urn:xmpp:muclight:0#configuration"
	NSSupergroup = "faceit:supergroup:group:0"
	NSUpload     = "msg:upload:1"
)

// Open is the RFC 7395 stream-open frame.
type Open struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-framing open"`
	To      string   `xml:"to,attr,omitempty"`
	From    string   `xml:"from,attr,omitempty"`
	ID      string   `xml:"id,attr,omitempty"`
	Version string   `xml:"version,attr,omitempty"`
}

type Close struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-framing close"`
}

type SASLAuth struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl auth"`
	Mechanism string   `xml:"mechanism,attr"`
	Payload   string   `xml:",chardata"`
}

type SASLSuccess struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl success"`
}

// SASLFailure carries the failure condition as the name of its first
// child element, e.g. <not-authorized/>.
type SASLFailure struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl failure"`
	Condition Condition `xml:",any"`
}

type Condition struct {
	XMLName xml.Name
}

func (c Condition) Name() string { return c.XMLName.Local }

type StreamError struct {
	XMLName   xml.Name  `xml:"error"`
	Condition Condition `xml:",any"`
}

type Bind struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Resource string   `xml:"resource,omitempty"`
	JID      string   `xml:"jid,omitempty"`
}

type Ping struct {
	XMLName xml.Name `xml:"urn:xmpp:ping ping"`
}

// MucLightQuery is the room configuration query and its reply. The
// reply carries the presence-group the worker must subscribe to.
type MucLightQuery struct {
	XMLName       xml.Name `xml:"urn:xmpp:muclight:0#configuration query"`
	PresenceGroup string   `xml:"presence-group,omitempty"`
}

type SupergroupQuery struct {
	XMLName   xml.Name   `xml:"faceit:supergroup:group:0 query"`
	Subscribe *Subscribe `xml:"subscribe,omitempty"`
}

type Subscribe struct {
	Set string `xml:"set,attr"`
}

type StanzaError struct {
	XMLName   xml.Name  `xml:"error"`
	Code      int       `xml:"code,attr"`
	Type      string    `xml:"type,attr"`
	Condition Condition `xml:",any"`
}

type IQ struct {
	XMLName    xml.Name         `xml:"iq"`
	Type       string           `xml:"type,attr,omitempty"`
	ID         string           `xml:"id,attr,omitempty"`
	From       string           `xml:"from,attr,omitempty"`
	To         string           `xml:"to,attr,omitempty"`
	Ping       *Ping            `xml:"urn:xmpp:ping ping,omitempty"`
	Bind       *Bind            `xml:"urn:ietf:params:xml:ns:xmpp-bind bind,omitempty"`
	MucLight   *MucLightQuery   `xml:"urn:xmpp:muclight:0#configuration query,omitempty"`
	Supergroup *SupergroupQuery `xml:"faceit:supergroup:group:0 query,omitempty"`
	Error      *StanzaError     `xml:"error,omitempty"`
}

const (
	IQTypeGet    = "get"
	IQTypeSet    = "set"
	IQTypeResult = "result"
	IQTypeError  = "error"
)

// Delay marks a history replay (XEP-0203).
type Delay struct {
	XMLName xml.Name `xml:"urn:xmpp:delay delay"`
	Stamp   string   `xml:"stamp,attr,omitempty"`
}

// Upload is the attachment extension on outgoing and incoming messages.
type Upload struct {
	XMLName xml.Name  `xml:"msg:upload:1 x"`
	Img     UploadImg `xml:"img"`
}

type UploadImg struct {
	ID string `xml:"id,attr"`
}

type Message struct {
	XMLName xml.Name `xml:"message"`
	Type    string   `xml:"type,attr,omitempty"`
	ID      string   `xml:"id,attr,omitempty"`
	From    string   `xml:"from,attr,omitempty"`
	To      string   `xml:"to,attr,omitempty"`
	Body    string   `xml:"body,omitempty"`
	Delay   *Delay   `xml:"urn:xmpp:delay delay,omitempty"`
	Upload  *Upload  `xml:"msg:upload:1 x,omitempty"`
}

const (
	MessageTypeGroupchat = "groupchat"
	MessageTypeChat      = "chat"
)

type Presence struct {
	XMLName xml.Name `xml:"presence"`
	Type    string   `xml:"type,attr,omitempty"`
	From    string   `xml:"from,attr,omitempty"`
	To      string   `xml:"to,attr,omitempty"`
	MucUser *MucUser `xml:"http://jabber.org/protocol/muc#user x,omitempty"`
}

type MucUser struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/muc#user x"`
	Item    *MucItem `xml:"item,omitempty"`
}

type MucItem struct {
	Affiliation string `xml:"affiliation,attr,omitempty"`
	Role        string `xml:"role,attr,omitempty"`
	JID         string `xml:"jid,attr,omitempty"`
}

// Marshal renders any stanza struct to its wire form.
func Marshal(v interface{}) ([]byte, error) {
	return xml.Marshal(v)
}

// Parse decodes one websocket frame into a typed stanza. Unknown root
// elements come back as nil with no error so the read loop can skip
// them without tearing down the session.
func Parse(frame []byte) (interface{}, error) {
	name, err := rootName(frame)
	if err != nil {
		return nil, err
	}

	var v interface{}
	switch name {
	case "open":
		v = &Open{}
	case "close":
		v = &Close{}
	case "success":
		v = &SASLSuccess{}
	case "failure":
		v = &SASLFailure{}
	case "iq":
		v = &IQ{}
	case "message":
		v = &Message{}
	case "presence":
		v = &Presence{}
	case "error":
		v = &StreamError{}
	default:
		return nil, nil
	}

	if err := xml.Unmarshal(frame, v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return v, nil
}

func rootName(frame []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(frame))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("no root element: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			// Stream errors arrive prefixed (stream:error); strip it.
			return strings.TrimPrefix(start.Name.Local, "stream:"), nil
		}
	}
}
