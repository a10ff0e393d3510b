package xmpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMucJID(t *testing.T) {
	community := EntityRef{Guid: "e1", Type: "community"}
	assert.Equal(t, "club-e1-general@muc.test", MucJID(community, "muc.test"))

	channel := EntityRef{Guid: "c2", Type: "chat", ParentGuid: "p1"}
	assert.Equal(t, "club-p1-channel-c2@muc.test", MucJID(channel, "muc.test"))

	ihl := EntityRef{Guid: "c3", Type: "ihl", ParentGuid: "p1"}
	assert.Equal(t, "club-p1-channel-c3@muc.test", MucJID(ihl, "muc.test"))
}

func TestSupergroupJID(t *testing.T) {
	community := EntityRef{Guid: "e1", Type: "community"}
	assert.Equal(t, "club-e1@sg.test", SupergroupJID(community, "sg.test"))

	channel := EntityRef{Guid: "c2", Type: "chat", ParentGuid: "p1"}
	assert.Equal(t, "club-p1@sg.test", SupergroupJID(channel, "sg.test"))
}

func TestPresenceGroupJID(t *testing.T) {
	community := EntityRef{Guid: "e1", Type: "community"}
	assert.Equal(t, "club-e1@sg.test/general", PresenceGroupJID(community, "sg.test"))

	channel := EntityRef{Guid: "c2", Type: "ihl", ParentGuid: "p1"}
	assert.Equal(t, "club-p1@sg.test/channel-c2", PresenceGroupJID(channel, "sg.test"))
}

func TestJIDParts(t *testing.T) {
	jid := "club-e1-general@muc.test/author-guid"
	assert.Equal(t, "club-e1-general@muc.test", Bare(jid))
	assert.Equal(t, "author-guid", Resource(jid))
	assert.Equal(t, "muc.test", Domain(jid))

	assert.Equal(t, "", Resource("bare@host"))
	assert.Equal(t, "host", Domain("bare@host"))
	assert.Equal(t, "host", Domain("host"))
}
