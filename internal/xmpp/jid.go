package xmpp

import (
	"fmt"
	"strings"
)

// EntityRef is the minimum an address derivation needs to know about a
// room: its guid, its type and (for channels) the owning community.
type EntityRef struct {
	Guid       string
	Type       string
	ParentGuid string
}

func (e EntityRef) isChannel() bool {
	return e.Type == "chat" || e.Type == "ihl"
}

// baseGuid is the community the room hangs off: the parent for
// channels, the room itself for communities.
func (e EntityRef) baseGuid() string {
	if e.isChannel() && e.ParentGuid != "" {
		return e.ParentGuid
	}
	return e.Guid
}

// MucJID addresses the room on the muclight domain.
func MucJID(e EntityRef, mucDomain string) string {
	if e.isChannel() {
		return fmt.Sprintf("club-%s-channel-%s@%s", e.baseGuid(), e.Guid, mucDomain)
	}
	return fmt.Sprintf("club-%s-general@%s", e.Guid, mucDomain)
}

// SupergroupJID addresses the aggregated club on the supergroup domain.
func SupergroupJID(e EntityRef, supergroupDomain string) string {
	return fmt.Sprintf("club-%s@%s", e.baseGuid(), supergroupDomain)
}

// PresenceGroupJID is the expected subscription anchor for the room;
// the authoritative value still comes from the muclight config reply.
func PresenceGroupJID(e EntityRef, supergroupDomain string) string {
	base := SupergroupJID(e, supergroupDomain)
	if e.isChannel() {
		return fmt.Sprintf("%s/channel-%s", base, e.Guid)
	}
	return base + "/general"
}

// Bare strips the resource part of a JID.
func Bare(jid string) string {
	if i := strings.IndexByte(jid, '/'); i >= 0 {
		return jid[:i]
	}
	return jid
}

// Resource returns the resource part of a JID, empty when absent. In
// groupchat traffic this is the author guid.
func Resource(jid string) string {
	if i := strings.IndexByte(jid, '/'); i >= 0 {
		return jid[i+1:]
	}
	return ""
}

// Domain returns the host part of a JID.
func Domain(jid string) string {
	jid = Bare(jid)
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[i+1:]
	}
	return jid
}
