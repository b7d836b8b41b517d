package netmsg

// OwnedMessage pairs a decoded Message with the Connection it arrived on, so
// an application handler can reply directly to the sender (spec §3, §4.2).
// From is nil for client-side delivery, since a client has only one peer.
//
// The source guards this back-reference with a weak handle so a queued
// OwnedMessage can't keep a Connection alive past its natural lifetime; Go's
// garbage collector reclaims reference cycles on its own; see DESIGN.md.
type OwnedMessage[K Kind] struct {
	From *Connection[K]
	Msg  *Message[K]
}
