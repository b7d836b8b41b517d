// Package chatproto is the application-level message vocabulary shared by
// the pingclient and chatserver examples, grounded on the CustomMsgTypes
// enum in original_source/netServer/src/SimpleServer.cpp.
package chatproto

// Kind tags every message exchanged by the example client and server. It
// satisfies netmsg.Kind and is encoded as 4 bytes on the wire, matching the
// source's "uint32_t so each type id is 4 bytes" comment.
type Kind uint32

const (
	// ServerAccept is sent by the server to a freshly validated connection,
	// carrying the id it was assigned.
	ServerAccept Kind = iota
	// ServerDeny is sent by the server when it refuses a connection (unused
	// by the bundled examples, reserved for an OnClientConnection veto).
	ServerDeny
	// ServerPing carries a client-stamped timestamp out and back unchanged,
	// letting pingclient measure round-trip latency.
	ServerPing
	// MessageAll is sent by a client asking the server to rebroadcast its
	// body to every other connected client.
	MessageAll
	// ServerMessage is the server's rebroadcast of one client's MessageAll,
	// tagged with the originating connection id.
	ServerMessage
)

func (k Kind) String() string {
	switch k {
	case ServerAccept:
		return "ServerAccept"
	case ServerDeny:
		return "ServerDeny"
	case ServerPing:
		return "ServerPing"
	case MessageAll:
		return "MessageAll"
	case ServerMessage:
		return "ServerMessage"
	default:
		return "Unknown"
	}
}
