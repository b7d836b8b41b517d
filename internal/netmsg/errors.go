package netmsg

import "errors"

// Error kinds produced by the networking core. Errors on an established or
// handshaking connection (ErrIO, ErrHandshakeMismatch) are never returned
// synchronously — they're logged and the connection is torn down; the
// application observes the failure via IsConnected() or the disconnect hook.
// ErrResolve and ErrConnect are returned by Connection.ConnectToServer (which
// ClientEndpoint.Connect reduces to a boolean), and ErrAccept is returned by
// ServerEndpoint.Start when it cannot listen.
var (
	// ErrDecodeUnderflow is returned by Message.Pop when the body holds
	// fewer bytes than the requested value's width.
	ErrDecodeUnderflow = errors.New("netmsg: decode underflow")

	// ErrResolve indicates hostname resolution failed during client connect.
	ErrResolve = errors.New("netmsg: resolve failure")

	// ErrConnect indicates the TCP dial failed during client connect.
	ErrConnect = errors.New("netmsg: connect failure")

	// ErrHandshakeMismatch indicates the peer's scramble response did not
	// match the expected value.
	ErrHandshakeMismatch = errors.New("netmsg: handshake mismatch")

	// ErrIO indicates a read or write error on a live connection.
	ErrIO = errors.New("netmsg: io failure")

	// ErrAccept indicates an acceptor error on the server side.
	ErrAccept = errors.New("netmsg: accept failure")

	// ErrHandshakeTimeout names a handshake that did not complete within
	// the handshake deadline. Nothing in this package returns it: a
	// handshake that runs past the deadline fails its read or write and is
	// logged wrapped in ErrIO.
	ErrHandshakeTimeout = errors.New("netmsg: handshake timeout")
)
