package netmsg

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lumen-net/netwire/internal/util"
)

// handshakeDeadline bounds the scramble handshake (spec §9: the source has
// no such bound, and a silent peer ties up a connection slot indefinitely).
const handshakeDeadline = 5 * time.Second

// role distinguishes which side of the handshake a Connection plays.
type role int

const (
	roleClient role = iota
	roleServer
)

// Connection is the per-socket framing and lifecycle state machine (spec
// §4.4): handshake, framed read loop, serialized write loop, and teardown.
// It owns exactly one net.Conn and one outbound TSQueue, and shares the
// inbound TSQueue of its owning ClientEndpoint or ServerEndpoint.
//
// Per DESIGN.md's Open Question #1, the source's single reactor-thread model
// is realized here as one read-loop goroutine and one write-loop goroutine
// per Connection, which preserves every ordering/no-internal-locking
// invariant the spec states without an artificial shared event loop.
type Connection[K Kind] struct {
	role  role
	id    uint32
	logID uuid.UUID

	conn net.Conn

	outQueue *TSQueue[*Message[K]]
	inQueue  *TSQueue[*OwnedMessage[K]]

	onValidated func(*Connection[K])

	live      atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewClientConnection creates a Connection in the Client role. inQueue is
// the ClientEndpoint's shared inbound queue.
func NewClientConnection[K Kind](inQueue *TSQueue[*OwnedMessage[K]]) *Connection[K] {
	return &Connection[K]{
		role:     roleClient,
		id:       0,
		logID:    uuid.New(),
		inQueue:  inQueue,
		outQueue: NewTSQueue[*Message[K]](),
		done:     make(chan struct{}),
	}
}

// NewServerConnection creates a Connection in the Server role for a socket
// just accepted by a ServerEndpoint. onValidated, if non-nil, fires once the
// handshake succeeds (spec §4.4.1 step 5's on_client_validated hook).
func NewServerConnection[K Kind](id uint32, inQueue *TSQueue[*OwnedMessage[K]], onValidated func(*Connection[K])) *Connection[K] {
	return &Connection[K]{
		role:        roleServer,
		id:          id,
		logID:       uuid.New(),
		inQueue:     inQueue,
		outQueue:    NewTSQueue[*Message[K]](),
		onValidated: onValidated,
		done:        make(chan struct{}),
	}
}

// ID returns the connection's server-assigned id, or 0 on the client side.
func (c *Connection[K]) ID() uint32 { return c.id }

// Done returns a channel closed once the connection has fully torn down
// (its socket is closed; CloseError is safe to read). A ServerEndpoint uses
// this to reap its connection set promptly instead of only discovering dead
// peers lazily during Broadcast/MessageClient.
func (c *Connection[K]) Done() <-chan struct{} { return c.done }

// CloseError returns the error (if any) returned by the underlying socket's
// Close call. Only meaningful after Done is closed or Disconnect returns.
func (c *Connection[K]) CloseError() error { return c.closeErr }

// IsConnected reports whether the handshake completed and the connection is
// still live (spec §4.4: true only once Live, not merely "socket open" —
// ClientEndpoint.Connect's doc makes clear completion is observed this way).
func (c *Connection[K]) IsConnected() bool {
	return c.live.Load() && !c.closed.Load()
}

// ConnectToServer resolves host:port and dials it (Client role only),
// then launches the client-side handshake in the background. A nil return
// means resolution and dial succeeded; the handshake and its Live
// transition are asynchronous (spec §4.4).
func (c *Connection[K]) ConnectToServer(ctx context.Context, host string, port int) error {
	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil || len(ips) == 0 {
		return fmt.Errorf("%w: %v", ErrResolve, err)
	}

	dialer := net.Dialer{Timeout: handshakeDeadline}
	addr := net.JoinHostPort(ips[0], strconv.Itoa(port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	c.conn = conn

	c.wg.Add(1)
	go c.clientHandshake()
	return nil
}

// AcceptFromServer assigns conn to this Connection and starts the
// server-side handshake (Server role only).
func (c *Connection[K]) AcceptFromServer(conn net.Conn) {
	c.conn = conn
	c.wg.Add(1)
	go c.serverHandshake()
}

// Send enqueues msg on the outbound queue. The source arms the write
// pipeline only when the queue transitions from empty to non-empty; this
// rewrite's write loop blocks on TSQueue.Wait() instead, which gets the same
// "at most one write in flight, FIFO order" guarantee without needing that
// edge-triggered check (DESIGN.md Open Question #1). Per spec §9, Send has
// no meaningful return value (the source's bool return was never actually
// used) and silently drops once the connection is closed.
func (c *Connection[K]) Send(msg *Message[K]) {
	if c.closed.Load() {
		return
	}
	c.outQueue.PushBack(msg)
}

// Disconnect closes the socket and blocks until the read and write loop
// goroutines have both exited. It is idempotent and safe to call multiple
// times or concurrently with an in-flight I/O error (spec §4.4, §9 —
// closing the gap the source leaves between releasing a connection and its
// pending async callbacks).
func (c *Connection[K]) Disconnect() {
	c.closeInternal(nil)
	c.wg.Wait()
}

func (c *Connection[K]) closeInternal(reason error) {
	c.closeOnce.Do(func() {
		wasLive := c.live.Load()
		c.closed.Store(true)
		if c.conn != nil {
			c.closeErr = c.conn.Close()
		}
		c.outQueue.Close()
		if reason != nil {
			util.LogWarning("[%s] connection %d closed: %v", c.logID, c.id, reason)
		}
		if wasLive {
			util.Stats.RemoveConn()
		}
		close(c.done)
	})
}

// ---------------------------------------------------------------------------
// Handshake (spec §4.4.1)
// ---------------------------------------------------------------------------

func (c *Connection[K]) clientHandshake() {
	defer c.wg.Done()

	_ = c.conn.SetDeadline(time.Now().Add(handshakeDeadline))

	var buf [8]byte
	if _, err := io.ReadFull(c.conn, buf[:]); err != nil {
		c.closeInternal(fmt.Errorf("%w: reading challenge: %v", ErrIO, err))
		return
	}
	challenge := wireOrder.Uint64(buf[:])
	response := scramble(challenge)
	wireOrder.PutUint64(buf[:], response)
	if _, err := c.conn.Write(buf[:]); err != nil {
		c.closeInternal(fmt.Errorf("%w: writing handshake response: %v", ErrIO, err))
		return
	}

	_ = c.conn.SetDeadline(time.Time{})
	c.becomeLive()
}

func (c *Connection[K]) serverHandshake() {
	defer c.wg.Done()

	_ = c.conn.SetDeadline(time.Now().Add(handshakeDeadline))

	challenge := uint64(time.Now().UnixNano())
	expected := scramble(challenge)

	var buf [8]byte
	wireOrder.PutUint64(buf[:], challenge)
	if _, err := c.conn.Write(buf[:]); err != nil {
		c.closeInternal(fmt.Errorf("%w: writing challenge: %v", ErrIO, err))
		return
	}
	if _, err := io.ReadFull(c.conn, buf[:]); err != nil {
		c.closeInternal(fmt.Errorf("%w: reading handshake response: %v", ErrIO, err))
		return
	}
	got := wireOrder.Uint64(buf[:])
	if got != expected {
		c.closeInternal(fmt.Errorf("%w: got %x want %x", ErrHandshakeMismatch, got, expected))
		return
	}

	_ = c.conn.SetDeadline(time.Time{})
	if c.onValidated != nil {
		c.onValidated(c)
	}
	c.becomeLive()
}

func (c *Connection[K]) becomeLive() {
	util.Stats.AddConn()
	c.live.Store(true)
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
}

// ---------------------------------------------------------------------------
// Read loop (spec §4.4.2, §4.4.4)
// ---------------------------------------------------------------------------

func (c *Connection[K]) readLoop() {
	defer c.wg.Done()

	headerSize := HeaderSize[K]()
	headerBuf := make([]byte, headerSize)

	for {
		if _, err := io.ReadFull(c.conn, headerBuf); err != nil {
			c.closeInternal(fmt.Errorf("%w: reading header: %v", ErrIO, err))
			return
		}
		header, err := decodeHeader[K](headerBuf)
		if err != nil {
			c.closeInternal(err)
			return
		}
		bodyLen := int(header.Size) - headerSize
		if bodyLen < 0 {
			c.closeInternal(fmt.Errorf("%w: header size %d smaller than header width %d", ErrIO, header.Size, headerSize))
			return
		}

		var body []byte
		if bodyLen > 0 {
			body = make([]byte, bodyLen)
			if _, err := io.ReadFull(c.conn, body); err != nil {
				c.closeInternal(fmt.Errorf("%w: reading body: %v", ErrIO, err))
				return
			}
		}

		util.Stats.AddRecv(int(header.Size))

		msg := &Message[K]{Header: header, Body: body}
		var from *Connection[K]
		if c.role == roleServer {
			from = c
		}
		c.inQueue.PushBack(&OwnedMessage[K]{From: from, Msg: msg})
	}
}

// ---------------------------------------------------------------------------
// Write loop (spec §4.4.3)
// ---------------------------------------------------------------------------

func (c *Connection[K]) writeLoop() {
	defer c.wg.Done()

	headerSize := HeaderSize[K]()
	for {
		c.outQueue.Wait()
		if c.closed.Load() && c.outQueue.Empty() {
			return
		}
		if c.outQueue.Empty() {
			continue
		}
		msg := c.outQueue.PopFront()

		header := encodeHeader(msg.Header)
		if err := writeAll(c.conn, header); err != nil {
			c.closeInternal(fmt.Errorf("%w: writing header: %v", ErrIO, err))
			return
		}
		if len(msg.Body) > 0 {
			if err := writeAll(c.conn, msg.Body); err != nil {
				c.closeInternal(fmt.Errorf("%w: writing body: %v", ErrIO, err))
				return
			}
		}
		util.Stats.AddSent(headerSize + len(msg.Body))
	}
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
