// Package netserver implements ServerEndpoint (spec §4.6): accepts many
// clients, validates each via the handshake, and dispatches their messages
// to application hooks.
package netserver

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lumen-net/netwire/internal/netmsg"
	"github.com/lumen-net/netwire/internal/util"
)

// DrainAll tells Update to drain every currently queued message, mirroring
// the source's maxMessages = -1 / spec's "usize::MAX" sentinel.
const DrainAll = ^uint64(0)

// Hooks are the four overridable application callbacks from spec §4.6,
// modeled as a capability record (spec §9) instead of virtual methods.
// Every field may be left nil.
type Hooks[K netmsg.Kind] struct {
	// OnClientConnection is called after accept, before the handshake, with
	// the raw accepted socket (no Connection — and no id — exists yet).
	// Returning false refuses the connection; its socket is closed and no
	// id is ever assigned.
	OnClientConnection func(conn net.Conn) bool

	// OnClientValidated is called once a connection's handshake succeeds.
	OnClientValidated func(conn *netmsg.Connection[K])

	// OnClientDisconnect is called the first time the server notices a
	// connection's socket is unusable — Broadcast/MessageClient discovering
	// it dead, the server's own per-connection watcher, or Stop. It never
	// fires twice for the same connection.
	OnClientDisconnect func(conn *netmsg.Connection[K])

	// OnMessage is called once per message drained by Update.
	OnMessage func(conn *netmsg.Connection[K], msg *netmsg.Message[K])
}

// trackedConn pairs a live Connection with the book-keeping needed to fire
// OnClientDisconnect exactly once regardless of which code path (the
// watcher goroutine, Broadcast, MessageClient, or Stop) first notices it
// died.
type trackedConn[K netmsg.Kind] struct {
	conn     *netmsg.Connection[K]
	hookOnce sync.Once
}

func (tc *trackedConn[K]) fireDisconnect(hook func(*netmsg.Connection[K])) {
	tc.hookOnce.Do(func() {
		if hook != nil {
			hook(tc.conn)
		}
	})
}

// ServerEndpoint owns an acceptor, the set of active connections, and the
// shared inbound queue every Connection delivers into (spec §4.6). The
// connection set is guarded by a mutex (DESIGN.md Open Question #1 — option
// (b) from spec §9) rather than funneled through a single reactor thread.
type ServerEndpoint[K netmsg.Kind] struct {
	port  int
	hooks Hooks[K]

	incoming *netmsg.TSQueue[*netmsg.OwnedMessage[K]]

	listener net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once
	acceptWG sync.WaitGroup

	mu     sync.Mutex
	conns  []*trackedConn[K]
	nextID uint32
}

// New creates a ServerEndpoint bound to no port yet; call Start to listen.
func New[K netmsg.Kind](port int, hooks Hooks[K]) *ServerEndpoint[K] {
	return &ServerEndpoint[K]{
		port:     port,
		hooks:    hooks,
		incoming: netmsg.NewTSQueue[*netmsg.OwnedMessage[K]](),
		nextID:   10000,
	}
}

// Start binds the acceptor to all IPv4 interfaces on the configured port and
// launches the accept loop (spec §4.6).
func (s *ServerEndpoint[K]) Start() error {
	listener, err := net.Listen("tcp4", ":"+strconv.Itoa(s.port))
	if err != nil {
		return fmt.Errorf("%w: listen on port %d: %v", netmsg.ErrAccept, s.port, err)
	}
	s.listener = listener
	s.stopCh = make(chan struct{})

	s.acceptWG.Add(1)
	go s.acceptLoop()

	util.LogInfo("server: listening on :%d", s.port)
	return nil
}

// Stop stops accepting new connections, disconnects every live connection,
// and joins the accept loop. It aggregates any errors encountered closing
// sockets (spec §8 scenario 6: graceful shutdown).
func (s *ServerEndpoint[K]) Stop() error {
	var result error
	s.stopOnce.Do(func() {
		close(s.stopCh)

		var merr *multierror.Error
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		s.acceptWG.Wait()

		s.mu.Lock()
		conns := s.conns
		s.conns = nil
		s.mu.Unlock()

		for _, tc := range conns {
			tc.conn.Disconnect()
			if err := tc.conn.CloseError(); err != nil {
				merr = multierror.Append(merr, err)
			}
			tc.fireDisconnect(s.hooks.OnClientDisconnect)
		}

		s.incoming.Close()
		util.LogInfo("server: stopped")
		result = merr.ErrorOrNil()
	})
	return result
}

// connDone reports whether conn has fully torn down. Unlike IsConnected,
// which is also false for a connection still mid-handshake, this only ever
// reports true once the connection is actually gone (its Done channel is
// closed), so it is safe to use as the "is this entry dead" test when
// deciding whether to reap a connection and fire OnClientDisconnect.
func connDone[K netmsg.Kind](conn *netmsg.Connection[K]) bool {
	select {
	case <-conn.Done():
		return true
	default:
		return false
	}
}

// Broadcast sends msg to every connection except the optional except,
// removing and firing OnClientDisconnect for any found dead during the scan
// (spec §4.6, §8 scenario "Broadcast exclusion"). A connection still mid
// handshake is neither dead nor excluded: it is sent to like any other live
// connection, since Send only requires the outbound queue, not a completed
// handshake, and the message will go out once the handshake finishes.
func (s *ServerEndpoint[K]) Broadcast(msg *netmsg.Message[K], except *netmsg.Connection[K]) {
	s.mu.Lock()
	var dead []*trackedConn[K]
	live := s.conns[:0:0]
	for _, tc := range s.conns {
		if connDone(tc.conn) {
			dead = append(dead, tc)
			continue
		}
		live = append(live, tc)
		if tc.conn == except {
			continue
		}
		tc.conn.Send(msg)
	}
	s.conns = live
	s.mu.Unlock()

	for _, tc := range dead {
		tc.fireDisconnect(s.hooks.OnClientDisconnect)
	}
}

// MessageClient sends msg to one connection, or, if it is dead, removes it
// and fires OnClientDisconnect (spec §4.6). As in Broadcast, a connection
// still mid-handshake is not dead and is sent to normally.
func (s *ServerEndpoint[K]) MessageClient(conn *netmsg.Connection[K], msg *netmsg.Message[K]) {
	if !connDone(conn) {
		conn.Send(msg)
		return
	}

	s.mu.Lock()
	var tc *trackedConn[K]
	kept := s.conns[:0:0]
	for _, c := range s.conns {
		if c.conn == conn {
			tc = c
			continue
		}
		kept = append(kept, c)
	}
	s.conns = kept
	s.mu.Unlock()

	if tc != nil {
		tc.fireDisconnect(s.hooks.OnClientDisconnect)
	}
}

// Update drains up to maxMessages from the inbound queue, dispatching each
// to OnMessage. If wait is true and the queue is empty, it blocks on the
// queue's Wait first (spec §4.6).
func (s *ServerEndpoint[K]) Update(maxMessages uint64, wait bool) {
	if wait {
		s.incoming.Wait()
	}

	var count uint64
	for (maxMessages == DrainAll || count < maxMessages) && !s.incoming.Empty() {
		om := s.incoming.PopFront()
		if s.hooks.OnMessage != nil {
			s.hooks.OnMessage(om.From, om.Msg)
		}
		count++
	}
}

// ---------------------------------------------------------------------------
// Accept loop (spec §4.6)
// ---------------------------------------------------------------------------

func (s *ServerEndpoint[K]) acceptLoop() {
	defer s.acceptWG.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				util.LogError("server: accept error: %v", err)
				time.Sleep(5 * time.Millisecond)
				continue
			}
		}
		go s.handleAccept(conn)
	}
}

func (s *ServerEndpoint[K]) handleAccept(conn net.Conn) {
	if s.hooks.OnClientConnection != nil && !s.hooks.OnClientConnection(conn) {
		util.LogInfo("server: refused connection from %s", conn.RemoteAddr())
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	sc := netmsg.NewServerConnection[K](id, s.incoming, func(c *netmsg.Connection[K]) {
		if s.hooks.OnClientValidated != nil {
			s.hooks.OnClientValidated(c)
		}
	})

	tc := &trackedConn[K]{conn: sc}
	s.mu.Lock()
	s.conns = append(s.conns, tc)
	s.mu.Unlock()

	go func() {
		<-sc.Done()
		s.mu.Lock()
		kept := s.conns[:0:0]
		for _, c := range s.conns {
			if c != tc {
				kept = append(kept, c)
			}
		}
		s.conns = kept
		s.mu.Unlock()
		tc.fireDisconnect(s.hooks.OnClientDisconnect)
	}()

	sc.AcceptFromServer(conn)
	util.LogInfo("server: accepted connection %d from %s", id, conn.RemoteAddr())
}
