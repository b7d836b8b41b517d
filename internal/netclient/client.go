// Package netclient implements ClientEndpoint (spec §4.5): the application
// facade that owns one Connection and exposes connect/send/poll/disconnect.
package netclient

import (
	"context"
	"sync"

	"github.com/lumen-net/netwire/internal/netmsg"
	"github.com/lumen-net/netwire/internal/util"
)

// ClientEndpoint owns a single Connection and its inbound queue. It is the
// Go realization of the source's client_interface<T> (teacher's
// internal/app/client.go shows the same owns-one-connection shape).
type ClientEndpoint[K netmsg.Kind] struct {
	mu       sync.Mutex
	conn     *netmsg.Connection[K]
	incoming *netmsg.TSQueue[*netmsg.OwnedMessage[K]]
}

// New creates a ClientEndpoint with no active connection.
func New[K netmsg.Kind]() *ClientEndpoint[K] {
	return &ClientEndpoint[K]{
		incoming: netmsg.NewTSQueue[*netmsg.OwnedMessage[K]](),
	}
}

// Connect resolves host:port and dials it, returning true on synchronous
// success (resolution and dispatch). Connection completion is asynchronous
// and observed via IsConnected (spec §4.5).
func (c *ClientEndpoint[K]) Connect(ctx context.Context, host string, port int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := netmsg.NewClientConnection[K](c.incoming)
	if err := conn.ConnectToServer(ctx, host, port); err != nil {
		util.LogError("client: connect to %s:%d failed: %v", host, port, err)
		return false
	}
	c.conn = conn
	return true
}

// Send forwards msg to the active Connection, or silently drops it if there
// is none or it is not connected (spec §4.5).
func (c *ClientEndpoint[K]) Send(msg *netmsg.Message[K]) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil && conn.IsConnected() {
		conn.Send(msg)
	}
}

// Incoming returns the queue of messages delivered from the server. The
// application polls this directly, matching the source's Incoming().
func (c *ClientEndpoint[K]) Incoming() *netmsg.TSQueue[*netmsg.OwnedMessage[K]] {
	return c.incoming
}

// IsConnected reports whether a Connection exists and has completed its
// handshake.
func (c *ClientEndpoint[K]) IsConnected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// Disconnect closes the active Connection, if any, and waits for its
// goroutines to exit. Idempotent.
func (c *ClientEndpoint[K]) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
}
