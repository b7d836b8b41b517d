package netmsg

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// newLoopbackPair starts a listener, dials it, and returns the client-side
// Connection plus the server-side net.Conn handed to the accepted socket so
// the caller can wrap it with NewServerConnection.
func newLoopbackPair(t *testing.T, inQueue *TSQueue[*OwnedMessage[testKind]]) (*Connection[testKind], net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	client := NewClientConnection[testKind](inQueue)
	if err := client.ConnectToServer(context.Background(), "127.0.0.1", port); err != nil {
		t.Fatalf("ConnectToServer: %v", err)
	}

	select {
	case conn := <-accepted:
		return client, conn
	case <-time.After(time.Second):
		t.Fatal("server side never accepted")
		return nil, nil
	}
}

func waitConnected(t *testing.T, c *Connection[testKind]) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("connection never became live")
}

func TestHandshakeCompletesAndDeliversMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	serverIn := NewTSQueue[*OwnedMessage[testKind]]()
	clientIn := NewTSQueue[*OwnedMessage[testKind]]()

	client, rawServerConn := newLoopbackPair(t, clientIn)

	validated := make(chan *Connection[testKind], 1)
	server := NewServerConnection[testKind](42, serverIn, func(c *Connection[testKind]) {
		validated <- c
	})
	server.AcceptFromServer(rawServerConn)

	waitConnected(t, client)
	waitConnected(t, server)

	select {
	case v := <-validated:
		if v.ID() != 42 {
			t.Errorf("got id %d, want 42", v.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("onValidated never fired")
	}

	msg := New(kindA)
	Push(msg, int32(99))
	client.Send(msg)

	serverIn.Wait()
	owned := serverIn.PopFront()
	if owned.From == nil || owned.From.ID() != 42 {
		t.Fatalf("expected From to be the server connection with id 42, got %v", owned.From)
	}
	var got int32
	if err := Pop(owned.Msg, &got); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got != 99 {
		t.Errorf("got %d, want 99", got)
	}

	client.Disconnect()
	server.Disconnect()
}

func TestConnectToServerUnresolvableHost(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewTSQueue[*OwnedMessage[testKind]]()
	c := NewClientConnection[testKind](q)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.ConnectToServer(ctx, "this-host-does-not-resolve.invalid", 1)
	if err == nil {
		t.Fatal("expected a resolve error")
	}
}

func TestConnectToServerRefused(t *testing.T) {
	defer goleak.VerifyNone(t)

	// A listener that immediately closes leaves the port free; dialing a
	// closed TCP port on loopback fails fast with connection refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	q := NewTSQueue[*OwnedMessage[testKind]]()
	c := NewClientConnection[testKind](q)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.ConnectToServer(ctx, "127.0.0.1", port); err == nil {
		t.Fatal("expected a connect error against a closed port")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	clientIn := NewTSQueue[*OwnedMessage[testKind]]()
	serverIn := NewTSQueue[*OwnedMessage[testKind]]()

	client, rawServerConn := newLoopbackPair(t, clientIn)
	server := NewServerConnection[testKind](1, serverIn, nil)
	server.AcceptFromServer(rawServerConn)

	waitConnected(t, client)
	waitConnected(t, server)

	client.Disconnect()
	client.Disconnect() // must not panic or block forever

	server.Disconnect()
}
