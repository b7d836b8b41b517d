// Chatserver — example ServerEndpoint application.
//
// It accepts any number of clients, answers ServerPing with the same
// timestamp it was sent (round-trip latency probe), and rebroadcasts any
// MessageAll to every other connected client tagged with the sender's id.
// Grounded on original_source/netServer/src/SimpleServer.cpp's CustomServer
// and its "while(1) s.update();" drive loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/lumen-net/netwire/internal/chatproto"
	"github.com/lumen-net/netwire/internal/netmsg"
	"github.com/lumen-net/netwire/internal/netserver"
	"github.com/lumen-net/netwire/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	port := flag.Int("port", 60000, "Port to listen on")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("chatserver — v%s", version))
	pterm.Println()

	var srv *netserver.ServerEndpoint[chatproto.Kind]
	hooks := netserver.Hooks[chatproto.Kind]{
		OnClientConnection: onClientConnection,
		OnClientValidated:  onClientValidated,
		OnClientDisconnect: onClientDisconnect,
		OnMessage: func(from *netmsg.Connection[chatproto.Kind], msg *netmsg.Message[chatproto.Kind]) {
			onMessage(srv, from, msg)
		},
	}
	srv = netserver.New[chatproto.Kind](*port, hooks)

	if err := srv.Start(); err != nil {
		util.LogError("failed to start server: %v", err)
		os.Exit(1)
	}

	util.StartStatsReporter(ctx)
	util.LogSuccess("chatserver listening on :%d", *port)

	go func() {
		<-ctx.Done()
		_ = srv.Stop()
	}()

	for {
		srv.Update(netserver.DrainAll, true)
		if ctx.Err() != nil {
			break
		}
	}

	util.LogInfo("shutting down")
	if err := srv.Stop(); err != nil {
		util.LogError("shutdown errors: %v", err)
	}
}

func onClientConnection(conn net.Conn) bool {
	util.LogDebug("incoming connection from %s", conn.RemoteAddr())
	return true
}

func onClientValidated(conn *netmsg.Connection[chatproto.Kind]) {
	util.LogSuccess("client %d validated", conn.ID())
	accept := netmsg.New(chatproto.ServerAccept)
	netmsg.Push(accept, conn.ID())
	conn.Send(accept)
}

func onClientDisconnect(conn *netmsg.Connection[chatproto.Kind]) {
	util.LogWarning("client %d disconnected", conn.ID())
}

func onMessage(srv *netserver.ServerEndpoint[chatproto.Kind], from *netmsg.Connection[chatproto.Kind], msg *netmsg.Message[chatproto.Kind]) {
	switch msg.Header.Kind {
	case chatproto.ServerPing:
		util.LogDebug("ping from client %d", from.ID())
		srv.MessageClient(from, msg)

	case chatproto.MessageAll:
		util.LogDebug("broadcast from client %d", from.ID())
		out := netmsg.New(chatproto.ServerMessage)
		out.Body = append(out.Body, msg.Body...)
		netmsg.Push(out, from.ID())
		srv.Broadcast(out, from)

	default:
		util.LogWarning("client %d sent unhandled message kind %v", from.ID(), msg.Header.Kind)
	}
}
