// Pingclient — example ClientEndpoint application.
//
// It connects to a chatserver, then repeatedly stamps a ServerPing with the
// current time and reports the round-trip latency once the server echoes it
// back, mirroring the ping/latency probes scattered through
// original_source/netClient/src/SimpleClient.cpp-style example clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"

	"github.com/lumen-net/netwire/internal/chatproto"
	"github.com/lumen-net/netwire/internal/netclient"
	"github.com/lumen-net/netwire/internal/netmsg"
	"github.com/lumen-net/netwire/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	host := flag.String("host", "127.0.0.1", "Server host")
	port := flag.Int("port", 60000, "Server port")
	interval := flag.Duration("interval", time.Second, "Delay between pings")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("pingclient — v%s", version))
	pterm.Println()

	client := netclient.New[chatproto.Kind]()
	if !client.Connect(ctx, *host, *port) {
		util.LogError("failed to connect to %s:%d", *host, *port)
		os.Exit(1)
	}
	defer client.Disconnect()

	waitConnected(ctx, client)
	util.LogSuccess("connected to %s:%d", *host, *port)

	go receiveLoop(ctx, client)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			util.LogInfo("disconnecting")
			return
		case <-ticker.C:
			if !client.IsConnected() {
				util.LogWarning("connection lost")
				return
			}
			ping := netmsg.New(chatproto.ServerPing)
			netmsg.Push(ping, time.Now().UnixNano())
			client.Send(ping)
		}
	}
}

func waitConnected(ctx context.Context, client *netclient.ClientEndpoint[chatproto.Kind]) {
	for !client.IsConnected() && ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
}

func receiveLoop(ctx context.Context, client *netclient.ClientEndpoint[chatproto.Kind]) {
	incoming := client.Incoming()
	for {
		incoming.Wait()
		if ctx.Err() != nil {
			return
		}
		if incoming.Empty() {
			continue
		}
		owned := incoming.PopFront()
		handleMessage(owned.Msg)
	}
}

func handleMessage(msg *netmsg.Message[chatproto.Kind]) {
	switch msg.Header.Kind {
	case chatproto.ServerAccept:
		var id uint32
		if err := netmsg.Pop(msg, &id); err != nil {
			util.LogError("malformed ServerAccept: %v", err)
			return
		}
		util.LogInfo("assigned id %d", id)

	case chatproto.ServerPing:
		var sentAt int64
		if err := netmsg.Pop(msg, &sentAt); err != nil {
			util.LogError("malformed ServerPing echo: %v", err)
			return
		}
		rtt := time.Since(time.Unix(0, sentAt))
		util.LogSuccess("pong: %s", rtt)

	case chatproto.ServerMessage:
		var senderID uint32
		if err := netmsg.Pop(msg, &senderID); err != nil {
			util.LogError("malformed ServerMessage: %v", err)
			return
		}
		util.LogInfo("client %d broadcast %d bytes", senderID, len(msg.Body))

	default:
		util.LogWarning("unhandled message kind %v", msg.Header.Kind)
	}
}
