// Command chatviewer is a standalone operator tool that subscribes to a
// room's WebSocket feed and prints every fanned-out chat message to stdout.
// Grounded on the teacher's internal/channels/zalo/personal/protocol
// WSClient, which dials outbound WebSocket connections with
// github.com/coder/websocket rather than gorilla/websocket — the gateway
// server and its test client keep using gorilla, the same split the teacher
// draws between its own WebSocket server and its Zalo channel's outbound
// client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/chatsim/chatsim/internal/wsproto"
)

var (
	addr string
	room string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatviewer",
		Short: "Tail a room's chat.message fan-out over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:8080", "gateway host:port")
	rootCmd.PersistentFlags().StringVar(&room, "room", "", "room_id to subscribe to (required)")
	rootCmd.MarkPersistentFlagRequired("room")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("chatviewer: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	wsURL := fmt.Sprintf("ws://%s/ws", addr)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("chatviewer: dial %s: %w", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "chatviewer exiting")
	conn.SetReadLimit(1 << 20)

	sub, err := json.Marshal(wsproto.SubscribeFrame{Type: wsproto.TypeSubscribe, RoomID: room})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return fmt.Errorf("chatviewer: send subscribe: %w", err)
	}

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("chatviewer: read: %w", err)
		}
		handleFrame(raw)
	}
}

func handleFrame(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	switch envelope.Type {
	case wsproto.TypeSubscribed:
		var ack wsproto.SubscribedFrame
		json.Unmarshal(raw, &ack)
		fmt.Fprintf(os.Stderr, "subscribed to %s\n", ack.RoomID)
	case wsproto.TypeMessage:
		var frame wsproto.MessageFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		fmt.Printf("[%s] %s: %s\n", frame.Message.RoomID, frame.Message.DisplayName, frame.Message.Content)
	}
}
