package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andyyong11/streamdj/internal/auth"
	"github.com/andyyong11/streamdj/internal/chat"
	"github.com/andyyong11/streamdj/internal/player"
	"github.com/andyyong11/streamdj/internal/realtime"
	"github.com/andyyong11/streamdj/pkg/retry"
)

var (
	streamKey string
	token     string
)

var watchCmd = &cobra.Command{
	Use:   "watch <stream-id>",
	Short: "Watch a live stream: play audio and join the chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&streamKey, "key", "", "stream key (required to build the playback URL)")
	watchCmd.Flags().StringVar(&token, "token", "", "JWT for authenticated chat; anonymous when empty")
	_ = watchCmd.MarkFlagRequired("key")
}

func runWatch(cmd *cobra.Command, args []string) error {
	streamID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid stream id: %w", err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := playbackHost
	proxy := proxyPath
	if proxy != "" && strings.HasPrefix(proxy, "/") {
		// The proxy prefix is server-relative; anchor it for a CLI client.
		proxy = "http://" + serverAddr + proxy
	}
	candidates := player.ManifestCandidates(host, proxy, streamKey)
	if len(candidates) == 0 {
		return fmt.Errorf("no playback candidates: set --playback-host or --proxy-path")
	}

	engine := player.NewHLSEngine(nil, logger)
	engine.OnSegment = func(uri string, bytes int64) {
		fmt.Printf("\r[segment] %s (%d bytes)", uri, bytes)
	}

	p := player.New(player.Config{
		Candidates: candidates,
		Probe:      retry.Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second},
		Engine:     engine,
		OnState: func(s player.State) {
			fmt.Printf("\n[player] %s\n", s)
		},
		OnUserGesture: func() {
			fmt.Println("[player] press enter to start playback")
		},
		Logger: logger,
	}, nil)
	defer p.Close()

	// The server stamps outgoing chat with the connection identity, so the
	// echo fingerprint only matches when the same identity is used here.
	identity, err := viewerIdentity()
	if err != nil {
		return err
	}

	conn, err := dialViewerSocket(streamID, identity)
	if err != nil {
		return fmt.Errorf("join stream channel: %w", err)
	}
	defer conn.Close()

	echo := chat.NewEchoSet()

	if err := conn.WriteJSON(realtime.WSMessage{Event: realtime.EventJoinStreamViewers}); err != nil {
		return err
	}

	go heartbeatLoop(ctx, conn)
	go receiveLoop(ctx, conn, echo)
	go chatLoop(ctx, conn, p, echo, identity)

	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// viewerIdentity returns the identity the server will attribute this
// connection to: the JWT's user id when authenticated, a fresh anonymous
// viewer id otherwise.
func viewerIdentity() (string, error) {
	if token == "" {
		return uuid.New().String(), nil
	}
	var claims auth.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("malformed token: %w", err)
	}
	return claims.UserID.String(), nil
}

// dialViewerSocket connects to /ws with either the JWT or the anonymous
// viewer id.
func dialViewerSocket(streamID uuid.UUID, identity string) (*websocket.Conn, error) {
	q := url.Values{}
	q.Set("stream_id", streamID.String())
	if token != "" {
		q.Set("token", token)
	} else {
		q.Set("viewer_id", identity)
	}
	u := url.URL{Scheme: "ws", Host: serverAddr, Path: "/ws", RawQuery: q.Encode()}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

func heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(realtime.WSMessage{Event: realtime.EventHeartbeat}); err != nil {
				return
			}
		}
	}
}

// receiveLoop renders incoming events, dropping this client's own chat echo.
func receiveLoop(ctx context.Context, conn *websocket.Conn, echo *chat.EchoSet) {
	for ctx.Err() == nil {
		var msg realtime.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Event {
		case realtime.EventChatMessage, realtime.EventUserJoined, realtime.EventUserLeft:
			var m chat.Message
			if err := json.Unmarshal(msg.Data, &m); err != nil {
				continue
			}
			if echo.Suppress(m) {
				continue
			}
			if m.System {
				fmt.Printf("\n-- %s --\n", m.Text)
			} else {
				fmt.Printf("\n<%s> %s\n", m.SenderName, m.Text)
			}
		case realtime.EventViewerCountUpdate:
			var c struct {
				Count int `json:"count"`
			}
			if err := json.Unmarshal(msg.Data, &c); err == nil {
				fmt.Printf("\n[viewers] %d\n", c.Count)
			}
		}
	}
}

// chatLoop reads stdin lines and sends them as chat messages. A bare enter
// supplies the playback gesture when autoplay was refused.
func chatLoop(ctx context.Context, conn *websocket.Conn, p *player.Player, echo *chat.EchoSet, identity string) {
	scanner := bufio.NewScanner(os.Stdin)
	for ctx.Err() == nil && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_ = p.Resume()
			continue
		}
		m := chat.NewMessage(identity, displayName, line)
		echo.Record(m)
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		if err := conn.WriteJSON(realtime.WSMessage{Event: realtime.EventSendMessage, Data: data}); err != nil {
			return
		}
	}
}
