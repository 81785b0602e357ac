package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/coder/retry"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/plotbound/plotbound/presence-go/internal/presence"
)

const maxMsgSize = 64 * 1024

// SnapshotSink receives snapshots decoded off the push channel.
type SnapshotSink interface {
	Ingest(snap presence.Snapshot) error
	IngestBatch(snaps []presence.Snapshot)
}

// PushListener maintains the websocket subscription that relays other
// users' snapshots. It reconnects with backoff until its context ends.
type PushListener struct {
	url         string
	localUserID string
	sink        SnapshotSink
}

func NewPushListener(baseURL, token, localUserID string, sink SnapshotSink) *PushListener {
	return &PushListener{
		url:         pushURL(baseURL, token),
		localUserID: localUserID,
		sink:        sink,
	}
}

func pushURL(baseURL, token string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	q := url.Values{}
	q.Set("token", token)
	q.Set("clientId", uuid.New().String())
	return u + "/ws/presence?" + q.Encode()
}

func (l *PushListener) Listen(ctx context.Context) {
	r := retry.New(250*time.Millisecond, 10*time.Second)
	for {
		err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("push channel closed", "error", err)
		}
		if !r.Wait(ctx) {
			return
		}
	}
}

func (l *PushListener) listenOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, l.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	conn.SetReadLimit(maxMsgSize)
	slog.Info("push channel connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid push message", "error", err)
			continue
		}
		l.handleMessage(&msg)
	}
}

func (l *PushListener) handleMessage(msg *Message) {
	switch msg.Type {
	case TypePresenceUpdate:
		var snap presence.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			slog.Warn("invalid presence payload", "error", err)
			return
		}
		if snap.UserID == "" {
			snap.UserID = msg.UserID
		}
		// The channel echoes the local user's own heartbeats; the reporter
		// already feeds those in directly.
		if snap.UserID == l.localUserID {
			return
		}
		if err := l.sink.Ingest(snap); err != nil {
			slog.Warn("drop pushed snapshot", "error", err, "user", snap.UserID)
		}
	case TypePresenceState:
		var state PresenceStatePayload
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			slog.Warn("invalid presence state payload", "error", err)
			return
		}
		l.sink.IngestBatch(state.Snapshots)
	case TypeWelcome:
	default:
		slog.Warn("unknown push message type", "type", msg.Type)
	}
}
