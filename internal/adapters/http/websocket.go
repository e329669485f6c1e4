package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/osmfj/MapComplete/internal/adapters/nats"
	"github.com/osmfj/MapComplete/internal/core/domain"
)

// wsMessage is sent from client to report its view or change feeds.
type wsMessage struct {
	Action   string           `json:"action"`  // "viewport" | "refresh" | "subscribe" | "unsubscribe"
	Channel  string           `json:"channel"` // "state" | "committed" | "failed" | "all" (default: all)
	Viewport *domain.Viewport `json:"viewport,omitempty"`
}

// wsEvent wraps every message pushed to the client.
type wsEvent struct {
	Subject string `json:"subject"`
	Data    any    `json:"data"`
}

var wsChannels = map[string]string{
	"state":     natsadapter.SubjectState,
	"committed": natsadapter.SubjectCommitted,
	"failed":    natsadapter.SubjectFailed,
	"all":       natsadapter.SubjectAll,
}

// WebSocketHandler returns a handler that upgrades to WebSocket, relays
// loader events from NATS and feeds viewport reports into the loader.
// Clients send JSON such as
//
//	{"action":"viewport","viewport":{"zoom":15,"bounds":{...}}}
//	{"action":"subscribe","channel":"committed"}
//
// Every connection starts subscribed to the state channel and receives the
// current state right away. Without NATS only viewport and refresh work.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		// Helper: thread-safe write
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(subject string) error {
			if deps.NATS == nil {
				return nats.ErrConnectionClosed
			}
			s, err := deps.NATS.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(wsEvent{Subject: msg.Subject, Data: json.RawMessage(msg.Data)})
			})
			if err != nil {
				return err
			}
			subs[subject] = s
			return nil
		}

		if deps.NATS != nil {
			if err := subscribe(natsadapter.SubjectState); err != nil {
				slog.Warn("ws default subscribe", "error", err)
			}
		}
		_ = writeJSON(wsEvent{Subject: natsadapter.SubjectState, Data: deps.Loader.State()})

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "viewport":
				if m.Viewport == nil {
					_ = writeJSON(map[string]string{"error": "viewport is required"})
					continue
				}
				if err := deps.Viewports.Report(*m.Viewport); err != nil {
					_ = writeJSON(map[string]string{"error": err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "viewport accepted"})

			case "refresh":
				dispatched := deps.Loader.ForceRefresh(context.Background())
				_ = writeJSON(map[string]any{"status": "refreshed", "dispatched": dispatched})

			case "subscribe", "unsubscribe":
				channel := m.Channel
				if channel == "" {
					channel = "all"
				}
				subject, ok := wsChannels[channel]
				if !ok {
					_ = writeJSON(map[string]string{"error": "unknown channel: " + channel})
					continue
				}

				if m.Action == "unsubscribe" {
					if s, exists := subs[subject]; exists {
						_ = s.Unsubscribe()
						delete(subs, subject)
						_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
					} else {
						_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
					}
					continue
				}

				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				if err := subscribe(subject); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
