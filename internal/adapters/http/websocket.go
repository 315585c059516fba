package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/pklocator/internal/adapters/nats"
	"github.com/samirrijal/pklocator/internal/core/usecases"
	"github.com/samirrijal/pklocator/internal/pkg/metrics"
)

// wsMessage is sent from client to narrow or widen the relay.
type wsMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Device string `json:"device"` // device filter ("" = all devices)
}

func wsSubject(device string) string {
	if device == "" {
		return natsadapter.PositionSubjects
	}
	return natsadapter.PositionSubject(device)
}

// WebSocketHandler returns a handler that sends the current snapshot on
// connect and then relays published snapshots from NATS.
// Clients send JSON: {"action":"subscribe","device":"cab-12"}
// An empty device means all devices, which is also the default subscription.
func WebSocketHandler(nc *nats.Conn, locator *usecases.LocatorService) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

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
		relay := func(msg *nats.Msg) {
			_ = writeJSON(json.RawMessage(msg.Data))
		}

		if locator != nil {
			_ = writeJSON(locator.Snapshot())
		}

		if nc != nil {
			sub, err := nc.Subscribe(natsadapter.PositionSubjects, relay)
			if err != nil {
				slog.Error("ws default subscribe", "error", err)
				return
			}
			subs[natsadapter.PositionSubjects] = sub
		}

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

		// Read client messages for subscribe/unsubscribe
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
			if nc == nil {
				_ = writeJSON(map[string]string{"error": "live relay not available"})
				continue
			}
			subject := wsSubject(m.Device)

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				s, err := nc.Subscribe(subject, relay)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

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
