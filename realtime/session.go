// Package realtime pushes session changes to open admin pages over a
// websocket.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/guard"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Event represents a message sent to websocket clients
type Event struct {
	Type      string `json:"type"`
	Location  string `json:"location,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type Watcher interface {
	Watch(ctx context.Context, token string) (<-chan guard.Transition, func())
}

// SessionSocket serves one websocket per open admin page. The socket lives
// exactly as long as the page: closing it ends the session watch.
type SessionSocket struct {
	watcher  Watcher
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

func NewSessionSocket(watcher Watcher, log *zap.SugaredLogger) *SessionSocket {
	return &SessionSocket{watcher: watcher, log: log}
}

// ServeWS upgrades the connection and relays the first session transition
// as a redirect event, then closes.
func (s *SessionSocket) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := guard.TokenFromRequest(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("realtime: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	transitions, stop := s.watcher.Watch(ctx, token)
	defer stop()

	// reader (just consume pongs/close)
	_ = conn.SetReadDeadline(time.Now().Add(pingInterval + writeWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + writeWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case t, ok := <-transitions:
			if !ok {
				return
			}
			s.send(conn, Event{
				Type:      "redirect",
				Location:  t.Redirect,
				Reason:    string(t.Event),
				Timestamp: time.Now().Unix(),
			})
			deadline := time.Now().Add(writeWait)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), deadline)
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *SessionSocket) send(conn *websocket.Conn, event Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		s.log.Errorf("realtime: failed to marshal event: %v", err)
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
		s.log.Warnf("realtime: failed to send %s event: %v", event.Type, err)
	}
}
