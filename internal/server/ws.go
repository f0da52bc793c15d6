package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"example.com/undercover/internal/game"
	"example.com/undercover/internal/room"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // MVP
}

type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

type userInfoPayload struct {
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	Anonymous bool            `json:"anonymous"`
	Rooms     []room.RoomInfo `json:"rooms"`
}

// handleWS is the WebSocket entry into a room.
// /ws?roomId=xxx&token=yyy; an absent or stale token yields a guest
// identity instead of a rejection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	token := r.URL.Query().Get("token")

	if roomID == "" {
		http.Error(w, "missing roomId", http.StatusBadRequest)
		return
	}

	identity := s.auth.Resolve(r.Context(), token)

	// load the room, restoring from Redis if the process restarted
	rm := s.rooms.CreateWithID(r.Context(), roomID)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	cc := &ClientConn{
		ws:   ws,
		send: make(chan []byte, 64),
	}

	// writer loop; batcher flushes re-enter it through the frames channel
	// so the socket is only ever written from one goroutine
	go func() {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()

		var (
			batcher *room.Batcher
			frames  chan []byte
		)
		if s.BatchMessages > 0 {
			frames = make(chan []byte, 8)
			batcher = room.NewBatcher(s.BatchMessages, s.BatchDelay, func(b room.Batch) {
				select {
				case frames <- frame("batch", b):
				default:
				}
			})
			defer batcher.Close()
		}

		for {
			select {
			case msg, ok := <-cc.send:
				if !ok {
					return
				}
				if batcher != nil {
					var env room.Envelope
					if json.Unmarshal(msg, &env) == nil {
						batcher.Add(env)
						continue
					}
				}
				_ = ws.WriteMessage(websocket.TextMessage, msg)
			case out := <-frames:
				_ = ws.WriteMessage(websocket.TextMessage, out)
			case <-ticker.C:
				_ = ws.WriteMessage(websocket.PingMessage, []byte{})
			}
		}
	}()

	cc.send <- frame("user_info", userInfoPayload{
		UserID:    identity.UserID,
		Username:  identity.Username,
		Anonymous: identity.Anonymous,
		Rooms:     s.rooms.List(),
	})

	// reader loop
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var env room.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			cc.send <- errorFrame(game.CodeInvalidAction, "invalid json")
			continue
		}

		if err := rm.HandleEnvelope(r.Context(), env, cc.send); err != nil {
			cc.send <- errorFrame(game.CodeOf(err), err.Error())
		}
	}

	// disconnect
	rm.Disconnect(cc.send)
	cc.Close()
}

func frame(msgType string, v any) []byte {
	data, _ := json.Marshal(v)
	out, _ := json.Marshal(room.Envelope{Type: msgType, Data: data})
	return out
}

func errorFrame(code game.ErrorCode, msg string) []byte {
	return frame("error", room.ErrorPayload{Code: code, Message: msg})
}
