package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/hub"
	"github.com/pinwall/boardsync/internal/protocol"
	"github.com/pinwall/boardsync/internal/room"
)

const outboxSize = 32

// Handler upgrades to websocket and attaches the connection to its board's
// room. One reader loop relays inbound envelopes to the room (excluding the
// sender from the fan-out); one writer goroutine drains the room's outbox.
// Envelope ordering per connection follows channel order, so same-kind
// messages from one sender arrive in send order.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := r.URL.Query().Get("board")
		userID := r.URL.Query().Get("user")
		if boardID == "" || userID == "" {
			http.Error(w, "missing board or user", http.StatusBadRequest)
			return
		}

		rm := h.Ensure(boardID)

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		out := make(chan protocol.Envelope, outboxSize)
		rm.Inbox() <- room.Join{UserID: userID, ConnID: connID, Outbox: out}
		defer func() { rm.Inbox() <- room.Leave{ConnID: connID} }()

		log := log.With(zap.String("board_id", boardID), zap.String("user_id", userID))
		log.Debug("connected", zap.String("conn_id", connID))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for env := range out {
				payload, err := json.Marshal(env)
				if err != nil {
					log.Error("encode envelope", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Debug("bad frame", zap.Error(err))
				continue
			}
			if !env.Kind.Known() {
				log.Debug("unknown kind", zap.String("kind", string(env.Kind)))
				continue
			}
			// Never trust sender-supplied identity or routing.
			env.SenderID = userID
			env.BoardID = boardID

			rm.Inbox() <- room.Broadcast{Env: env, ExcludeConnID: connID}
		}
	}
}
