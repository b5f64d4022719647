// Package hub is the registry of live board rooms. Like the rooms it owns,
// the hub is an actor: room lookup and creation are serialized through one
// inbox so two connections racing to open the same board get the same room.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/room"
)

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the board's room, creating it if needed.
type EnsureRoom struct {
	BoardID string
	Reply   chan *room.Room
}

// GetRoom returns the board's room or nil.
type GetRoom struct {
	BoardID string
	Reply   chan *room.Room
}

type RemoveRoom struct {
	BoardID string
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Ensure is a convenience wrapper around the EnsureRoom message.
func (h *Hub) Ensure(boardID string) *room.Room {
	reply := make(chan *room.Room, 1)
	h.inbox <- EnsureRoom{BoardID: boardID, Reply: reply}
	return <-reply
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if r := h.rooms[msg.BoardID]; r != nil {
					msg.Reply <- r
					break
				}
				r := room.NewRoom(h.ctx, msg.BoardID, h.log)
				h.rooms[msg.BoardID] = r
				h.log.Info("room opened", zap.String("board_id", msg.BoardID))
				msg.Reply <- r

			case GetRoom:
				msg.Reply <- h.rooms[msg.BoardID] // may be nil

			case RemoveRoom:
				if r := h.rooms[msg.BoardID]; r != nil {
					r.Inbox() <- room.Shutdown{}
					delete(h.rooms, msg.BoardID)
					h.log.Info("room closed", zap.String("board_id", msg.BoardID))
				}

			case ShutdownHub:
				for _, r := range h.rooms {
					r.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}
