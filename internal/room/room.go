// Package room hosts one board's realtime membership. A Room is an actor:
// all joins, leaves and broadcasts for one board are serialized through its
// inbox, while rooms for different boards run fully in parallel.
package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/protocol"
)

type Msg interface{ isRoomMsg() }

// Join registers a connection. Outbox is where this connection wants to
// receive envelopes; the joiner immediately gets a presence snapshot.
type Join struct {
	UserID string
	ConnID string
	Outbox chan protocol.Envelope
}

type Leave struct{ ConnID string }

// Broadcast relays an envelope to every member except ExcludeConnID
// (normally the sender's own connection).
type Broadcast struct {
	Env           protocol.Envelope
	ExcludeConnID string
}

// Members asks for the current presence snapshot.
type Members struct {
	Reply chan []board.PresenceEntry
}

type Shutdown struct{}

func (Join) isRoomMsg()      {}
func (Leave) isRoomMsg()     {}
func (Broadcast) isRoomMsg() {}
func (Members) isRoomMsg()   {}
func (Shutdown) isRoomMsg()  {}

type member struct {
	userID string
	outbox chan protocol.Envelope
}

type Room struct {
	boardID string
	inbox   chan Msg
	members map[string]member // keyed by connID
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
}

func NewRoom(parent context.Context, boardID string, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	r := &Room{
		boardID: boardID,
		inbox:   make(chan Msg, 64),
		members: make(map[string]member),
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With(zap.String("board_id", boardID)),
	}
	go r.loop()
	return r
}

// Inbox exposes the actor's mailbox to the ws layer and tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.members[msg.ConnID] = member{userID: msg.UserID, outbox: msg.Outbox}
				r.log.Debug("joined", zap.String("user_id", msg.UserID), zap.String("conn_id", msg.ConnID))
				r.broadcastPresence()

			case Leave:
				mem, ok := r.members[msg.ConnID]
				if !ok {
					break
				}
				delete(r.members, msg.ConnID)
				// The room is the outbox's only sender, so this close is safe
				// and lets the connection's writer goroutine exit.
				close(mem.outbox)
				r.log.Debug("left", zap.String("user_id", mem.userID), zap.String("conn_id", msg.ConnID))
				if !r.userPresent(mem.userID) {
					r.broadcastUserLeft(mem.userID)
				}
				r.broadcastPresence()

			case Broadcast:
				r.broadcast(msg.Env, msg.ExcludeConnID)

			case Members:
				msg.Reply <- r.presenceSnapshot()

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, mem := range r.members {
		close(mem.outbox)
		delete(r.members, id)
	}
	r.cancel()
}

// broadcast fans the envelope out to all members except exclude. A member
// whose outbox is full is slow beyond recovery and gets dropped; the send is
// otherwise fire-and-forget.
func (r *Room) broadcast(env protocol.Envelope, excludeConnID string) {
	var dropped []string
	for id, mem := range r.members {
		if id == excludeConnID {
			continue
		}
		select {
		case mem.outbox <- env:
		default:
			close(mem.outbox)
			delete(r.members, id)
			dropped = append(dropped, mem.userID)
			r.log.Warn("dropped slow member", zap.String("user_id", mem.userID))
		}
	}
	if len(dropped) > 0 {
		for _, userID := range dropped {
			if !r.userPresent(userID) {
				r.broadcastUserLeft(userID)
			}
		}
		r.broadcastPresence()
	}
}

func (r *Room) userPresent(userID string) bool {
	for _, mem := range r.members {
		if mem.userID == userID {
			return true
		}
	}
	return false
}

// presenceSnapshot lists each distinct user once, with their display color.
func (r *Room) presenceSnapshot() []board.PresenceEntry {
	seen := make(map[string]bool, len(r.members))
	out := make([]board.PresenceEntry, 0, len(r.members))
	for _, mem := range r.members {
		if seen[mem.userID] {
			continue
		}
		seen[mem.userID] = true
		out = append(out, board.PresenceEntry{
			UserID: mem.userID,
			Color:  board.ColorFor(mem.userID),
		})
	}
	return out
}

func (r *Room) broadcastPresence() {
	members := make([]protocol.PresenceMember, 0, len(r.members))
	for _, e := range r.presenceSnapshot() {
		members = append(members, protocol.PresenceMember{UserID: e.UserID, Color: e.Color})
	}
	env, err := protocol.NewEnvelope(protocol.KindPresence, r.boardID, "", protocol.Presence{Members: members})
	if err != nil {
		r.log.Error("encode presence", zap.Error(err))
		return
	}
	r.broadcast(env, "")
}

func (r *Room) broadcastUserLeft(userID string) {
	env, err := protocol.NewEnvelope(protocol.KindUserLeft, r.boardID, "", protocol.UserLeft{UserID: userID})
	if err != nil {
		r.log.Error("encode userLeft", zap.Error(err))
		return
	}
	r.broadcast(env, "")
}
