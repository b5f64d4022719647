package sync

import (
	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/protocol"
)

// HandleEnvelope folds one broadcast into local state. The switch is
// exhaustive over the closed kind set; unknown kinds are logged and dropped.
// The client's own echoes (sender == self) are filtered here for item and
// presence-detail kinds; full presence snapshots come from the room itself.
func (s *Session) HandleEnvelope(env protocol.Envelope) {
	fromSelf := env.SenderID == s.userID

	switch env.Kind {
	case protocol.KindItemCreated:
		if fromSelf {
			return
		}
		var p protocol.ItemCreated
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.reducer.ApplyRemoteCreate(p.Item)

	case protocol.KindItemUpdated:
		if fromSelf {
			return
		}
		var p protocol.ItemUpdate
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.reducer.MergeRemote(p)

	case protocol.KindItemDeleted:
		if fromSelf {
			return
		}
		var p protocol.ItemDeleted
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.reducer.ApplyRemoteDelete(p.ID)
		s.presence.DropItemRefs(p.ID)
		s.throttle.CancelAllFor(p.ID)
		s.mu.Lock()
		delete(s.editing, p.ID)
		delete(s.drags, p.ID)
		delete(s.resizes, p.ID)
		s.mu.Unlock()

	case protocol.KindConnectionCreated:
		if fromSelf {
			return
		}
		var p protocol.ConnectionCreated
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.reducer.AddConnection(p.Connection)

	case protocol.KindConnectionDeleted:
		if fromSelf {
			return
		}
		var p protocol.ConnectionDeleted
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.reducer.RemoveConnection(p.ID)

	case protocol.KindPresence:
		var p protocol.Presence
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.presence.ApplySnapshot(p.Members)

	case protocol.KindFocus:
		if fromSelf {
			return
		}
		var p protocol.Focus
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.presence.SetFocus(env.SenderID, p.ItemID)

	case protocol.KindCursor:
		if fromSelf {
			return
		}
		var p protocol.Cursor
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.presence.SetCursor(env.SenderID, p.X, p.Y)

	case protocol.KindTextCursor:
		if fromSelf {
			return
		}
		var p protocol.TextCursor
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.presence.SetCaret(env.SenderID, p.ItemID, p.Field, p.Position)

	case protocol.KindUserLeft:
		var p protocol.UserLeft
		if err := protocol.DecodePayload(env, &p); err != nil {
			s.log.Warn("bad payload", zap.Error(err))
			return
		}
		s.presence.UserLeft(p.UserID)

	default:
		s.log.Warn("unknown message kind", zap.String("kind", string(env.Kind)))
	}
}
