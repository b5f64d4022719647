// Package protocol defines the wire format shared by the room server and the
// realtime client. Message kinds form a closed set; adding one means adding a
// constant here and a case to every dispatch switch.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pinwall/boardsync/internal/board"
)

type Kind string

const (
	KindItemCreated       Kind = "itemCreated"
	KindItemUpdated       Kind = "itemUpdated"
	KindItemDeleted       Kind = "itemDeleted"
	KindConnectionCreated Kind = "connectionCreated"
	KindConnectionDeleted Kind = "connectionDeleted"
	KindPresence          Kind = "presence"
	KindFocus             Kind = "focus"
	KindCursor            Kind = "cursor"
	KindTextCursor        Kind = "textCursor"
	KindUserLeft          Kind = "userLeft"
)

// Known reports whether k is a kind this build understands. The ws endpoint
// refuses to relay anything else.
func (k Kind) Known() bool {
	switch k {
	case KindItemCreated, KindItemUpdated, KindItemDeleted,
		KindConnectionCreated, KindConnectionDeleted,
		KindPresence, KindFocus, KindCursor, KindTextCursor, KindUserLeft:
		return true
	}
	return false
}

// Envelope is the single frame type on the wire. SenderID is stamped by the
// server from the authenticated connection, never trusted from the payload.
type Envelope struct {
	Kind     Kind            `json:"kind"`
	BoardID  string          `json:"board_id"`
	SenderID string          `json:"sender_id"`
	Payload  json.RawMessage `json:"payload"`
}

// ItemUpdate is a partial patch: nil fields were not touched by the sender.
// Receivers merge it field by field so a suppressed position does not block
// a color change riding in the same frame.
type ItemUpdate struct {
	Variant  board.Variant `json:"variant"`
	ID       string        `json:"id"`
	X        *float64      `json:"x,omitempty"`
	Y        *float64      `json:"y,omitempty"`
	Width    *float64      `json:"width,omitempty"`
	Height   *float64      `json:"height,omitempty"`
	Title    *string       `json:"title,omitempty"`
	Content  *string       `json:"content,omitempty"`
	Color    *string       `json:"color,omitempty"`
	Rotation *float64      `json:"rotation,omitempty"`
}

type ItemCreated struct {
	Item board.Item `json:"item"`
}

type ItemDeleted struct {
	Variant board.Variant `json:"variant"`
	ID      string        `json:"id"`
}

type ConnectionCreated struct {
	Connection board.Connection `json:"connection"`
}

type ConnectionDeleted struct {
	ID string `json:"id"`
}

// PresenceMember is one entry of a full room-membership snapshot.
type PresenceMember struct {
	UserID string `json:"user_id"`
	Color  string `json:"color"`
}

type Presence struct {
	Members []PresenceMember `json:"members"`
}

// Focus: empty ItemID means the sender stopped focusing anything.
type Focus struct {
	Variant board.Variant `json:"variant,omitempty"`
	ItemID  string        `json:"item_id"`
}

// Cursor: negative coordinates mean the sender's cursor left the board.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextCursor: negative Position means the sender's caret left the field.
type TextCursor struct {
	Variant  board.Variant `json:"variant"`
	ItemID   string        `json:"item_id"`
	Field    board.Field   `json:"field"`
	Position int           `json:"position"`
}

type UserLeft struct {
	UserID string `json:"user_id"`
}

// NewEnvelope marshals payload into an envelope of the given kind.
func NewEnvelope(kind Kind, boardID, senderID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{Kind: kind, BoardID: boardID, SenderID: senderID, Payload: raw}, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func DecodePayload(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return nil
}
