// Package sync is the client-side board synchronization engine: optimistic
// local state, echo suppression for the client's own broadcasts, debounced
// persistence for continuous gestures, undo/redo, and presence bookkeeping.
package sync

import (
	"context"
	"errors"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/protocol"
)

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrSelfConnection = errors.New("connection endpoints are the same item")
	ErrDuplicateLink  = errors.New("connection already exists")
	ErrNoLinkSource   = errors.New("no link in progress")
)

// ItemPatch is a partial mutation; nil fields are untouched.
type ItemPatch struct {
	X        *float64
	Y        *float64
	Width    *float64
	Height   *float64
	Title    *string
	Content  *string
	Color    *string
	Rotation *float64
}

// BoardSnapshot is a full server-side view of one board.
type BoardSnapshot struct {
	Items       []board.Item
	Connections []board.Connection
}

// Persistence is the consumed storage collaborator. Implementations live
// outside this package; the engine only needs these six calls.
type Persistence interface {
	CreateItem(ctx context.Context, item board.Item) (board.Item, error)
	PatchItem(ctx context.Context, variant board.Variant, id string, patch ItemPatch) error
	DeleteItem(ctx context.Context, variant board.Variant, id string) error
	FetchBoardSnapshot(ctx context.Context, boardID string) (BoardSnapshot, error)
	CreateConnection(ctx context.Context, boardID, fromID, toID string) (board.Connection, error)
	DeleteConnection(ctx context.Context, id string) error
}

// Transport is the outbound realtime surface. Sends are fire-and-forget;
// a dropped frame is recovered by the periodic full resync, never retried.
type Transport interface {
	SendItemCreated(item board.Item)
	SendItemUpdated(update protocol.ItemUpdate)
	SendItemDeleted(variant board.Variant, id string)
	SendConnectionCreated(conn board.Connection)
	SendConnectionDeleted(id string)
	SendFocus(variant board.Variant, itemID string)
	SendCursor(x, y float64)
	SendTextCursor(variant board.Variant, itemID string, field board.Field, offset int)
}

// NopTransport satisfies Transport for boards that do not collaborate
// (no owning project); every send is a no-op.
type NopTransport struct{}

func (NopTransport) SendItemCreated(board.Item)                                  {}
func (NopTransport) SendItemUpdated(protocol.ItemUpdate)                         {}
func (NopTransport) SendItemDeleted(board.Variant, string)                       {}
func (NopTransport) SendConnectionCreated(board.Connection)                      {}
func (NopTransport) SendConnectionDeleted(string)                                {}
func (NopTransport) SendFocus(board.Variant, string)                             {}
func (NopTransport) SendCursor(float64, float64)                                 {}
func (NopTransport) SendTextCursor(board.Variant, string, board.Field, int)      {}
