// Package realtime is the client side of the wire: one Client per mounted
// board view, joined to the board's room for the life of the view and torn
// down with it. It implements sync.Transport for outbound sends and feeds
// inbound envelopes to a single callback (the session's dispatch switch).
package realtime

import (
	"context"
	"encoding/json"
	"net/url"
	stdsync "sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/protocol"
)

const (
	sendQueueSize  = 64
	writeTimeout   = 3 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

type Options struct {
	// OnEnvelope receives every inbound frame. Called from the read loop.
	OnEnvelope func(protocol.Envelope)
	// OnResync fires after every successful (re)connect. There is no
	// incremental catch-up: the owner refetches the full board.
	OnResync func()
	Log      *zap.Logger
}

type Client struct {
	baseURL string
	boardID string
	userID  string
	opts    Options
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	out    chan protocol.Envelope
	wg     stdsync.WaitGroup
}

// Dial starts the connection loop and returns immediately; the client keeps
// reconnecting with backoff until Close.
func Dial(parent context.Context, baseURL, boardID, userID string, opts Options) *Client {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL: baseURL,
		boardID: boardID,
		userID:  userID,
		opts:    opts,
		log:     log.With(zap.String("board_id", boardID), zap.String("user_id", userID)),
		ctx:     ctx,
		cancel:  cancel,
		out:     make(chan protocol.Envelope, sendQueueSize),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// Close leaves the room and stops the loops. Idempotent.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Client) wsURL() string {
	q := url.Values{}
	q.Set("board", c.boardID)
	q.Set("user", c.userID)
	return c.baseURL + "/ws?" + q.Encode()
}

func (c *Client) run() {
	defer c.wg.Done()
	backoff := initialBackoff
	for {
		if c.ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.Dial(c.ctx, c.wsURL(), nil)
		if err != nil {
			c.log.Debug("dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff
		if c.opts.OnResync != nil {
			c.opts.OnResync()
		}
		c.pump(conn)
	}
}

// pump runs one connection until it dies: a writer goroutine drains the
// send queue while the read loop delivers inbound envelopes.
func (c *Client) pump(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-c.out:
				payload, err := json.Marshal(env)
				if err != nil {
					c.log.Error("encode envelope", zap.Error(err))
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err = conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.log.Debug("read ended", zap.Error(err))
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("bad frame", zap.Error(err))
			continue
		}
		if c.opts.OnEnvelope != nil {
			c.opts.OnEnvelope(env)
		}
	}
}

// send queues an envelope, fire-and-forget. A full queue drops the frame;
// the periodic resync covers the loss.
func (c *Client) send(kind protocol.Kind, payload any) {
	env, err := protocol.NewEnvelope(kind, c.boardID, c.userID, payload)
	if err != nil {
		c.log.Error("encode payload", zap.Error(err))
		return
	}
	select {
	case c.out <- env:
	default:
		c.log.Debug("send queue full, dropping", zap.String("kind", string(kind)))
	}
}

// --- sync.Transport ---

func (c *Client) SendItemCreated(item board.Item) {
	c.send(protocol.KindItemCreated, protocol.ItemCreated{Item: item})
}

func (c *Client) SendItemUpdated(update protocol.ItemUpdate) {
	c.send(protocol.KindItemUpdated, update)
}

func (c *Client) SendItemDeleted(variant board.Variant, id string) {
	c.send(protocol.KindItemDeleted, protocol.ItemDeleted{Variant: variant, ID: id})
}

func (c *Client) SendConnectionCreated(conn board.Connection) {
	c.send(protocol.KindConnectionCreated, protocol.ConnectionCreated{Connection: conn})
}

func (c *Client) SendConnectionDeleted(id string) {
	c.send(protocol.KindConnectionDeleted, protocol.ConnectionDeleted{ID: id})
}

func (c *Client) SendFocus(variant board.Variant, itemID string) {
	c.send(protocol.KindFocus, protocol.Focus{Variant: variant, ItemID: itemID})
}

func (c *Client) SendCursor(x, y float64) {
	c.send(protocol.KindCursor, protocol.Cursor{X: x, Y: y})
}

func (c *Client) SendTextCursor(variant board.Variant, itemID string, field board.Field, offset int) {
	c.send(protocol.KindTextCursor, protocol.TextCursor{
		Variant: variant, ItemID: itemID, Field: field, Position: offset,
	})
}
