package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/hub"
	"github.com/pinwall/boardsync/internal/store"
	boardsync "github.com/pinwall/boardsync/internal/sync"
)

// memStore is an in-memory Persistence for handler tests. Errors mirror the
// store package sentinels so the handlers' status mapping is exercised.
type memStore struct {
	items map[string]board.Item
	conns map[string]board.Connection
	seq   int
}

func newMemStore() *memStore {
	return &memStore{
		items: make(map[string]board.Item),
		conns: make(map[string]board.Connection),
	}
}

func (m *memStore) nextID() string {
	m.seq++
	return fmt.Sprintf("id-%d", m.seq)
}

func (m *memStore) CreateItem(_ context.Context, item board.Item) (board.Item, error) {
	item.ID = m.nextID()
	m.items[item.ID] = item
	return item, nil
}

func (m *memStore) PatchItem(_ context.Context, _ board.Variant, id string, patch boardsync.ItemPatch) error {
	item, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.X != nil {
		item.X = *patch.X
	}
	if patch.Y != nil {
		item.Y = *patch.Y
	}
	if patch.Content != nil {
		item.Content = *patch.Content
	}
	m.items[id] = item
	return nil
}

func (m *memStore) DeleteItem(_ context.Context, _ board.Variant, id string) error {
	if _, ok := m.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memStore) FetchBoardSnapshot(_ context.Context, boardID string) (boardsync.BoardSnapshot, error) {
	var snap boardsync.BoardSnapshot
	for _, it := range m.items {
		if it.BoardID == boardID {
			snap.Items = append(snap.Items, it)
		}
	}
	for _, c := range m.conns {
		if c.BoardID == boardID {
			snap.Connections = append(snap.Connections, c)
		}
	}
	return snap, nil
}

func (m *memStore) CreateConnection(_ context.Context, boardID, fromID, toID string) (board.Connection, error) {
	if fromID == toID {
		return board.Connection{}, store.ErrSelfConnection
	}
	for _, c := range m.conns {
		if c.SamePair(fromID, toID) {
			return board.Connection{}, store.ErrDuplicateConnection
		}
	}
	conn := board.Connection{ID: m.nextID(), BoardID: boardID, FromItemID: fromID, ToItemID: toID}
	m.conns[conn.ID] = conn
	return conn, nil
}

func (m *memStore) DeleteConnection(_ context.Context, id string) error {
	if _, ok := m.conns[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.conns, id)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ms := newMemStore()
	h := hub.NewHub(ctx, zap.NewNop())
	srv := httptest.NewServer(SetupRoutes(h, ms, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, ms
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateItemReturns201(t *testing.T) {
	srv, ms := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/boards/b1/items",
		`{"variant":"note","x":10,"y":20,"content":"hello"}`)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, ms.items, 1)
	for _, it := range ms.items {
		assert.Equal(t, "b1", it.BoardID)
		assert.Equal(t, "hello", it.Content)
	}
}

func TestCreateItemRejectsUnknownVariant(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/boards/b1/items",
		`{"variant":"widget","x":0,"y":0}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPatchUnknownItemIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPatch, srv.URL+"/items/note/nope", `{"x":5}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDuplicateConnectionIs409(t *testing.T) {
	srv, ms := newTestServer(t)
	ms.items["i1"] = board.Item{ID: "i1", BoardID: "b1"}
	ms.items["i2"] = board.Item{ID: "i2", BoardID: "b1"}

	first := doJSON(t, http.MethodPost, srv.URL+"/boards/b1/connections",
		`{"from_item_id":"i1","to_item_id":"i2"}`)
	require.Equal(t, http.StatusCreated, first.StatusCode)

	// Reverse order counts as the same pair.
	dup := doJSON(t, http.MethodPost, srv.URL+"/boards/b1/connections",
		`{"from_item_id":"i2","to_item_id":"i1"}`)
	assert.Equal(t, http.StatusConflict, dup.StatusCode)
}

func TestSelfConnectionIs409(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/boards/b1/connections",
		`{"from_item_id":"i1","to_item_id":"i1"}`)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSnapshotReturnsBoardContents(t *testing.T) {
	srv, ms := newTestServer(t)
	ms.items["i1"] = board.Item{ID: "i1", BoardID: "b1", Variant: board.VariantNote}
	ms.items["i2"] = board.Item{ID: "i2", BoardID: "other", Variant: board.VariantNote}

	resp := doJSON(t, http.MethodGet, srv.URL+"/boards/b1/snapshot", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
