package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/store"
	boardsync "github.com/pinwall/boardsync/internal/sync"
)

// API exposes the persistence collaborator over REST. The realtime engine
// does not go through these routes itself; they serve the surrounding CRUD
// surface and make the store reachable for tooling.
type API struct {
	store boardsync.Persistence
	log   *zap.Logger
}

type itemRequest struct {
	Variant  board.Variant `json:"variant"`
	X        float64       `json:"x"`
	Y        float64       `json:"y"`
	Width    *float64      `json:"width,omitempty"`
	Height   *float64      `json:"height,omitempty"`
	Title    *string       `json:"title,omitempty"`
	Content  string        `json:"content"`
	Color    *string       `json:"color,omitempty"`
	Rotation *float64      `json:"rotation,omitempty"`
	ImageURL string        `json:"image_url,omitempty"`
}

type patchRequest struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Content  *string  `json:"content,omitempty"`
	Color    *string  `json:"color,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
}

type connectionRequest struct {
	FromItemID string `json:"from_item_id"`
	ToItemID   string `json:"to_item_id"`
}

func (a *API) CreateItem(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	switch req.Variant {
	case board.VariantNote, board.VariantCard, board.VariantImage:
	default:
		http.Error(w, "unknown variant", http.StatusBadRequest)
		return
	}
	item := board.Item{
		Variant:  req.Variant,
		BoardID:  boardID,
		X:        req.X,
		Y:        req.Y,
		Width:    req.Width,
		Height:   req.Height,
		Title:    req.Title,
		Content:  req.Content,
		Color:    req.Color,
		Rotation: req.Rotation,
		ImageURL: req.ImageURL,
	}
	created, err := a.store.CreateItem(r.Context(), item)
	if err != nil {
		a.log.Error("create item", zap.Error(err))
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) PatchItem(w http.ResponseWriter, r *http.Request) {
	variant := board.Variant(chi.URLParam(r, "variant"))
	id := chi.URLParam(r, "id")
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	patch := boardsync.ItemPatch{
		X: req.X, Y: req.Y,
		Width: req.Width, Height: req.Height,
		Title: req.Title, Content: req.Content,
		Color: req.Color, Rotation: req.Rotation,
	}
	if err := a.store.PatchItem(r.Context(), variant, id, patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		a.log.Error("patch item", zap.String("id", id), zap.Error(err))
		http.Error(w, "patch failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) DeleteItem(w http.ResponseWriter, r *http.Request) {
	variant := board.Variant(chi.URLParam(r, "variant"))
	id := chi.URLParam(r, "id")
	if err := a.store.DeleteItem(r.Context(), variant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		a.log.Error("delete item", zap.String("id", id), zap.Error(err))
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	snap, err := a.store.FetchBoardSnapshot(r.Context(), boardID)
	if err != nil {
		a.log.Error("fetch snapshot", zap.String("board_id", boardID), zap.Error(err))
		http.Error(w, "fetch failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items       []board.Item       `json:"items"`
		Connections []board.Connection `json:"connections"`
	}{snap.Items, snap.Connections})
}

func (a *API) CreateConnection(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	conn, err := a.store.CreateConnection(r.Context(), boardID, req.FromItemID, req.ToItemID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSelfConnection), errors.Is(err, store.ErrDuplicateConnection):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			a.log.Error("create connection", zap.Error(err))
			http.Error(w, "create failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (a *API) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.store.DeleteConnection(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		a.log.Error("delete connection", zap.String("id", id), zap.Error(err))
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
