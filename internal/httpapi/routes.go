package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/hub"
	boardsync "github.com/pinwall/boardsync/internal/sync"
	"github.com/pinwall/boardsync/internal/ws"
)

func SetupRoutes(h *hub.Hub, store boardsync.Persistence, log *zap.Logger) http.Handler {
	api := &API{store: store, log: log}

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log))

	r.Route("/boards/{boardID}", func(r chi.Router) {
		r.Get("/snapshot", api.GetSnapshot)
		r.Post("/items", api.CreateItem)
		r.Post("/connections", api.CreateConnection)
	})
	r.Patch("/items/{variant}/{id}", api.PatchItem)
	r.Delete("/items/{variant}/{id}", api.DeleteItem)
	r.Delete("/connections/{id}", api.DeleteConnection)
	return r
}
