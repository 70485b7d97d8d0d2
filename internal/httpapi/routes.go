package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dangerroom/backend/internal/hub"
	"dangerroom/backend/internal/store"
	"dangerroom/backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, st *store.Store, writeTimeout time.Duration, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/sessions", CreateSession(h, log))
	r.Get("/sessions/{code}", GetSessionState(h))
	r.Get("/results", RecentResults(st, log))
	r.Get("/ws", ws.Handler(h, writeTimeout, log))
	r.Get("/healthz", Healthz)
	return r
}
