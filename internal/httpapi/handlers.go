package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dangerroom/backend/internal/hub"
	"dangerroom/backend/internal/lobbycode"
	"dangerroom/backend/internal/session"
	"dangerroom/backend/internal/store"
	"dangerroom/backend/pkg/types"
)

// CreateSession hosts a new session and returns its lobby code for
// out-of-band sharing.
func CreateSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan hub.CreateResult, 1)
		h.Inbox() <- hub.CreateSession{Reply: reply}
		res := <-reply
		if res.Err != nil {
			log.Error("failed to create session", zap.Error(res.Err))
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: res.Code})
	}
}

// GetSessionState serves a read-only snapshot of a session.
func GetSessionState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if !lobbycode.IsValid(code) {
			http.Error(w, "invalid lobby code", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Coordinator, 1)
		h.Inbox() <- hub.GetSession{Code: code, Reply: reply}
		sess := <-reply
		if sess == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		viewReply := make(chan session.View, 1)
		sess.Inbox() <- session.GetState{Reply: viewReply}
		select {
		case v := <-viewReply:
			writeJSON(w, http.StatusOK, types.SessionView{
				Code:         lobbycode.Normalize(code),
				Phase:        string(v.Phase),
				NumPeers:     v.NumPeers,
				RunnerPeer:   int64(v.Runner),
				OperatorPeer: int64(v.Operator),
				Circuit:      int(v.Circuit),
				Hazard:       int(v.Hazard),
				TimerActive:  v.TimerActive,
				RemainingSec: v.Remaining,
			})
		case <-time.After(2 * time.Second):
			http.Error(w, "session unresponsive", http.StatusServiceUnavailable)
		}
	}
}

// RecentResults lists archived session outcomes. Returns 404 when the server
// runs without a database.
func RecentResults(st *store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			http.Error(w, "session history disabled", http.StatusNotFound)
			return
		}
		recs, err := st.RecentResults(r.Context(), 50)
		if err != nil {
			log.Error("failed to list session results", zap.Error(err))
			http.Error(w, "failed to list results", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
