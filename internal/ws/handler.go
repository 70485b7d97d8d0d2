// Package ws bridges websocket connections to session coordinators. It is
// the SessionTransport: reliable-ordered delivery per peer, connect and
// disconnect notification, nothing else.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"dangerroom/backend/internal/hub"
	"dangerroom/backend/internal/lobbycode"
	"dangerroom/backend/internal/session"
	"dangerroom/backend/pkg/types"
)

// outboxSize bounds how far a peer may fall behind before the coordinator
// drops it.
const outboxSize = 16

func Handler(h *hub.Hub, writeTimeout time.Duration, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
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

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerMessage, outboxSize)
		joinReply := make(chan session.JoinResult, 1)
		sess.Inbox() <- session.Join{Outbox: out, Reply: joinReply}
		res := <-joinReply
		if res.Err != nil {
			status := websocket.StatusPolicyViolation
			if errors.Is(res.Err, session.ErrSessionEnded) {
				status = websocket.StatusGoingAway
			}
			conn.Close(status, res.Err.Error())
			return
		}
		defer func() { sess.Inbox() <- session.Leave{Peer: res.Peer} }()

		log.Info("peer connected",
			zap.String("code", lobbycode.Normalize(code)),
			zap.Int64("peer", int64(res.Peer)),
			zap.String("role", res.Role.String()))

		// Writer goroutine drains the coordinator's outbox.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
			// Outbox closed: the session is gone. Let the reader see a close.
			conn.Close(websocket.StatusGoingAway, "session closed")
		}()

		// Reader loop.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Anything else is a lost peer; the deferred Leave handles it.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			msg, ok := toSessionMsg(res.Peer, cm)
			if !ok {
				writeError(r.Context(), conn, "unknown message type")
				continue
			}
			sess.Inbox() <- msg
		}
	}
}

func toSessionMsg(peer session.PeerID, m types.ClientMessage) (session.Msg, bool) {
	switch m.Type {
	case types.MsgConnectCircuit:
		return session.ConnectCircuit{
			Peer:    peer,
			Circuit: session.CircuitID(m.Circuit),
			Hazard:  session.HazardID(m.Hazard),
		}, true
	case types.MsgDisconnectCircuit:
		return session.DisconnectCircuit{Peer: peer}, true
	case types.MsgLevelComplete:
		return session.LevelComplete{Peer: peer}, true
	default:
		return nil, false
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: types.MsgError, Error: reason})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
