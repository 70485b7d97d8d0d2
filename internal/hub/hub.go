// Package hub owns the set of live sessions, keyed by lobby code.
package hub

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"go.uber.org/zap"

	"dangerroom/backend/internal/lobbycode"
	"dangerroom/backend/internal/session"
	"dangerroom/backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

// CreateSession allocates a fresh session id, derives its lobby code and
// starts a coordinator for it.
type CreateSession struct {
	Reply chan CreateResult
}

type CreateResult struct {
	Code    string
	Session *session.Coordinator
	Err     error
}

type GetSession struct {
	Code  string
	Reply chan *session.Coordinator
}

type RemoveSession struct {
	Code string
}

type ShutdownHub struct{}

// sessionEnded is posted internally when a coordinator reaches its terminal
// state.
type sessionEnded struct {
	Code      string
	Outcome   session.Outcome
	StartedAt time.Time
	EndedAt   time.Time
	SessionID uint64
}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}
func (sessionEnded) isHubMsg()  {}

type entry struct {
	sess      *session.Coordinator
	id        uint64
	createdAt time.Time
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*entry

	cfg    session.Config
	store  *store.Store // nil disables archiving
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg session.Config, st *store.Store, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*entry),
		cfg:      cfg,
		store:    st,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.create()

			case GetSession:
				code := lobbycode.Normalize(msg.Code)
				if e := h.sessions[code]; e != nil {
					msg.Reply <- e.sess
				} else {
					msg.Reply <- nil
				}

			case RemoveSession:
				h.remove(lobbycode.Normalize(msg.Code))

			case sessionEnded:
				h.archive(msg)
				h.remove(msg.Code)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create() CreateResult {
	var code string
	var id uint64
	for {
		var err error
		if id, err = randomSessionID(); err != nil {
			return CreateResult{Err: err}
		}
		code = lobbycode.Encode(id)
		if h.sessions[code] == nil {
			break
		}
		h.log.Warn("lobby code collision, regenerating", zap.String("code", code))
	}

	e := &entry{id: id, createdAt: time.Now()}
	cfg := h.cfg
	capturedCode := code
	cfg.OnEnded = func(outcome session.Outcome) {
		// Runs on the coordinator goroutine; hand off to the hub loop.
		h.inbox <- sessionEnded{
			Code:      capturedCode,
			Outcome:   outcome,
			StartedAt: e.createdAt,
			EndedAt:   time.Now(),
			SessionID: id,
		}
	}
	e.sess = session.NewCoordinator(h.ctx, cfg, session.Callbacks{}, h.log.Named("session").With(zap.String("code", code)))
	h.sessions[code] = e

	h.log.Info("session created", zap.String("code", code))
	return CreateResult{Code: code, Session: e.sess}
}

func (h *Hub) remove(code string) {
	e := h.sessions[code]
	if e == nil {
		return
	}
	delete(h.sessions, code)
	e.sess.Inbox() <- session.Shutdown{}
}

func (h *Hub) archive(end sessionEnded) {
	if h.store == nil {
		return
	}
	rec := store.SessionRecord{
		Code:        end.Code,
		SessionID:   int64(end.SessionID),
		Outcome:     string(end.Outcome),
		DurationSec: end.EndedAt.Sub(end.StartedAt).Seconds(),
		StartedAt:   end.StartedAt,
		EndedAt:     end.EndedAt,
	}
	// Database latency must not stall session management.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.store.SaveResult(ctx, rec); err != nil {
			h.log.Error("failed to archive session", zap.String("code", end.Code), zap.Error(err))
		}
	}()
}

func (h *Hub) shutdown() {
	for code, e := range h.sessions {
		e.sess.Inbox() <- session.Shutdown{}
		delete(h.sessions, code)
	}
	h.cancel()
}

// randomSessionID draws an id below lobbycode.Capacity so the derived code
// decodes back to the same id.
func randomSessionID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]) % lobbycode.Capacity, nil
}
