// Package client is the peer-side half of the session protocol: it joins a
// session by lobby code, maintains read-only shadows of the replicated
// fields and surfaces session events to the presentation layer.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"dangerroom/backend/internal/lobbycode"
	"dangerroom/backend/internal/session"
	"dangerroom/backend/pkg/types"
)

// Callbacks are invoked on the client's processing loop and must not block.
//
// OnCircuitStateChanged fires once per (circuit, hazard) transition on every
// peer; the presentation layer must itself check IsRunner before acting on
// it — an Operator-side reaction desyncs the game.
type Callbacks struct {
	OnRoleAssigned        func(role session.Role)
	OnSessionStarted      func()
	OnSessionEnded        func(outcome string)
	OnTimerUpdated        func(remaining float64)
	OnCircuitStateChanged func(circuit session.CircuitID, hazard session.HazardID)
}

type Options struct {
	// JoinTimeout bounds session resolution so a dead relay or an unclaimed
	// code cannot hang the dial indefinitely.
	JoinTimeout  time.Duration
	TickInterval time.Duration
	Now          func() time.Time
}

func (o *Options) withDefaults() {
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 10 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 250 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Client is a connected session peer. One internal goroutine applies all
// inbound updates and drives the local tick, so shadow state never races;
// queries take a read lock on a mirrored snapshot.
type Client struct {
	conn *websocket.Conn
	cb   Callbacks
	opts Options
	log  *zap.Logger

	inbound chan types.ServerMessage
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	peerID session.PeerID
	role   session.Role

	runnerPeer   *session.ReplicatedValue[session.PeerID]
	operatorPeer *session.ReplicatedValue[session.PeerID]
	circuit      *session.ReplicatedValue[session.CircuitID]
	hazard       *session.ReplicatedValue[session.HazardID]

	startMS     int64
	durationSec float64
	active      bool
	started     bool
	ended       bool
	closeErr    error

	roleCh chan session.Role
}

// Dial joins the session behind code. It resolves once the server assigns a
// role, or fails after Options.JoinTimeout. Cancelling ctx before resolution
// aborts the attempt; after resolution it is equivalent to Close.
func Dial(ctx context.Context, baseURL, code string, cb Callbacks, opts Options, log *zap.Logger) (*Client, error) {
	if !lobbycode.IsValid(code) {
		return nil, fmt.Errorf("%w: %q", lobbycode.ErrInvalidCode, code)
	}
	opts.withDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, opts.JoinTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/ws?code=%s", baseURL, lobbycode.Normalize(code))
	conn, _, err := websocket.Dial(dialCtx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("session transport: %w", err)
	}

	c := newClient(conn, cb, opts, log)
	go c.readLoop()
	go c.loop()

	// Resolution means the server admitted us and told us who we are.
	select {
	case role := <-c.roleCh:
		log.Info("joined session", zap.String("role", role.String()))
		return c, nil
	case <-c.done:
		return nil, fmt.Errorf("join rejected: %w", c.closeReason())
	case <-dialCtx.Done():
		c.Close()
		return nil, fmt.Errorf("join not resolved: %w", dialCtx.Err())
	}
}

func newClient(conn *websocket.Conn, cb Callbacks, opts Options, log *zap.Logger) *Client {
	opts.withDefaults()
	return &Client{
		conn:         conn,
		cb:           cb,
		opts:         opts,
		log:          log,
		inbound:      make(chan types.ServerMessage, 32),
		done:         make(chan struct{}),
		peerID:       session.NoPeer,
		runnerPeer:   session.NewReplica(types.FieldRunnerPeer, session.NoPeer),
		operatorPeer: session.NewReplica(types.FieldOperatorPeer, session.NoPeer),
		circuit:      session.NewReplica(types.FieldCircuit, session.CircuitNone),
		hazard:       session.NewReplica(types.FieldHazard, session.HazardNone),
		roleCh:       make(chan session.Role, 1),
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			c.closeErr = err
			c.mu.Unlock()
			close(c.inbound)
			return
		}
		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("dropping malformed server message", zap.Error(err))
			continue
		}
		c.inbound <- msg
	}
}

// loop is the single mutator of shadow state: it applies inbound replicated
// updates and drives the local per-tick timer callback.
func (c *Client) loop() {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	defer c.once.Do(func() { close(c.done) })

	for {
		select {
		case msg, ok := <-c.inbound:
			if !ok {
				return
			}
			c.handleMessage(msg)

		case <-ticker.C:
			c.tick(c.opts.Now())
		}
	}
}

func (c *Client) handleMessage(msg types.ServerMessage) {
	switch msg.Type {
	case types.MsgRoleAssigned:
		role := parseRole(msg.Role)
		c.mu.Lock()
		c.peerID = session.PeerID(msg.PeerID)
		c.role = role
		c.mu.Unlock()
		if c.cb.OnRoleAssigned != nil {
			c.cb.OnRoleAssigned(role)
		}
		select {
		case c.roleCh <- role:
		default:
		}

	case types.MsgStateUpdate:
		c.applyField(msg.Field, msg.Value)

	case types.MsgCircuitChanged:
		if c.cb.OnCircuitStateChanged != nil {
			c.cb.OnCircuitStateChanged(session.CircuitID(msg.Circuit), session.HazardID(msg.Hazard))
		}

	case types.MsgSessionStarted:
		c.mu.Lock()
		alreadyStarted := c.started
		c.startMS = msg.StartTimeMS
		c.durationSec = msg.DurationSec
		c.active = true
		c.started = true
		c.mu.Unlock()
		if !alreadyStarted && c.cb.OnSessionStarted != nil {
			c.cb.OnSessionStarted()
		}

	case types.MsgSessionEnded:
		c.mu.Lock()
		alreadyEnded := c.ended
		c.active = false
		c.ended = true
		c.mu.Unlock()
		if !alreadyEnded && c.cb.OnSessionEnded != nil {
			c.cb.OnSessionEnded(msg.Outcome)
		}

	case types.MsgError:
		c.log.Warn("server error", zap.String("reason", msg.Error))
	}
}

// applyField installs one replicated scalar. The circuit and hazard fields
// arrive as two independent updates, so a snapshot between them can pair a
// fresh circuit with a stale hazard; consumers needing the pair atomically
// use OnCircuitStateChanged instead.
func (c *Client) applyField(field string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch field {
	case types.FieldRunnerPeer:
		c.runnerPeer.Apply(session.PeerID(value))
	case types.FieldOperatorPeer:
		c.operatorPeer.Apply(session.PeerID(value))
	case types.FieldCircuit:
		c.circuit.Apply(session.CircuitID(value))
	case types.FieldHazard:
		c.hazard.Apply(session.HazardID(value))
	default:
		c.log.Debug("ignoring unknown replicated field", zap.String("field", field))
	}
}

// tick derives the remaining time locally from the replicated clock pair;
// nothing crosses the network per tick.
func (c *Client) tick(now time.Time) {
	c.mu.RLock()
	active := c.active
	remaining := c.remainingLocked(now)
	c.mu.RUnlock()
	if !active {
		return
	}
	if c.cb.OnTimerUpdated != nil {
		c.cb.OnTimerUpdated(remaining)
	}
}

func (c *Client) remainingLocked(now time.Time) float64 {
	if !c.active {
		return 0
	}
	elapsed := float64(now.UnixMilli()-c.startMS) / 1000
	remaining := c.durationSec - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ConnectCircuit asks the authority to activate a circuit and hazard.
func (c *Client) ConnectCircuit(ctx context.Context, circuit session.CircuitID, hazard session.HazardID) error {
	return c.send(ctx, types.ClientMessage{
		Type:    types.MsgConnectCircuit,
		Circuit: int(circuit),
		Hazard:  int(hazard),
	})
}

// DisconnectCircuit clears the active circuit and hazard.
func (c *Client) DisconnectCircuit(ctx context.Context) error {
	return c.send(ctx, types.ClientMessage{
		Type:    types.MsgDisconnectCircuit,
		Circuit: int(session.CircuitNone),
		Hazard:  int(session.HazardNone),
	})
}

// CompleteLevel signals that the runner reached the exit.
func (c *Client) CompleteLevel(ctx context.Context) error {
	return c.send(ctx, types.ClientMessage{
		Type:    types.MsgLevelComplete,
		Circuit: int(session.CircuitNone),
		Hazard:  int(session.HazardNone),
	})
}

func (c *Client) send(ctx context.Context, msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("session transport: %w", err)
	}
	return nil
}

func (c *Client) Role() session.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Client) PeerID() session.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}

func (c *Client) IsRunner() bool { return c.Role() == session.RoleRunner }

// RemainingTime derives the countdown from the replicated clock.
func (c *Client) RemainingTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remainingLocked(c.opts.Now())
}

// CircuitState reads the shadow pair. See applyField for its consistency
// caveat.
func (c *Client) CircuitState() (session.CircuitID, session.HazardID) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.circuit.Get(), c.hazard.Get()
}

// Done closes when the connection or session is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// closeReason surfaces the underlying transport error, including the
// server's close reason (e.g. "session is full"), verbatim.
func (c *Client) closeReason() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return session.ErrPeerLost
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func parseRole(s string) session.Role {
	switch s {
	case "runner":
		return session.RoleRunner
	case "operator":
		return session.RoleOperator
	default:
		return session.RoleNone
	}
}
