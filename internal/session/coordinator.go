package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dangerroom/backend/pkg/types"
)

type Phase string

const (
	PhaseWaiting Phase = "waiting_for_peers"
	PhaseActive  Phase = "roles_complete"
	PhaseEnded   Phase = "ended"
)

// Msg is the coordinator inbox message set. All session state lives on the
// coordinator goroutine; the websocket layer and tests talk to it only
// through these messages.
type Msg interface{ isSessionMsg() }

// Join admits a peer. The outbox receives every server message addressed to
// the peer; the reply carries its id and role, or the admission error.
type Join struct {
	Outbox chan types.ServerMessage
	Reply  chan JoinResult
}

type JoinResult struct {
	Peer PeerID
	Role Role
	Err  error
}

type Leave struct{ Peer PeerID }

type ConnectCircuit struct {
	Peer    PeerID
	Circuit CircuitID
	Hazard  HazardID
}

type DisconnectCircuit struct{ Peer PeerID }

// LevelComplete is the external "runner reached the exit" signal.
type LevelComplete struct{ Peer PeerID }

// Tick drives the clock with an explicit timestamp; the internal ticker
// sends the wall clock, tests send whatever they need.
type Tick struct{ Now time.Time }

type GetState struct{ Reply chan View }

type Shutdown struct{}

func (Join) isSessionMsg()              {}
func (Leave) isSessionMsg()             {}
func (ConnectCircuit) isSessionMsg()    {}
func (DisconnectCircuit) isSessionMsg() {}
func (LevelComplete) isSessionMsg()     {}
func (Tick) isSessionMsg()              {}
func (GetState) isSessionMsg()          {}
func (Shutdown) isSessionMsg()          {}

// View reflects coordinator state without data races; used by tests and the
// read-only HTTP endpoint.
type View struct {
	Phase       Phase
	NumPeers    int
	Runner      PeerID
	Operator    PeerID
	Circuit     CircuitID
	Hazard      HazardID
	TimerActive bool
	Remaining   float64
}

// Callbacks are the hooks the excluded presentation/UI layer registers.
// They are invoked on the coordinator goroutine and must not block.
type Callbacks struct {
	OnRoleAssigned        func(peer PeerID, role Role)
	OnSpawnRequested      func(role Role, peer PeerID)
	OnSessionStarted      func()
	OnSessionEnded        func(outcome Outcome)
	OnTimerUpdated        func(remaining float64)
	OnCircuitStateChanged func(circuit CircuitID, hazard HazardID)
}

type Config struct {
	GameDuration time.Duration
	TickInterval time.Duration
	// Now is the clock source; tests inject a fake.
	Now func() time.Time
	// OnEnded notifies the owner (the hub) that the session reached its
	// terminal state.
	OnEnded func(outcome Outcome)
}

func (c *Config) withDefaults() {
	if c.GameDuration <= 0 {
		c.GameDuration = 5 * time.Minute
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 250 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Coordinator orchestrates one 2-peer session: admission, role assignment,
// the countdown clock and circuit fan-out. One goroutine owns all of it.
type Coordinator struct {
	inbox chan Msg

	phase    Phase
	roles    *RoleAssigner
	timer    *SessionTimer
	circuits *CircuitEventBus

	runnerPeer   *ReplicatedValue[PeerID]
	operatorPeer *ReplicatedValue[PeerID]
	circuit      *ReplicatedValue[CircuitID]
	hazard       *ReplicatedValue[HazardID]

	peers    map[PeerID]chan types.ServerMessage
	nextPeer PeerID

	cfg    Config
	cb     Callbacks
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	ticker *time.Ticker
	tickC  <-chan time.Time
}

// NewCoordinator builds a session with the authority pre-assigned the Runner
// role under the well-known AuthorityPeer id, and starts its loop.
func NewCoordinator(parent context.Context, cfg Config, cb Callbacks, log *zap.Logger) *Coordinator {
	cfg.withDefaults()
	ctx, cancel := context.WithCancel(parent)

	c := &Coordinator{
		inbox:    make(chan Msg, 64),
		phase:    PhaseWaiting,
		peers:    make(map[PeerID]chan types.ServerMessage),
		nextPeer: AuthorityPeer + 1,
		cfg:      cfg,
		cb:       cb,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}

	c.runnerPeer = NewReplicated(types.FieldRunnerPeer, NoPeer, c.pushPeerField)
	c.operatorPeer = NewReplicated(types.FieldOperatorPeer, NoPeer, c.pushPeerField)
	c.circuit = NewReplicated(types.FieldCircuit, CircuitNone, c.pushCircuitField)
	c.hazard = NewReplicated(types.FieldHazard, HazardNone, c.pushHazardField)

	start := NewReplicated[int64]("start_time", 0, nil)
	duration := NewReplicated[float64]("duration", 0, nil)
	active := NewReplicated("timer_active", false, nil)
	c.timer = NewSessionTimer(start, duration, active, log)
	c.timer.OnUpdated(func(remaining float64) {
		if c.cb.OnTimerUpdated != nil {
			c.cb.OnTimerUpdated(remaining)
		}
	})

	c.roles = NewRoleAssigner(c.runnerPeer, c.operatorPeer)
	c.circuits = NewCircuitEventBus(c.circuit, c.hazard, log)

	// The authority holds Runner before any remote peer shows up.
	if _, err := c.roles.AssignRole(AuthorityPeer); err != nil {
		log.Error("authority role pre-assignment failed", zap.Error(err))
	}

	go c.loop()
	return c
}

// Inbox exposes the message channel to the transport layer and tests.
func (c *Coordinator) Inbox() chan<- Msg { return c.inbox }

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case now := <-c.tickC:
			c.handleTick(now)

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- c.handleJoin(msg.Outbox)
			case Leave:
				c.handleLeave(msg.Peer)
			case ConnectCircuit:
				c.handleCircuit(msg.Peer, msg.Circuit, msg.Hazard)
			case DisconnectCircuit:
				c.handleCircuit(msg.Peer, CircuitNone, HazardNone)
			case LevelComplete:
				c.handleLevelComplete(msg.Peer)
			case Tick:
				c.handleTick(msg.Now)
			case GetState:
				msg.Reply <- c.view()
			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Coordinator) handleJoin(outbox chan types.ServerMessage) JoinResult {
	if c.phase == PhaseEnded {
		return JoinResult{Peer: NoPeer, Err: ErrSessionEnded}
	}
	if len(c.peers) >= 2 {
		return JoinResult{Peer: NoPeer, Err: ErrSessionFull}
	}

	// The first connection binds to the authority's pre-assigned seat; any
	// later one gets a fresh id and the next vacant role.
	var peer PeerID
	var role Role
	if _, bound := c.peers[AuthorityPeer]; !bound {
		peer = AuthorityPeer
		role = c.roles.RoleOf(peer)
		if role == RoleNone {
			// An earlier host left before the session started and the
			// seat is vacant again.
			var err error
			if role, err = c.roles.AssignRole(peer); err != nil {
				return JoinResult{Peer: NoPeer, Err: err}
			}
		}
	} else {
		peer = c.nextPeer
		c.nextPeer++
		var err error
		if role, err = c.roles.AssignRole(peer); err != nil {
			return JoinResult{Peer: NoPeer, Err: err}
		}
	}
	c.peers[peer] = outbox

	c.log.Info("peer joined",
		zap.Int64("peer", int64(peer)),
		zap.String("role", role.String()))

	// Targeted role notification plus a snapshot of the replicated fields,
	// so the peer never has to infer its role from anything else.
	c.sendTo(peer, types.ServerMessage{Type: types.MsgRoleAssigned, Role: role.String(), PeerID: int64(peer)})
	c.sendTo(peer, types.ServerMessage{Type: types.MsgStateUpdate, Field: types.FieldRunnerPeer, Value: int64(c.runnerPeer.Get())})
	c.sendTo(peer, types.ServerMessage{Type: types.MsgStateUpdate, Field: types.FieldOperatorPeer, Value: int64(c.operatorPeer.Get())})
	c.sendTo(peer, types.ServerMessage{Type: types.MsgStateUpdate, Field: types.FieldCircuit, Value: int64(c.circuit.Get())})
	c.sendTo(peer, types.ServerMessage{Type: types.MsgStateUpdate, Field: types.FieldHazard, Value: int64(c.hazard.Get())})

	if c.cb.OnRoleAssigned != nil {
		c.cb.OnRoleAssigned(peer, role)
	}
	if c.cb.OnSpawnRequested != nil {
		c.cb.OnSpawnRequested(role, peer)
	}

	if c.phase == PhaseWaiting && c.roles.Filled() == 2 {
		c.startSession()
	}
	return JoinResult{Peer: peer, Role: role}
}

func (c *Coordinator) startSession() {
	now := c.cfg.Now()
	if err := c.timer.Start(now, c.cfg.GameDuration); err != nil {
		c.log.Error("failed to start session timer", zap.Error(err))
		return
	}
	c.phase = PhaseActive

	c.ticker = time.NewTicker(c.cfg.TickInterval)
	c.tickC = c.ticker.C

	c.log.Info("session started", zap.Duration("duration", c.cfg.GameDuration))
	c.broadcast(types.ServerMessage{
		Type:        types.MsgSessionStarted,
		StartTimeMS: now.UnixMilli(),
		DurationSec: c.cfg.GameDuration.Seconds(),
	})
	if c.cb.OnSessionStarted != nil {
		c.cb.OnSessionStarted()
	}
}

func (c *Coordinator) handleLeave(peer PeerID) {
	outbox, ok := c.peers[peer]
	if !ok {
		return
	}
	delete(c.peers, peer)
	close(outbox)
	released := c.roles.ReleaseRole(peer)

	c.log.Info("peer left",
		zap.Int64("peer", int64(peer)),
		zap.String("role", released.String()))

	if c.phase == PhaseActive {
		// A 2-of-2 cooperative session cannot continue with one peer.
		c.end(OutcomeAbandoned)
		return
	}
	if c.phase == PhaseWaiting {
		// Vacated roles are reassignable before the session starts.
		switch released {
		case RoleRunner:
			_ = c.runnerPeer.Set(NoPeer)
		case RoleOperator:
			_ = c.operatorPeer.Set(NoPeer)
		}
	}
}

func (c *Coordinator) handleCircuit(peer PeerID, circuit CircuitID, hazard HazardID) {
	if c.phase == PhaseEnded {
		c.log.Debug("dropping circuit request after session end", zap.Int64("peer", int64(peer)))
		return
	}
	var err error
	if circuit == CircuitNone && hazard == HazardNone {
		err = c.circuits.RequestDisconnect(peer)
	} else {
		err = c.circuits.RequestConnect(peer, circuit, hazard)
	}
	if err != nil {
		c.log.Error("circuit request failed", zap.Error(err))
		return
	}
	// One pair event per transition on top of the two field syncs.
	c.broadcast(types.ServerMessage{
		Type:    types.MsgCircuitChanged,
		Circuit: int(circuit),
		Hazard:  int(hazard),
	})
	if c.cb.OnCircuitStateChanged != nil {
		c.cb.OnCircuitStateChanged(circuit, hazard)
	}
}

func (c *Coordinator) handleLevelComplete(peer PeerID) {
	if c.phase != PhaseActive {
		return
	}
	if c.roles.RoleOf(peer) != RoleRunner {
		c.log.Warn("level-complete signal from non-runner peer", zap.Int64("peer", int64(peer)))
		return
	}
	c.end(OutcomeCompleted)
}

func (c *Coordinator) handleTick(now time.Time) {
	if c.phase != PhaseActive {
		return
	}
	if _, expired := c.timer.Tick(now); expired {
		c.end(OutcomeExpired)
	}
}

func (c *Coordinator) end(outcome Outcome) {
	if c.phase == PhaseEnded {
		return
	}
	c.phase = PhaseEnded
	c.timer.Stop()
	if c.ticker != nil {
		c.ticker.Stop()
		c.tickC = nil
	}

	c.log.Info("session ended", zap.String("outcome", string(outcome)))
	c.broadcast(types.ServerMessage{Type: types.MsgSessionEnded, Outcome: string(outcome)})
	if c.cb.OnSessionEnded != nil {
		c.cb.OnSessionEnded(outcome)
	}
	if c.cfg.OnEnded != nil {
		c.cfg.OnEnded(outcome)
	}
}

func (c *Coordinator) shutdown() {
	for peer, ch := range c.peers {
		close(ch)
		delete(c.peers, peer)
	}
	if c.ticker != nil {
		c.ticker.Stop()
	}
	c.cancel()
}

// pushPeerField transmits a replicated role-seat change to every peer.
func (c *Coordinator) pushPeerField(field string, v PeerID) {
	c.broadcast(types.ServerMessage{Type: types.MsgStateUpdate, Field: field, Value: int64(v)})
}

func (c *Coordinator) pushCircuitField(field string, v CircuitID) {
	c.broadcast(types.ServerMessage{Type: types.MsgStateUpdate, Field: field, Value: int64(v)})
}

func (c *Coordinator) pushHazardField(field string, v HazardID) {
	c.broadcast(types.ServerMessage{Type: types.MsgStateUpdate, Field: field, Value: int64(v)})
}

func (c *Coordinator) broadcast(msg types.ServerMessage) {
	var lost []PeerID
	for peer, ch := range c.peers {
		select {
		case ch <- msg:
		default:
			// Peer stopped draining its outbox; treat as a lost connection.
			close(ch)
			delete(c.peers, peer)
			lost = append(lost, peer)
		}
	}
	for _, peer := range lost {
		c.log.Warn("dropping unresponsive peer", zap.Int64("peer", int64(peer)))
		released := c.roles.ReleaseRole(peer)
		if c.phase == PhaseActive {
			c.end(OutcomeAbandoned)
		} else if c.phase == PhaseWaiting {
			switch released {
			case RoleRunner:
				_ = c.runnerPeer.Set(NoPeer)
			case RoleOperator:
				_ = c.operatorPeer.Set(NoPeer)
			}
		}
	}
}

func (c *Coordinator) sendTo(peer PeerID, msg types.ServerMessage) {
	ch, ok := c.peers[peer]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		c.log.Warn("peer outbox full on targeted send", zap.Int64("peer", int64(peer)))
	}
}

func (c *Coordinator) view() View {
	runner, _ := c.roles.PeerWithRole(RoleRunner)
	operator, _ := c.roles.PeerWithRole(RoleOperator)
	circuit, hazard := c.circuits.State()
	return View{
		Phase:       c.phase,
		NumPeers:    len(c.peers),
		Runner:      runner,
		Operator:    operator,
		Circuit:     circuit,
		Hazard:      hazard,
		TimerActive: c.timer.Active(),
		Remaining:   c.timer.Remaining(c.cfg.Now()),
	}
}
