package types

// Wire protocol between a session peer and the server. Everything is JSON
// text frames over a single websocket per peer.

// Client -> Server message types.
const (
	MsgConnectCircuit    = "ConnectCircuit"
	MsgDisconnectCircuit = "DisconnectCircuit"
	MsgLevelComplete     = "LevelComplete"
)

// Server -> Client message types.
const (
	MsgRoleAssigned   = "RoleAssigned"
	MsgStateUpdate    = "StateUpdate"
	MsgCircuitChanged = "CircuitChanged"
	MsgSessionStarted = "SessionStarted"
	MsgSessionEnded   = "SessionEnded"
	MsgError          = "Error"
)

// Replicated field names carried by StateUpdate messages. Each field is a
// single scalar; updates to the same field arrive in send order. Circuit and
// hazard are deliberately two independent fields (see MsgCircuitChanged).
const (
	FieldRunnerPeer   = "runner_peer"
	FieldOperatorPeer = "operator_peer"
	FieldCircuit      = "circuit"
	FieldHazard       = "hazard"
)

type ClientMessage struct {
	Type string `json:"type"`
	// Circuit/Hazard use -1 as "none", so they are never omitted.
	Circuit int `json:"circuit"`
	Hazard  int `json:"hazard"`
}

type ServerMessage struct {
	Type string `json:"type"`

	// RoleAssigned
	Role   string `json:"role,omitempty"`
	PeerID int64  `json:"peer_id"`

	// StateUpdate
	Field string `json:"field,omitempty"`
	Value int64  `json:"value"`

	// CircuitChanged carries the pair as one event so observers fire once
	// per transition, even though the two replicated fields sync separately.
	Circuit int `json:"circuit"`
	Hazard  int `json:"hazard"`

	// SessionStarted
	StartTimeMS int64   `json:"start_time_ms,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`

	// SessionEnded
	Outcome string `json:"outcome,omitempty"`

	Error string `json:"error,omitempty"`
}
