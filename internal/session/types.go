package session

// PeerID identifies a connected peer for the lifetime of its session. The
// authority assigns ids; its own is the well-known AuthorityPeer.
type PeerID int64

const (
	AuthorityPeer PeerID = 0
	// NoPeer is the unset sentinel for the replicated role fields.
	NoPeer PeerID = -1
)

type Role int

const (
	RoleNone Role = iota
	RoleRunner
	RoleOperator
)

func (r Role) String() string {
	switch r {
	case RoleRunner:
		return "runner"
	case RoleOperator:
		return "operator"
	default:
		return "none"
	}
}

// CircuitID selects which light circuit is live in the runner's room.
type CircuitID int

const (
	CircuitNone CircuitID = iota - 1
	CircuitGray
	CircuitRed
	CircuitGreen
	CircuitBlue
	CircuitYellow
	CircuitWhite
)

// HazardID selects which hazard type is active alongside a circuit.
type HazardID int

const (
	HazardNone HazardID = iota - 1
	HazardFire
	HazardWater
	HazardElectric
	HazardToxic
)

// Outcome records why a session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed" // runner reached the exit
	OutcomeExpired   Outcome = "expired"   // timer ran out
	OutcomeAbandoned Outcome = "abandoned" // a peer disconnected mid-session
)
