package session

import "errors"

var (
	// ErrNotAuthority: a non-authority holder attempted a replicated mutation.
	ErrNotAuthority = errors.New("not the session authority")
	// ErrSessionFull: a third peer attempted to join a 2-peer session.
	ErrSessionFull = errors.New("session is full")
	// ErrSessionEnded: the session reached its terminal state.
	ErrSessionEnded = errors.New("session has ended")
	// ErrAlreadyAssigned: AssignRole called twice for the same peer.
	ErrAlreadyAssigned = errors.New("peer already holds a role")
	// ErrPeerLost: a peer disconnected mid-session.
	ErrPeerLost = errors.New("peer connection lost")
)
