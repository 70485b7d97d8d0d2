package session

// RoleAssigner owns the peer-to-role mapping on the authority. Exactly one
// peer may hold Runner and one Operator at any instant; at most two peers
// ever reach AssignRole (admission rejects the rest upstream).
type RoleAssigner struct {
	roles        map[PeerID]Role
	runnerPeer   *ReplicatedValue[PeerID]
	operatorPeer *ReplicatedValue[PeerID]
}

func NewRoleAssigner(runnerPeer, operatorPeer *ReplicatedValue[PeerID]) *RoleAssigner {
	return &RoleAssigner{
		roles:        make(map[PeerID]Role),
		runnerPeer:   runnerPeer,
		operatorPeer: operatorPeer,
	}
}

// AssignRole gives peer the first vacant role: Runner if nobody holds it
// (the authority itself takes Runner at session start), otherwise Operator.
// Assigning a peer twice is a programming error and fails fast.
func (a *RoleAssigner) AssignRole(peer PeerID) (Role, error) {
	if _, ok := a.roles[peer]; ok {
		return RoleNone, ErrAlreadyAssigned
	}

	role := RoleRunner
	if _, taken := a.PeerWithRole(RoleRunner); taken {
		role = RoleOperator
	}
	a.roles[peer] = role

	var err error
	if role == RoleRunner {
		err = a.runnerPeer.Set(peer)
	} else {
		err = a.operatorPeer.Set(peer)
	}
	return role, err
}

// ReleaseRole removes the peer's mapping, making the vacated role
// reassignable to a later peer. The replicated peer-id fields are left to
// the coordinator, which resets them unless the whole session is ending.
func (a *RoleAssigner) ReleaseRole(peer PeerID) Role {
	role := a.roles[peer]
	delete(a.roles, peer)
	return role
}

func (a *RoleAssigner) RoleOf(peer PeerID) Role {
	return a.roles[peer]
}

// PeerWithRole returns the peer currently holding role, if any.
func (a *RoleAssigner) PeerWithRole(role Role) (PeerID, bool) {
	for p, r := range a.roles {
		if r == role {
			return p, true
		}
	}
	return NoPeer, false
}

// Filled reports how many roles are currently held.
func (a *RoleAssigner) Filled() int {
	return len(a.roles)
}
