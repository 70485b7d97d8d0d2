package session

import "go.uber.org/zap"

// CircuitEventBus applies cable plug/unplug requests on the authority and
// replicates the resulting (circuit, hazard) pair. The pair is two
// independent replicated scalars, so a replica can observe the circuit
// updated while the hazard is still stale for one update. Consumers get the
// pair atomically through the coordinator's CircuitChanged event instead;
// the raw fields stay independent on the wire.
//
// Color/identity validation happens in the gameplay layer before a request
// reaches the bus; only the runner-side presentation may act on the fan-out.
type CircuitEventBus struct {
	circuit *ReplicatedValue[CircuitID]
	hazard  *ReplicatedValue[HazardID]
	log     *zap.Logger
}

func NewCircuitEventBus(circuit *ReplicatedValue[CircuitID], hazard *ReplicatedValue[HazardID], log *zap.Logger) *CircuitEventBus {
	return &CircuitEventBus{circuit: circuit, hazard: hazard, log: log}
}

// RequestConnect activates circuit and hazard on behalf of requester.
func (b *CircuitEventBus) RequestConnect(requester PeerID, circuit CircuitID, hazard HazardID) error {
	b.log.Debug("cable connected",
		zap.Int64("peer", int64(requester)),
		zap.Int("circuit", int(circuit)),
		zap.Int("hazard", int(hazard)))
	if err := b.circuit.Set(circuit); err != nil {
		return err
	}
	return b.hazard.Set(hazard)
}

// RequestDisconnect clears both fields back to the none sentinel.
func (b *CircuitEventBus) RequestDisconnect(requester PeerID) error {
	b.log.Debug("cable disconnected", zap.Int64("peer", int64(requester)))
	if err := b.circuit.Set(CircuitNone); err != nil {
		return err
	}
	return b.hazard.Set(HazardNone)
}

// State returns the authority's current pair.
func (b *CircuitEventBus) State() (CircuitID, HazardID) {
	return b.circuit.Get(), b.hazard.Get()
}
