package session

// ReplicatedValue holds a scalar that only the authority may mutate. Remote
// peers keep read-only replicas updated via Apply. Subscribers fire only on
// an actual value change, never on a redundant write of the same value.
//
// Instances are not goroutine-safe on their own: all access must happen on
// the owning actor loop (coordinator on the authority, the client's message
// loop on a replica). Updates to a single value are applied in send order;
// no ordering is guaranteed across different values.
type ReplicatedValue[T comparable] struct {
	field     string
	authority bool
	value     T
	subs      []func(old, new T)
	push      func(field string, v T)
}

// NewReplicated creates the authority-side instance of a replicated field.
// push, if non-nil, is invoked after every successful Set to transmit the new
// value to remote replicas.
func NewReplicated[T comparable](field string, initial T, push func(field string, v T)) *ReplicatedValue[T] {
	return &ReplicatedValue[T]{field: field, authority: true, value: initial, push: push}
}

// NewReplica creates a peer-side shadow copy, mutable only via Apply.
func NewReplica[T comparable](field string, initial T) *ReplicatedValue[T] {
	return &ReplicatedValue[T]{field: field, value: initial}
}

func (r *ReplicatedValue[T]) Field() string { return r.field }

func (r *ReplicatedValue[T]) Get() T { return r.value }

// Set mutates the value and pushes it to replicas. Fails on a replica.
func (r *ReplicatedValue[T]) Set(v T) error {
	if !r.authority {
		return ErrNotAuthority
	}
	r.apply(v)
	if r.push != nil {
		r.push(r.field, v)
	}
	return nil
}

// Apply installs a value received from the authority. Redundant writes of
// the current value invoke no callbacks.
func (r *ReplicatedValue[T]) Apply(v T) {
	r.apply(v)
}

func (r *ReplicatedValue[T]) apply(v T) {
	old := r.value
	if v == old {
		return
	}
	r.value = v
	for _, fn := range r.subs {
		fn(old, v)
	}
}

// Subscribe registers a change callback invoked as (old, new) once per
// actual change.
func (r *ReplicatedValue[T]) Subscribe(fn func(old, new T)) {
	r.subs = append(r.subs, fn)
}
