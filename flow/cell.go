package flow

// Cell is a value that changes over time.
type Cell[T any] interface {
	// Subscribe registers fn to be called with every new value. fn is
	// called immediately with the current value before Subscribe returns.
	// The returned function removes the subscription. It is safe to call
	// it more than once.
	Subscribe(fn func(T)) (unsubscribe func())

	// Get returns the current value.
	Get() T
}

type subscriber[T any] struct {
	fn   func(T)
	live bool
}

// node is the shared implementation of all cells.
type node[T any] struct {
	value    T
	hasValue bool
	subs     []*subscriber[T]

	// equal, when set, suppresses notifications for values equal to the
	// current one.
	equal func(a, b T) bool

	activate   func()
	deactivate func()
	releases   []func()

	active     bool
	activating bool
}

func (n *node[T]) Subscribe(fn func(T)) func() {
	s := &subscriber[T]{fn: fn, live: true}
	n.subs = append(n.subs, s)
	if !n.active {
		n.active = true
		if n.activate != nil {
			n.activating = true
			n.activate()
			n.activating = false
		}
	}
	if s.live {
		fn(n.value)
	}

	var done bool
	return func() {
		if done {
			return
		}
		done = true
		s.live = false
		n.remove(s)
	}
}

func (n *node[T]) remove(s *subscriber[T]) {
	for i, x := range n.subs {
		if x == s {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			break
		}
	}
	if len(n.subs) > 0 || !n.active {
		return
	}
	n.active = false
	if n.deactivate != nil {
		n.deactivate()
	}
	for _, fn := range n.releases {
		fn()
	}
}

func (n *node[T]) Get() T {
	if n.active || n.activate == nil {
		return n.value
	}
	// Not observed by anyone. Compute the value by observing it for a
	// moment.
	var v T
	unsubscribe := n.Subscribe(func(x T) { v = x })
	unsubscribe()
	return v
}

func (n *node[T]) emit(v T) {
	if n.equal != nil && n.hasValue && n.equal(n.value, v) {
		return
	}
	n.value = v
	n.hasValue = true
	if n.activating {
		// The subscriber that triggered the activation is given the
		// value once activation is complete.
		return
	}
	subs := make([]*subscriber[T], len(n.subs))
	copy(subs, n.subs)
	for _, s := range subs {
		if s.live {
			s.fn(v)
		}
	}
}

// Observed returns true if the cell has at least one subscriber.
func (n *node[T]) Observed() bool {
	return n.active
}

// State is a cell that holds a value set directly by its owner.
type State[T any] struct {
	node[T]
}

var _ Cell[int] = (*State[int])(nil)

// NewState returns a cell holding def until the first Set call.
func NewState[T any](def T) *State[T] {
	s := &State[T]{}
	s.value = def
	return s
}

// Set stores the value and notifies all subscribers, in the order they
// subscribed, before returning.
func (s *State[T]) Set(v T) {
	s.emit(v)
}

// Update sets the value computed from the current one.
func (s *State[T]) Update(fn func(T) T) {
	s.emit(fn(s.value))
}

// Derived is a cell computed from other cells.
type Derived[T any] struct {
	node[T]
}

var _ Cell[int] = (*Derived[int])(nil)

// OnRelease registers fn to be called every time the cell loses its last
// subscriber, after the upstream subscriptions were released.
func (d *Derived[T]) OnRelease(fn func()) *Derived[T] {
	d.releases = append(d.releases, fn)
	return d
}

// Const returns a cell that always holds v.
func Const[T any](v T) Cell[T] {
	return NewState(v)
}
