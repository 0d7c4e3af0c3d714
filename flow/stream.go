package flow

// Stream is a sequence of discrete events that may complete.
type Stream[T any] interface {
	// Subscribe registers next to be called for every event and done to
	// be called once when the stream completes. Either may be nil.
	// Subscribing to a completed stream calls done immediately.
	Subscribe(next func(T), done func()) (unsubscribe func())
}

type listener[T any] struct {
	next func(T)
	done func()
	live bool
}

type streamNode[T any] struct {
	listeners []*listener[T]
	completed bool

	activate   func()
	deactivate func()
	active     bool
}

func (s *streamNode[T]) Subscribe(next func(T), done func()) func() {
	if s.completed {
		if done != nil {
			done()
		}
		return func() {}
	}
	l := &listener[T]{next: next, done: done, live: true}
	s.listeners = append(s.listeners, l)
	if !s.active {
		s.active = true
		if s.activate != nil {
			s.activate()
		}
	}
	return func() {
		if !l.live {
			return
		}
		l.live = false
		s.remove(l)
	}
}

func (s *streamNode[T]) remove(l *listener[T]) {
	for i, x := range s.listeners {
		if x == l {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			break
		}
	}
	if len(s.listeners) > 0 || !s.active {
		return
	}
	s.active = false
	if s.deactivate != nil {
		s.deactivate()
	}
}

// Observed returns true if the stream has at least one listener.
func (s *streamNode[T]) Observed() bool {
	return s.active
}

func (s *streamNode[T]) emit(v T) {
	if s.completed {
		return
	}
	ls := make([]*listener[T], len(s.listeners))
	copy(ls, s.listeners)
	for _, l := range ls {
		if l.live && l.next != nil {
			l.next(v)
		}
	}
}

func (s *streamNode[T]) complete() {
	if s.completed {
		return
	}
	s.completed = true
	ls := s.listeners
	s.listeners = nil
	for _, l := range ls {
		if !l.live {
			continue
		}
		l.live = false
		if l.done != nil {
			l.done()
		}
	}
	if s.active {
		s.active = false
		if s.deactivate != nil {
			s.deactivate()
		}
	}
}

// Signal is a stream written directly by its owner.
type Signal[T any] struct {
	streamNode[T]
}

var _ Stream[int] = (*Signal[int])(nil)

// NewSignal returns an open signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{}
}

// Emit delivers v to all current subscribers. Emitting on a completed signal
// has no effect.
func (s *Signal[T]) Emit(v T) {
	s.emit(v)
}

// Complete ends the stream.
func (s *Signal[T]) Complete() {
	s.complete()
}

// Completed returns true once Complete was called.
func (s *Signal[T]) Completed() bool {
	return s.completed
}

// Exhaust returns a stream that, for every event of src, forwards all events
// of the stream returned by project. Events of src that arrive while the
// previously projected stream has not completed yet are dropped and passed
// to dropped, if given. A nil projection ignores the event.
func Exhaust[T, R any](src Stream[T], project func(T) Stream[R], dropped func(T)) Stream[R] {
	out := &streamNode[R]{}
	var (
		unsubscribeSrc   func()
		unsubscribeInner func()
		busy             bool
		srcDone          bool
	)
	out.activate = func() {
		busy, srcDone = false, false
		unsubscribeSrc = src.Subscribe(func(v T) {
			if busy {
				if dropped != nil {
					dropped(v)
				}
				return
			}
			inner := project(v)
			if inner == nil {
				return
			}
			busy = true
			finished := false
			u := inner.Subscribe(out.emit, func() {
				finished = true
				busy = false
				unsubscribeInner = nil
				if srcDone {
					out.complete()
				}
			})
			if !finished {
				unsubscribeInner = u
			}
		}, func() {
			srcDone = true
			if !busy {
				out.complete()
			}
		})
	}
	out.deactivate = func() {
		if unsubscribeSrc != nil {
			unsubscribeSrc()
			unsubscribeSrc = nil
		}
		if unsubscribeInner != nil {
			u := unsubscribeInner
			unsubscribeInner = nil
			busy = false
			u()
		}
	}
	return out
}

// Changes returns a stream of the values of a cell, starting with the
// current one.
func Changes[T any](src Cell[T]) Stream[T] {
	out := &streamNode[T]{}
	var unsubscribe func()
	out.activate = func() {
		unsubscribe = src.Subscribe(out.emit)
	}
	out.deactivate = func() {
		unsubscribe()
	}
	return out
}

// Until returns a stream forwarding the events of src up to and including
// the first one for which last returns true, after which it completes and
// releases src.
func Until[T any](src Stream[T], last func(T) bool) Stream[T] {
	out := &streamNode[T]{}
	var unsubscribe func()
	release := func() {
		if unsubscribe != nil {
			u := unsubscribe
			unsubscribe = nil
			u()
		}
	}
	out.activate = func() {
		finished := false
		u := src.Subscribe(func(v T) {
			if finished {
				return
			}
			out.emit(v)
			if last(v) {
				finished = true
				out.complete()
			}
		}, func() {
			finished = true
			out.complete()
		})
		if finished {
			u()
			return
		}
		unsubscribe = u
	}
	out.deactivate = release
	return out
}
