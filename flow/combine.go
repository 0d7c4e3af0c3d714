package flow

// Map returns a cell holding f applied to the value of src.
func Map[A, B any](src Cell[A], f func(A) B) *Derived[B] {
	d := &Derived[B]{}
	var unsubscribe func()
	d.activate = func() {
		unsubscribe = src.Subscribe(func(a A) {
			d.emit(f(a))
		})
	}
	d.deactivate = func() {
		unsubscribe()
	}
	return d
}

// Distinct returns a cell that follows src but does not notify when the new
// value is equal to the current one.
func Distinct[T any](src Cell[T], equal func(a, b T) bool) *Derived[T] {
	d := Map(src, func(v T) T { return v })
	d.equal = equal
	return d
}

// Equal is an equality function for comparable types, usable with Distinct.
func Equal[T comparable](a, b T) bool {
	return a == b
}

// Combine2 returns a cell holding f applied to the values of a and b. It
// recomputes every time either input changes.
func Combine2[A, B, R any](a Cell[A], b Cell[B], f func(A, B) R) *Derived[R] {
	d := &Derived[R]{}
	var (
		va     A
		vb     B
		ha, hb bool
		ua, ub func()
	)
	recompute := func() {
		if ha && hb {
			d.emit(f(va, vb))
		}
	}
	d.activate = func() {
		ha, hb = false, false
		ua = a.Subscribe(func(v A) { va, ha = v, true; recompute() })
		ub = b.Subscribe(func(v B) { vb, hb = v, true; recompute() })
	}
	d.deactivate = func() {
		ua()
		ub()
	}
	return d
}

// Combine3 is Combine2 for three inputs.
func Combine3[A, B, C, R any](a Cell[A], b Cell[B], c Cell[C], f func(A, B, C) R) *Derived[R] {
	d := &Derived[R]{}
	var (
		va         A
		vb         B
		vc         C
		ha, hb, hc bool
		ua, ub, uc func()
	)
	recompute := func() {
		if ha && hb && hc {
			d.emit(f(va, vb, vc))
		}
	}
	d.activate = func() {
		ha, hb, hc = false, false, false
		ua = a.Subscribe(func(v A) { va, ha = v, true; recompute() })
		ub = b.Subscribe(func(v B) { vb, hb = v, true; recompute() })
		uc = c.Subscribe(func(v C) { vc, hc = v, true; recompute() })
	}
	d.deactivate = func() {
		ua()
		ub()
		uc()
	}
	return d
}

// Combine4 is Combine2 for four inputs.
func Combine4[A, B, C, D, R any](a Cell[A], b Cell[B], c Cell[C], e Cell[D], f func(A, B, C, D) R) *Derived[R] {
	d := &Derived[R]{}
	var (
		va             A
		vb             B
		vc             C
		vd             D
		ha, hb, hc, hd bool
		ua, ub, uc, ud func()
	)
	recompute := func() {
		if ha && hb && hc && hd {
			d.emit(f(va, vb, vc, vd))
		}
	}
	d.activate = func() {
		ha, hb, hc, hd = false, false, false, false
		ua = a.Subscribe(func(v A) { va, ha = v, true; recompute() })
		ub = b.Subscribe(func(v B) { vb, hb = v, true; recompute() })
		uc = c.Subscribe(func(v C) { vc, hc = v, true; recompute() })
		ud = e.Subscribe(func(v D) { vd, hd = v, true; recompute() })
	}
	d.deactivate = func() {
		ua()
		ub()
		uc()
		ud()
	}
	return d
}

// Switch returns a cell following the cell that project returns for the
// current value of src. When src changes, the previously projected cell is
// released before the new one is subscribed, and values it might still
// produce are discarded. A nil projection yields the zero value.
func Switch[A, B any](src Cell[A], project func(A) Cell[B]) *Derived[B] {
	d := &Derived[B]{}
	var (
		unsubscribeSrc   func()
		unsubscribeInner func()
		gen              int
	)
	release := func() {
		if unsubscribeInner != nil {
			u := unsubscribeInner
			unsubscribeInner = nil
			u()
		}
	}
	d.activate = func() {
		unsubscribeSrc = src.Subscribe(func(a A) {
			gen++
			current := gen
			release()
			inner := project(a)
			if inner == nil {
				var zero B
				d.emit(zero)
				return
			}
			u := inner.Subscribe(func(b B) {
				if current == gen {
					d.emit(b)
				}
			})
			if current == gen {
				unsubscribeInner = u
			} else {
				// Superseded while subscribing.
				u()
			}
		})
	}
	d.deactivate = func() {
		gen++
		unsubscribeSrc()
		release()
	}
	return d
}
