/*
Package flow implements a small reactive dataflow runtime.

Values that change over time are represented by cells. A State is written
directly. Derived cells (Map, Distinct, Combine2 and friends, Switch, Async,
Watch) compute their value from other cells. A derived cell is lazy: it
subscribes to its inputs when the first subscriber arrives and releases them,
running any OnRelease teardown, when the last subscriber leaves. While it has
subscribers it recomputes once for every upstream notification that reaches
it. When two inputs of a cell share an upstream, the cell recomputes once per
input and subscribers observe the intermediate value.

Discrete events are represented by streams. A Signal is written directly;
Exhaust derives a stream that ignores events while a previous one is still
being handled.

Cells and streams are not safe for concurrent use. All access must happen on
a single goroutine, which is what Loop provides. Work that blocks (network
calls, waiting on a wallet) runs in its own goroutine and posts its result
back to the loop.
*/
package flow
