package debug

import "sync"

// stopGate is a counting semaphore incremented while a control request
// (continue/step/pause) is in flight on the runtime thread and awaited
// by the stop emitter before publishing a stop event. This guarantees
// clients observe request -> response -> (possibly) stop, never a stop
// interleaved ahead of the response to the request that caused it.
type stopGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	inFlight int
}

func newStopGate() *stopGate {
	g := &stopGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Enter marks one control request as in flight; callers must pair it
// with a deferred Leave.
func (g *stopGate) Enter() {
	g.mu.Lock()
	g.inFlight++
	g.mu.Unlock()
}

func (g *stopGate) Leave() {
	g.mu.Lock()
	g.inFlight--
	if g.inFlight <= 0 {
		g.inFlight = 0
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// Drain blocks until no control request is in flight.
func (g *stopGate) Drain() {
	g.mu.Lock()
	for g.inFlight > 0 {
		g.cond.Wait()
	}
	g.mu.Unlock()
}
