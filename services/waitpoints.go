package services

import "sync"

// waitPoint is the per-correlation-key coordination primitive of the
// pairing rendezvous. admit serializes the ticket check-and-set for the
// key; signal is closed to broadcast a wake and immediately replaced.
type waitPoint struct {
	key  string
	refs int

	admit sync.Mutex

	mu     sync.Mutex
	signal chan struct{}
}

// wake releases every goroutine currently parked on the point.
func (w *waitPoint) wake() {
	w.mu.Lock()
	close(w.signal)
	w.signal = make(chan struct{})
	w.mu.Unlock()
}

// waitChan returns the current wake channel. Capture it before releasing
// admit, otherwise a wake issued in between is lost.
func (w *waitPoint) waitChan() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signal
}

// waitRegistry hands out wait points by key, reference counted so a key
// with no waiters holds no memory.
type waitRegistry struct {
	mu     sync.Mutex
	points map[string]*waitPoint
}

func newWaitRegistry() *waitRegistry {
	return &waitRegistry{points: make(map[string]*waitPoint)}
}

func (r *waitRegistry) acquire(key string) *waitPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.points[key]
	if !ok {
		wp = &waitPoint{key: key, signal: make(chan struct{})}
		r.points[key] = wp
	}
	wp.refs++
	return wp
}

func (r *waitRegistry) release(wp *waitPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp.refs--
	if wp.refs == 0 {
		delete(r.points, wp.key)
	}
}
