package session

import (
	"context"
	"sync"
)

// Lanes serializes work per session: calls for one session run one at a
// time while different sessions proceed in parallel.
type Lanes struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// lane is a one-slot semaphore. refs counts holders and waiters so the
// entry can be dropped once nobody references it.
type lane struct {
	sem  chan struct{}
	refs int
}

// NewLanes returns an empty lane set.
func NewLanes() *Lanes {
	return &Lanes{lanes: make(map[string]*lane)}
}

func (l *Lanes) ref(id string) *lane {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[id]
	if !ok {
		ln = &lane{sem: make(chan struct{}, 1)}
		l.lanes[id] = ln
	}
	ln.refs++
	return ln
}

func (l *Lanes) unref(id string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, id)
	}
}

// Acquire blocks until the lane for id is free or ctx is done. On success
// the returned func releases the lane and must be called exactly once.
func (l *Lanes) Acquire(ctx context.Context, id string) (func(), error) {
	ln := l.ref(id)
	select {
	case ln.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(id, ln)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ln.sem
			l.unref(id, ln)
		})
	}, nil
}

// Len returns the number of lanes currently held or awaited.
func (l *Lanes) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
