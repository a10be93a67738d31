package task

import (
	"slices"
	"sync"
)

// listenerSet is a registry of callbacks called in subscription order.
type listenerSet[F any] struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]F
}

func (l *listenerSet[F]) add(fn F) (remove func()) {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[uint64]F)
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listenerSet[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]uint64, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]F, len(ids))
	for i, id := range ids {
		out[i] = l.fns[id]
	}
	return out
}
