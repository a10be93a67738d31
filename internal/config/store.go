package config

import (
	"slices"
	"sync"
)

// Observer is called with the previous and new settings after a change.
type Observer func(prev, next Settings)

// Store holds the current Settings and notifies observers on change.
// A Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	current   Settings
	observers map[uint64]Observer
	nextID    uint64
}

// NewStore creates a store holding s.
func NewStore(s Settings) *Store {
	return &Store{
		current:   s,
		observers: make(map[uint64]Observer),
	}
}

// Get returns a copy of the current settings.
func (st *Store) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Set validates and replaces the settings, then notifies observers
// synchronously in subscription order.
func (st *Store) Set(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	st.mu.Lock()
	old := st.current
	st.current = s
	observers := st.snapshotLocked()
	st.mu.Unlock()

	for _, obs := range observers {
		obs(old, s)
	}
	return nil
}

// Update applies fn to a copy of the current settings and stores the result.
func (st *Store) Update(fn func(*Settings)) error {
	s := st.Get()
	fn(&s)
	return st.Set(s)
}

// Subscribe registers an observer and returns a function that removes it.
// The returned function is idempotent.
func (st *Store) Subscribe(obs Observer) (unsubscribe func()) {
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	st.observers[id] = obs
	st.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.observers, id)
			st.mu.Unlock()
		})
	}
}

func (st *Store) snapshotLocked() []Observer {
	ids := make([]uint64, 0, len(st.observers))
	for id := range st.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = st.observers[id]
	}
	return out
}
