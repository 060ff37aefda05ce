package sandbox

import "sync"

// KeyMutex provides per-key mutual exclusion. Sandbox creation and build
// cancellation for the same (project, session) key must not interleave,
// while unrelated keys proceed fully in parallel.
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyMutex returns an empty lock table.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key and returns its unlock function. Entries
// are reference-counted so the table does not grow without bound.
func (k *KeyMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
