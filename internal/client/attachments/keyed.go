package attachments

import (
	"sort"
	"sync"
)

// keyedMutex serializes work per key. Entries are dropped once no goroutine
// holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the locks for keys in a fixed order and returns the unlock
// func.
func (k *keyedMutex) Lock(keys ...string) func() {
	keys = append([]string(nil), keys...)
	sort.Strings(keys)
	keys = dedupSorted(keys)

	entries := make([]*keyedEntry, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		e, ok := k.locks[key]
		if !ok {
			e = &keyedEntry{}
			k.locks[key] = e
		}
		e.refs++
		k.mu.Unlock()

		e.mu.Lock()
		entries = append(entries, e)
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			e.mu.Unlock()

			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

func dedupSorted(keys []string) []string {
	out := keys[:0]
	for i, key := range keys {
		if i == 0 || key != keys[i-1] {
			out = append(out, key)
		}
	}
	return out
}
