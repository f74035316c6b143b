package models

import (
	"fmt"
	"sync"
)

// recordLocks serializes writes per entity id. The store is mutated both by
// foreground workflows and by the sync engine applying conflict resolutions;
// without this, two in-flight writes to the same record could interleave
// partial updates. Single-writer-per-id, in process: the store is embedded,
// so an advisory lock inside the database engine is not available the way
// GET_LOCK is on a server RDBMS.
var recordLocks = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

// WithRecordLock runs fn while holding the write lock for (collection, id).
func WithRecordLock(collection Collection, id string, fn func() error) error {
	key := fmt.Sprintf("%s:%s", collection, id)

	recordLocks.mu.Lock()
	l, ok := recordLocks.locks[key]
	if !ok {
		l = &sync.Mutex{}
		recordLocks.locks[key] = l
	}
	recordLocks.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn()
}
