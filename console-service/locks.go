package main

import (
	"sync"
)

// keyedLocks hands out one mutex per string key, creating entries lazily.
// Deploy serializes on the owner handle so concurrent deploys can't both
// pass the quota check; controller and sweeper operations serialize on the
// console ID so a remove can't race a start on the same console. Entries are
// never reclaimed; the key space is bounded by the user and console
// population, which is small.
type keyedLocks struct {
	lock  sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for key, creating it on first use.
func (k *keyedLocks) get(key string) *sync.Mutex {
	k.lock.Lock()
	defer k.lock.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}
