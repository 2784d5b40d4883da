package tracker

import (
	"sort"
	"sync"
)

// chainLocks serializes writes per lineage chain. Keys are chain root
// tracking ids; locks are acquired in sorted key order so multi-chain
// operations (linking two chains) cannot deadlock.
type chainLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newChainLocks() *chainLocks {
	return &chainLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *chainLocks) get(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[key]
	if !ok {
		m = &sync.Mutex{}
		c.locks[key] = m
	}
	return m
}

// acquire locks the given chain keys and returns the matching release func.
func (c *chainLocks) acquire(keys ...string) func() {
	uniq := make(map[string]bool, len(keys))
	var ordered []string
	for _, k := range keys {
		if !uniq[k] {
			uniq[k] = true
			ordered = append(ordered, k)
		}
	}
	sort.Strings(ordered)

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, k := range ordered {
		m := c.get(k)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
