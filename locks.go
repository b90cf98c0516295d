package geoquest

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// stripedLock serializes work per session id. Ids hashing to the same stripe
// share a mutex; different stripes never contend.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(id string) func() {
	mu := &l.stripes[stripeOf(id)]
	mu.Lock()
	return mu.Unlock
}

func stripeOf(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32() % lockStripes
}
