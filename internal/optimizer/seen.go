package optimizer

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const seenShards = 128 // power of two

// seenSet records canonical keys tested during one run. Keys are spread over
// mutex-guarded shards so workers rarely contend.
type seenSet struct {
	shards [seenShards]struct {
		mu    sync.Mutex
		items map[string]struct{}
	}
}

func newSeenSet() *seenSet {
	s := &seenSet{}
	for i := range s.shards {
		s.shards[i].items = make(map[string]struct{}, 64)
	}
	return s
}

// add inserts key and reports whether it was new.
func (s *seenSet) add(key string) bool {
	shard := &s.shards[xxhash.Sum64String(key)&(seenShards-1)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, ok := shard.items[key]; ok {
		return false
	}
	shard.items[key] = struct{}{}
	return true
}
