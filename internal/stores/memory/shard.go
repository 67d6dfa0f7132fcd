package memory

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

type shard[V any] struct {
	mu   sync.Mutex
	data map[string]V
}

// shards partitions a keyed map over fixed stripes.
type shards[V any] struct {
	s [shardCount]shard[V]
}

func newShards[V any]() *shards[V] {
	m := &shards[V]{}
	for i := range m.s {
		m.s[i].data = make(map[string]V)
	}
	return m
}

func (m *shards[V]) of(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.s[h.Sum32()%shardCount]
}

// with runs fn on key's value under the shard lock. fn may replace the
// value; keep=false deletes it.
func (m *shards[V]) with(key string, fn func(v V, ok bool) (V, bool)) {
	sh := m.of(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.data[key]
	next, keep := fn(cur, ok)
	if keep {
		sh.data[key] = next
	} else if ok {
		delete(sh.data, key)
	}
}

// each visits every entry shard by shard with the same contract as with.
func (m *shards[V]) each(fn func(key string, v V) (V, bool)) {
	for i := range m.s {
		sh := &m.s[i]
		sh.mu.Lock()
		for k, v := range sh.data {
			next, keep := fn(k, v)
			if keep {
				sh.data[k] = next
			} else {
				delete(sh.data, k)
			}
		}
		sh.mu.Unlock()
	}
}
