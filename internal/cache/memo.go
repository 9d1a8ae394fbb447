package cache

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/smukkama/flood-forecast/internal/series"
)

// Memo remembers pipeline outputs by the fingerprint of their input history,
// so an unchanged feed is not recomputed on every refresh.
type Memo[V any] struct {
	cache  *lru.Cache[uint64, V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewMemo[V any](size int) (*Memo[V], error) {
	c, err := lru.New[uint64, V](size)
	if err != nil {
		return nil, err
	}
	return &Memo[V]{cache: c}, nil
}

func (m *Memo[V]) Get(key uint64) (V, bool) {
	v, ok := m.cache.Get(key)
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return v, ok
}

func (m *Memo[V]) Add(key uint64, v V) {
	m.cache.Add(key, v)
}

// Stats returns hit and miss counts.
func (m *Memo[V]) Stats() (hits, misses uint64) {
	return m.hits.Load(), m.misses.Load()
}

// Fingerprint hashes the ids, timestamps and values of a history.
func Fingerprint(records []series.Record) uint64 {
	d := xxhash.New()
	var buf [24]byte
	for _, r := range records {
		binary.LittleEndian.PutUint64(buf[0:8], uint64(r.EntryID))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(r.Timestamp.UnixNano()))
		binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(r.Value))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
