package cache

import (
	"sync/atomic"
)

// Stats is a point-in-time snapshot of namespace counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64
}

// HitRate returns hits / (hits + misses), or 0 when no reads happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s *Statistics) hit()    { atomic.AddInt64(&s.hits, 1) }
func (s *Statistics) miss()   { atomic.AddInt64(&s.misses, 1) }
func (s *Statistics) set()    { atomic.AddInt64(&s.sets, 1) }
func (s *Statistics) delete() { atomic.AddInt64(&s.deletes, 1) }

// Snapshot returns the current counter values.
func (s *Statistics) Snapshot() Stats {
	return Stats{
		Hits:    atomic.LoadInt64(&s.hits),
		Misses:  atomic.LoadInt64(&s.misses),
		Sets:    atomic.LoadInt64(&s.sets),
		Deletes: atomic.LoadInt64(&s.deletes),
	}
}
