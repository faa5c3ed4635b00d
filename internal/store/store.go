// Package store implements the aggregate store: one append-only record log
// per (ticker, granularity) partition with FIFO retention.
//
// The in-memory partitions are authoritative for reads. Every append and
// trim is also handed to a Journal, which persists it to the durable log
// off the caller's path.
package store

import (
	"cmp"
	"slices"
	"sync"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/rollup"
)

// DefaultRetention is the number of records kept per partition.
const DefaultRetention = 300

// Journal receives every mutation so it can be written to the durable log.
// Implementations must not block the caller for long.
type Journal interface {
	Append(ticker string, rec model.AggregateRecord)
	Trim(ticker string, g model.Granularity, keep int)
}

// Key identifies a partition.
type Key struct {
	Ticker      string
	Granularity model.Granularity
}

// partition is the record log of one Key.
type partition struct {
	mu      sync.RWMutex
	records []model.AggregateRecord
	lastSeq int64
}

// Store holds every partition in memory.
type Store struct {
	mu         sync.RWMutex
	partitions map[Key]*partition

	journal   Journal
	retention int
}

// New creates an empty Store. A nil journal keeps records in memory only.
// retention <= 0 selects DefaultRetention.
func New(retention int, journal Journal) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		partitions: make(map[Key]*partition),
		journal:    journal,
		retention:  retention,
	}
}

// Retention returns the configured per-partition record limit.
func (s *Store) Retention() int {
	return s.retention
}

// Append stores a new record for (ticker, g) and journals it.
func (s *Store) Append(ticker string, g model.Granularity, stats rollup.Stats) model.AggregateRecord {
	p := s.getOrCreate(Key{Ticker: ticker, Granularity: g})

	p.mu.Lock()
	p.lastSeq++
	rec := model.AggregateRecord{
		Granularity: g,
		Average:     stats.Average,
		Max:         stats.Max,
		Min:         stats.Min,
		Seq:         p.lastSeq,
	}
	p.records = append(p.records, rec)
	p.mu.Unlock()

	if s.journal != nil {
		s.journal.Append(ticker, rec)
	}
	return rec
}

// Restore appends previously persisted records without journaling them.
// A persisted Seq is kept when it is ahead of the partition; otherwise the
// next number is assigned.
func (s *Store) Restore(ticker string, records []model.AggregateRecord) {
	for _, rec := range records {
		p := s.getOrCreate(Key{Ticker: ticker, Granularity: rec.Granularity})

		p.mu.Lock()
		if rec.Seq > p.lastSeq {
			p.lastSeq = rec.Seq
		} else {
			p.lastSeq++
			rec.Seq = p.lastSeq
		}
		p.records = append(p.records, rec)
		p.mu.Unlock()
	}
}

// LastN returns up to n of the most recent records of (ticker, g) in
// chronological order. Unknown partitions yield an empty slice.
func (s *Store) LastN(ticker string, g model.Granularity, n int) []model.AggregateRecord {
	p := s.get(Key{Ticker: ticker, Granularity: g})
	if p == nil || n <= 0 {
		return []model.AggregateRecord{}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if n > len(p.records) {
		n = len(p.records)
	}
	out := make([]model.AggregateRecord, n)
	copy(out, p.records[len(p.records)-n:])
	return out
}

// Len returns the number of records held for (ticker, g).
func (s *Store) Len(ticker string, g model.Granularity) int {
	p := s.get(Key{Ticker: ticker, Granularity: g})
	if p == nil {
		return 0
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// Trim discards all but the newest keep records of (ticker, g) and returns
// how many were removed.
func (s *Store) Trim(ticker string, g model.Granularity, keep int) int {
	if keep < 0 {
		keep = 0
	}

	removed := 0
	if p := s.get(Key{Ticker: ticker, Granularity: g}); p != nil {
		p.mu.Lock()
		if excess := len(p.records) - keep; excess > 0 {
			kept := make([]model.AggregateRecord, keep)
			copy(kept, p.records[excess:])
			p.records = kept
			removed = excess
		}
		p.mu.Unlock()
	}

	if s.journal != nil {
		s.journal.Trim(ticker, g, keep)
	}
	return removed
}

// TrimAll applies Trim with the configured retention to every partition and
// returns the total number of records removed.
func (s *Store) TrimAll() int {
	total := 0
	for _, key := range s.Keys() {
		total += s.Trim(key.Ticker, key.Granularity, s.retention)
	}
	return total
}

// Keys returns every partition key, sorted by ticker then granularity.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.partitions))
	for k := range s.partitions {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.Ticker, b.Ticker); c != 0 {
			return c
		}
		return cmp.Compare(a.Granularity, b.Granularity)
	})
	return keys
}

func (s *Store) get(key Key) *partition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitions[key]
}

func (s *Store) getOrCreate(key Key) *partition {
	if p := s.get(key); p != nil {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.partitions[key]
	if !ok {
		p = &partition{}
		s.partitions[key] = p
	}
	return p
}
