package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a List call. Zero values mean "no restriction".
type ListFilter struct {
	OwnerID string
	States  []State
	// MaxSeq, when non-zero, hides records inserted after that sequence number.
	MaxSeq uint64
	Offset int
	Limit  int
}

func (f ListFilter) matches(r *Record) bool {
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.MaxSeq != 0 && r.Seq > f.MaxSeq {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if r.State == s {
			return true
		}
	}
	return false
}

// Store defines the interface for persisting task records. Implementations
// return copies: mutating a returned record never affects stored state.
type Store interface {
	// Insert adds a new record and assigns its Seq. It fails with ErrDuplicateTask
	// if the id exists.
	Insert(ctx context.Context, rec *Record) error

	// Get returns the record with the given id or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// Update applies fn to a copy of the record and stores the copy only if fn
	// returns nil. Concurrent updates of the same record are serialized; readers
	// see either the old or the new record, never a mix.
	Update(ctx context.Context, id uuid.UUID, fn func(*Record) error) (*Record, error)

	// Delete removes the record and returns its last state. A non-nil
	// onDelete is called with that state while the record is still held
	// exclusively, so no Get or Update of it can interleave.
	Delete(ctx context.Context, id uuid.UUID, onDelete func(*Record)) (*Record, error)

	// List returns one page of matching records ordered by CreatedAt descending,
	// then Seq descending, along with the total number of matches.
	List(ctx context.Context, filter ListFilter) ([]*Record, int, error)

	// ListUnfinished returns every pending or processing record.
	ListUnfinished(ctx context.Context) ([]*Record, error)

	// DeleteFinishedBefore removes terminal records completed before cutoff.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)

	// LatestSeq returns the highest Seq assigned so far.
	LatestSeq(ctx context.Context) (uint64, error)
}

type memoryEntry struct {
	mu      sync.Mutex
	rec     *Record
	deleted bool
}

// MemoryStore keeps records in process memory. The map lock is held only to
// find entries; each record has its own lock, so updates to unrelated tasks
// never wait on each other.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*memoryEntry
	seq     uint64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*memoryEntry)}
}

// Reset drops every record. Intended for tests.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[uuid.UUID]*memoryEntry)
	s.seq = 0
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return ErrDuplicateTask
	}
	s.seq++
	rec.Seq = s.seq
	s.entries[rec.ID] = &memoryEntry{rec: rec.Clone()}
	return nil
}

func (s *MemoryStore) entry(id uuid.UUID) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrTaskNotFound
	}
	return e.rec.Clone(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fn func(*Record) error) (*Record, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrTaskNotFound
	}

	next := e.rec.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.rec = next
	return next.Clone(), nil
}

// Delete implements Store. onDelete runs with both the map and the entry
// locked.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID, onDelete func(*Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = true
	delete(s.entries, id)
	if onDelete != nil {
		onDelete(e.rec.Clone())
	}
	return e.rec.Clone(), nil
}

// snapshot copies every live record. Each record is copied under its own lock.
func (s *MemoryStore) snapshot() []*Record {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

// SortRecords orders records newest first, breaking CreatedAt ties by Seq.
func SortRecords(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].Seq > recs[j].Seq
	})
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Record, int, error) {
	var matched []*Record
	for _, r := range s.snapshot() {
		if filter.matches(r) {
			matched = append(matched, r)
		}
	}
	SortRecords(matched)

	total := len(matched)
	if filter.Offset >= total {
		return []*Record{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < total {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

// ListUnfinished implements Store.
func (s *MemoryStore) ListUnfinished(ctx context.Context) ([]*Record, error) {
	recs, _, err := s.List(ctx, ListFilter{States: []State{StatePending, StateProcessing}})
	return recs, err
}

// DeleteFinishedBefore implements Store.
func (s *MemoryStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		e.mu.Lock()
		expired := e.rec.State.Terminal() && e.rec.CompletedAt != nil && e.rec.CompletedAt.Before(cutoff)
		if expired {
			e.deleted = true
			delete(s.entries, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed, nil
}

// LatestSeq implements Store.
func (s *MemoryStore) LatestSeq(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq, nil
}
