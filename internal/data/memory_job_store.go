package data

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

type memoryEntry struct {
	mu  sync.Mutex
	rec *model.JobRecord
}

// MemoryJobStore keeps job records in process memory. The map lock only guards
// insertion and lookup; each record has its own lock so a slow mutation on one
// job never blocks readers of another.
type MemoryJobStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

var _ core.JobStore = (*MemoryJobStore)(nil)

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{entries: make(map[string]*memoryEntry)}
}

// Create stores a copy of rec.
func (s *MemoryJobStore) Create(_ context.Context, rec *model.JobRecord) error {
	if rec == nil || rec.ID == "" {
		return ErrJobIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[rec.ID]; ok {
		return fmt.Errorf("create job %s: %w", rec.ID, ErrJobExists)
	}
	s.entries[rec.ID] = &memoryEntry{rec: rec.Clone()}
	return nil
}

// Get returns a snapshot of the record.
func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.JobRecord, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, model.ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

// Mutate applies fn to a working copy and publishes it only when fn succeeds.
func (s *MemoryJobStore) Mutate(ctx context.Context, id string, fn core.MutateFunc) (*model.JobRecord, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, model.ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	work := e.rec.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	e.rec = work
	return work.Clone(), nil
}

// List returns matching records newest first.
func (s *MemoryJobStore) List(_ context.Context, filter model.JobListFilter) ([]*model.JobRecord, int, error) {
	matched := s.collect(func(r *model.JobRecord) bool {
		switch {
		case filter.Owner != "" && r.Owner != filter.Owner:
			return false
		case filter.Kind != "" && r.Kind != filter.Kind:
			return false
		case filter.Status != "" && r.Status != filter.Status:
			return false
		case !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since):
			return false
		}
		return true
	})
	slices.SortFunc(matched, newestFirst)

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return matched[start:end], total, nil
}

// ListStale returns non-terminal records not updated since before, oldest first.
func (s *MemoryJobStore) ListStale(_ context.Context, before time.Time, limit int) ([]*model.JobRecord, error) {
	out := s.collect(func(r *model.JobRecord) bool {
		return !r.Status.IsTerminal() && r.UpdatedAt.Before(before)
	})
	slices.SortFunc(out, func(a, b *model.JobRecord) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	return truncate(out, limit), nil
}

// ListFinished returns records in the given terminal status finished before the cutoff, oldest first.
func (s *MemoryJobStore) ListFinished(_ context.Context, params core.ListFinishedParams) ([]*model.JobRecord, error) {
	out := s.collect(func(r *model.JobRecord) bool {
		return r.Status == params.Status && r.FinishedAt != nil && r.FinishedAt.Before(params.Before)
	})
	slices.SortFunc(out, func(a, b *model.JobRecord) int { return a.FinishedAt.Compare(*b.FinishedAt) })
	return truncate(out, params.Limit), nil
}

// Delete removes the given records.
func (s *MemoryJobStore) Delete(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryJobStore) lookup(id string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *MemoryJobStore) collect(keep func(*model.JobRecord) bool) []*model.JobRecord {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*model.JobRecord
	for _, e := range entries {
		e.mu.Lock()
		if keep(e.rec) {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

func newestFirst(a, b *model.JobRecord) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

func truncate(recs []*model.JobRecord, limit int) []*model.JobRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
