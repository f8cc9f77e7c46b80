// Package memory is an in-process implementation of storage.Store.
//
// All data lives in one dataset guarded by a mutex. Transactions work on a
// copy of the dataset and swap it in on success, so a failed transaction
// leaves no partial writes. Records are only ever replaced, never mutated
// through shared pointers, which is what makes the shallow copy safe.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
)

type dataset struct {
	students  []model.Student
	orgs      []model.Organization
	entries   []model.ServiceEntry
	links     []model.ShareLink
	syncItems []model.SyncQueueItem
	runs      []model.AgentRun
	actions   []model.AgentAction
	snapshots []model.StateSnapshot
	audit     []model.AuditEvent
}

func (d *dataset) clone() *dataset {
	return &dataset{
		students:  slices.Clone(d.students),
		orgs:      slices.Clone(d.orgs),
		entries:   slices.Clone(d.entries),
		links:     slices.Clone(d.links),
		syncItems: slices.Clone(d.syncItems),
		runs:      slices.Clone(d.runs),
		actions:   slices.Clone(d.actions),
		snapshots: slices.Clone(d.snapshots),
		audit:     slices.Clone(d.audit),
	}
}

// Store is a storage.Store held entirely in memory.
type Store struct {
	mu   sync.Mutex
	data *dataset
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Seeder = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{data: &dataset{}}
}

// InTx runs fn against a private copy of the data and commits it only when fn
// returns nil. Transactions are fully serialized; fn must use tx, not s.
func (s *Store) InTx(ctx context.Context, _ uuid.UUID, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.data.clone()
	if err := fn(view{d: staged}); err != nil {
		return err
	}
	s.data = staged
	return nil
}

// ListActiveStudents returns approved students, most recently updated first.
func (s *Store) ListActiveStudents(_ context.Context, limit int) ([]model.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Student
	for _, st := range s.data.students {
		if st.Approved {
			out = append(out, st)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Student) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) {}

// locked runs fn on the committed dataset under the lock.
func (s *Store) locked(fn func(v view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(view{d: s.data})
}

func newestFirst[T any](items []T, key func(T) int64) {
	slices.SortStableFunc(items, func(a, b T) int { return cmp.Compare(key(b), key(a)) })
}
