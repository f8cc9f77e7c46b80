package memory

import (
	"context"
	"slices"

	"github.com/houra-app/houra/internal/model"
)

// PutStudent upserts a student.
func (s *Store) PutStudent(_ context.Context, st model.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.IndexFunc(s.data.students, func(x model.Student) bool { return x.ID == st.ID }); i >= 0 {
		s.data.students[i] = st
		return nil
	}
	s.data.students = append(s.data.students, st)
	return nil
}

func (s *Store) PutOrganization(_ context.Context, o model.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orgs = append(s.data.orgs, o)
	return nil
}

func (s *Store) PutServiceEntry(_ context.Context, e model.ServiceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.entries = append(s.data.entries, e)
	return nil
}

func (s *Store) PutShareLink(_ context.Context, l model.ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.links = append(s.data.links, l)
	return nil
}

func (s *Store) PutSyncQueueItem(_ context.Context, it model.SyncQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.syncItems = append(s.data.syncItems, it)
	return nil
}
