package jobs

import (
	"sync"
)

// Store is the narrow interface the rest of the server sees for job
// records. The in-memory implementation is the only backend today; the
// interface keeps the orchestrator unaware of that.
type Store interface {
	Create(job *Job)
	Get(id string) (*Job, error)
	List() []*Job
	Delete(id string) error
	Update(id string, fn func(*Job)) error
}

// MemoryStore holds job records for the lifetime of the process.
// Jobs are volatile: a restart forgets everything.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create adds a job record. The store takes ownership of the value.
func (s *MemoryStore) Create(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// Get returns a copy of a job record, so callers can read it without
// racing the orchestrator's writes.
func (s *MemoryStore) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, jobNotFoundError(id)
	}
	return job.Copy(), nil
}

// List returns copies of all job records, in no particular order.
// Callers that care sort by CreatedAt.
func (s *MemoryStore) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, job.Copy())
	}
	return list
}

// Delete removes a job record. Deleting an unknown id is an error, not a
// no-op, so API callers can report not-found clearly.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return jobNotFoundError(id)
	}
	delete(s.jobs, id)
	return nil
}

// Update applies fn to the stored job under the store's lock. All
// orchestrator and tracker mutations go through here so per-job
// invariants hold across interleavings.
func (s *MemoryStore) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	fn(job)
	return nil
}
