// Package memory is a process-local jido.StorageAdapter: checkpoints and
// thread journals held in a mutex-guarded map, for tests and single-process
// deployments that don't need Postgres (storage/postgres is the durable
// alternative, §11).
package memory

import (
	"context"
	"sync"

	jido "github.com/agentjido/jido-sub001"
)

type threadRecord struct {
	id      string
	rev     int
	entries []jido.Entry
}

// Store implements jido.StorageAdapter in memory.
type Store struct {
	mu          sync.Mutex
	checkpoints map[jido.Key]*jido.Checkpoint
	threads     map[jido.Key]map[string]*threadRecord
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		checkpoints: map[jido.Key]*jido.Checkpoint{},
		threads:     map[jido.Key]map[string]*threadRecord{},
	}
}

func (s *Store) GetCheckpoint(_ context.Context, key jido.Key) (*jido.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[key]
	if !ok {
		return nil, jido.ErrNotFound
	}
	clone := *cp
	return &clone, nil
}

func (s *Store) PutCheckpoint(_ context.Context, key jido.Key, cp *jido.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cp
	s.checkpoints[key] = &clone
	return nil
}

func (s *Store) GetThread(_ context.Context, key jido.Key, threadID string) (*jido.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.threads[key]
	if !ok {
		return nil, jido.ErrNotFound
	}
	rec, ok := byID[threadID]
	if !ok {
		return nil, jido.ErrNotFound
	}
	th := &jido.Thread{ID: rec.id, Rev: rec.rev}
	th.Entries = append(th.Entries, rec.entries...)
	return th, nil
}

func (s *Store) AppendThread(_ context.Context, key jido.Key, threadID string, expectedRev int, entries []jido.Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.threads[key]
	if !ok {
		byID = map[string]*threadRecord{}
		s.threads[key] = byID
	}
	rec, ok := byID[threadID]
	if !ok {
		rec = &threadRecord{id: threadID}
		byID[threadID] = rec
	}
	if rec.rev != expectedRev {
		return rec.rev, jido.StorageError("memory.Store.AppendThread", jido.StorageConflict, nil)
	}
	rec.entries = append(rec.entries, entries...)
	rec.rev += len(entries)
	return rec.rev, nil
}
