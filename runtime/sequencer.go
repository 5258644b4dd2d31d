package runtime

import (
	"quorum/domain"
	"sync"
)

type groupLock struct {
	mu   sync.Mutex
	refs int
}

// Sequencer serializes work per group while different groups run in parallel.
// The ingest pipeline persists and publishes under it, so the order in which
// members receive a group's messages is the order the store assigned.
type Sequencer struct {
	mu    sync.Mutex
	locks map[domain.GroupID]*groupLock
}

func NewSequencer() *Sequencer {
	return &Sequencer{locks: make(map[domain.GroupID]*groupLock)}
}

// Do runs fn while holding the lock of groupID.
// A panic in fn still releases the lock.
func (s *Sequencer) Do(groupID domain.GroupID, fn func()) {
	l := s.acquire(groupID)
	defer s.release(groupID, l)
	fn()
}

func (s *Sequencer) acquire(groupID domain.GroupID) *groupLock {
	s.mu.Lock()
	l, ok := s.locks[groupID]
	if !ok {
		l = &groupLock{}
		s.locks[groupID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Sequencer) release(groupID domain.GroupID, l *groupLock) {
	l.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, groupID)
	}
}

// Active is the number of groups currently holding or waiting for a lock.
func (s *Sequencer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
