package service

import "sync"

// ProposalLocks serializes mutations per proposal. Edits to different
// proposals never wait on each other.
type ProposalLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

// NewProposalLocks creates an empty lock table.
func NewProposalLocks() *ProposalLocks {
	return &ProposalLocks{locks: make(map[string]*refLock)}
}

// Lock blocks until the caller holds the lock for proposalID and returns the
// matching unlock func.
func (l *ProposalLocks) Lock(proposalID string) func() {
	l.mu.Lock()
	lk, ok := l.locks[proposalID]
	if !ok {
		lk = &refLock{}
		l.locks[proposalID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return func() {
		lk.Unlock()

		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, proposalID)
		}
		l.mu.Unlock()
	}
}

func (l *ProposalLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
