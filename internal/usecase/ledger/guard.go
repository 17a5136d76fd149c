package ledger

import "sync"

// AccountGuard hands out one mutex per account ID so balance-mutating
// critical sections for the same account run one at a time while
// different accounts never block each other. Entries are refcounted and
// dropped once the last holder leaves, so the map does not grow with the
// number of accounts ever seen.
//
// The guard only covers callers inside one process. Cross-process safety
// comes from the account store's version compare-and-swap; the guard
// exists to keep local contention from burning CAS retries.
type AccountGuard struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func NewAccountGuard() *AccountGuard {
	return &AccountGuard{locks: make(map[string]*accountLock)}
}

// WithAccountLock runs fn while holding the lock for accountID.
func (g *AccountGuard) WithAccountLock(accountID string, fn func() error) error {
	l := g.acquire(accountID)
	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		g.release(accountID, l)
	}()
	return fn()
}

func (g *AccountGuard) acquire(accountID string) *accountLock {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.locks[accountID]
	if !ok {
		l = &accountLock{}
		g.locks[accountID] = l
	}
	l.refs++
	return l
}

func (g *AccountGuard) release(accountID string, l *accountLock) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(g.locks, accountID)
	}
}
