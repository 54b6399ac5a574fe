package session

import "sync"

// Locks serialises work per user while letting different users proceed in parallel
type Locks struct {
	mu    sync.Mutex
	users map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{users: make(map[int64]*userLock)}
}

// Lock blocks until the user's lock is held and returns the unlock function
func (l *Locks) Lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.users[userID]
	if !ok {
		ul = &userLock{}
		l.users[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.users, userID)
		}
		l.mu.Unlock()
	}
}

func (l *Locks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
