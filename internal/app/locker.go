package app

import (
	"context"
	"sync"
)

// AccountLocker serialises balance-changing work per account. Lock blocks until the
// account is free or ctx is done and returns the release func.
type AccountLocker interface {
	Lock(ctx context.Context, accountID int64) (func(), error)
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// LocalAccountLocker is an in-process keyed mutex. Entries are dropped once no
// goroutine holds or waits on them.
type LocalAccountLocker struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

func NewLocalAccountLocker() *LocalAccountLocker {
	return &LocalAccountLocker{entries: make(map[int64]*lockEntry)}
}

func (l *LocalAccountLocker) Lock(ctx context.Context, accountID int64) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[accountID]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[accountID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(accountID, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(accountID, entry, true) })
	}, nil
}

func (l *LocalAccountLocker) release(accountID int64, entry *lockEntry, held bool) {
	if held {
		<-entry.ch
	}
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, accountID)
	}
	l.mu.Unlock()
}

// size reports the number of live entries.
func (l *LocalAccountLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
