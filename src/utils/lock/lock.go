package lock

import (
	"context"
	"sync"
)

// Locker guards units of work that must not run concurrently for the same key
type Locker interface {
	// TryLock doesn't wait. ok is false if the key is held by someone else.
	// The work should run with lockCtx: it's cancelled once the lock is released or lost.
	TryLock(ctx context.Context, key string) (lockCtx context.Context, unlock func(), ok bool, err error)
}

// Locks held in process memory, enough for a single replica
type LocalLocker struct {
	mtx  sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() (self *LocalLocker) {
	self = new(LocalLocker)
	self.held = make(map[string]struct{})
	return
}

func (self *LocalLocker) TryLock(ctx context.Context, key string) (lockCtx context.Context, unlock func(), ok bool, err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	if _, held := self.held[key]; held {
		return nil, nil, false, nil
	}
	self.held[key] = struct{}{}

	lockCtx, cancel := context.WithCancel(ctx)

	var once sync.Once
	unlock = func() {
		once.Do(func() {
			cancel()

			self.mtx.Lock()
			defer self.mtx.Unlock()
			delete(self.held, key)
		})
	}
	return lockCtx, unlock, true, nil
}
