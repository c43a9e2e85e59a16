package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
)

func TestLockTestSuite(t *testing.T) {
	suite.Run(t, new(LockTestSuite))
}

type LockTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *LockTestSuite) SetupSuite() {
	s.ctx = context.Background()
}

func (s *LockTestSuite) TestExclusive() {
	locker := NewLocalLocker()

	lockCtx, unlock, ok, err := locker.TryLock(s.ctx, "org:1")
	require.Nil(s.T(), err)
	require.True(s.T(), ok)
	require.Nil(s.T(), lockCtx.Err())

	_, _, ok, err = locker.TryLock(s.ctx, "org:1")
	require.Nil(s.T(), err)
	require.False(s.T(), ok)

	// Other keys are independent
	_, unlockOther, ok, _ := locker.TryLock(s.ctx, "org:2")
	require.True(s.T(), ok)
	unlockOther()

	unlock()
	unlock()
	require.ErrorIs(s.T(), lockCtx.Err(), context.Canceled)

	_, unlock, ok, _ = locker.TryLock(s.ctx, "org:1")
	require.True(s.T(), ok)
	unlock()
}

func (s *LockTestSuite) TestConcurrentHolders() {
	locker := NewLocalLocker()

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unlock, ok, _ := locker.TryLock(s.ctx, "org:1")
			if !ok {
				return
			}
			defer unlock()

			n := holders.Inc()
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			holders.Dec()
		}()
	}
	wg.Wait()
	require.Equal(s.T(), int32(1), maxSeen.Load())
}
