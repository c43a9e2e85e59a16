package lock

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/dao-forum/reconciler/src/utils/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestRedisLockTestSuite(t *testing.T) {
	suite.Run(t, new(RedisLockTestSuite))
}

type RedisLockTestSuite struct {
	suite.Suite
	ctx    context.Context
	server *miniredis.Miniredis
	config *config.Config
	locker *RedisLocker
}

func (s *RedisLockTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.server = miniredis.RunT(s.T())

	port, err := strconv.ParseUint(s.server.Port(), 10, 16)
	require.Nil(s.T(), err)

	s.config = config.Default()
	s.config.Redis.Host = s.server.Host()
	s.config.Redis.Port = uint16(port)
	s.config.Redis.User = ""
	s.config.Redis.Password = ""
	s.config.Reconciler.LockTtl = 300 * time.Millisecond

	s.locker = NewRedisLocker(s.config)
	require.Nil(s.T(), s.locker.Connect(s.ctx))
}

func (s *RedisLockTestSuite) TearDownTest() {
	s.locker.Close()
}

func (s *RedisLockTestSuite) key(key string) string {
	return s.config.Reconciler.LockPrefix + key
}

func (s *RedisLockTestSuite) TestExclusive() {
	_, unlock, ok, err := s.locker.TryLock(s.ctx, "organization:1")
	require.Nil(s.T(), err)
	require.True(s.T(), ok)
	require.True(s.T(), s.server.Exists(s.key("organization:1")))

	_, _, ok, err = s.locker.TryLock(s.ctx, "organization:1")
	require.Nil(s.T(), err)
	require.False(s.T(), ok)

	unlock()
	require.False(s.T(), s.server.Exists(s.key("organization:1")))

	_, unlock, ok, err = s.locker.TryLock(s.ctx, "organization:1")
	require.Nil(s.T(), err)
	require.True(s.T(), ok)
	unlock()
}

func (s *RedisLockTestSuite) TestLeaseIsExtendedWhileHeld() {
	lockCtx, unlock, ok, err := s.locker.TryLock(s.ctx, "organization:1")
	require.Nil(s.T(), err)
	require.True(s.T(), ok)
	defer unlock()

	// Most of the lease passes, the holder renews it before it runs out
	s.server.FastForward(200 * time.Millisecond)
	require.Eventually(s.T(), func() bool {
		return s.server.TTL(s.key("organization:1")) > 100*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	s.server.FastForward(200 * time.Millisecond)
	require.Eventually(s.T(), func() bool {
		return s.server.TTL(s.key("organization:1")) > 100*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	require.True(s.T(), s.server.Exists(s.key("organization:1")))
	require.Nil(s.T(), lockCtx.Err())
}

func (s *RedisLockTestSuite) TestLostLeaseCancelsHolder() {
	lockCtx, unlock, ok, err := s.locker.TryLock(s.ctx, "organization:1")
	require.Nil(s.T(), err)
	require.True(s.T(), ok)

	// Another replica owns the key now
	require.Nil(s.T(), s.server.Set(s.key("organization:1"), "other"))

	require.Eventually(s.T(), func() bool {
		return lockCtx.Err() != nil
	}, 2*time.Second, 10*time.Millisecond)

	// Release leaves the other owner's key alone
	unlock()
	value, err := s.server.Get(s.key("organization:1"))
	require.Nil(s.T(), err)
	require.Equal(s.T(), "other", value)
}

func (s *RedisLockTestSuite) TestUnlockStopsRenewal() {
	lockCtx, unlock, ok, err := s.locker.TryLock(s.ctx, "organization:1")
	require.Nil(s.T(), err)
	require.True(s.T(), ok)

	unlock()
	require.ErrorIs(s.T(), lockCtx.Err(), context.Canceled)

	// Nobody renews a key set after release
	require.Nil(s.T(), s.server.Set(s.key("organization:1"), "other"))
	s.server.SetTTL(s.key("organization:1"), 50*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	require.Equal(s.T(), 50*time.Millisecond, s.server.TTL(s.key("organization:1")))
}
