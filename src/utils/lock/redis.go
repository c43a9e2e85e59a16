package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/logger"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Resets the expiration only if the key still holds our token
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Locks shared by all replicas. Keys expire after the TTL so a crashed holder can't block forever.
type RedisLocker struct {
	log    *logrus.Entry
	config *config.Config
	client *redis.Client
}

func NewRedisLocker(config *config.Config) (self *RedisLocker) {
	self = new(RedisLocker)
	self.config = config
	self.log = logger.NewSublogger("redis-lock")
	return
}

func (self *RedisLocker) Connect(ctx context.Context) (err error) {
	conf := self.config.Redis
	self.client = redis.NewClient(&redis.Options{
		ClientName:      "dao/reconciler",
		Addr:            fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Username:        conf.User,
		Password:        conf.Password,
		DB:              conf.DB,
		MinIdleConns:    conf.MinIdleConns,
		MaxIdleConns:    conf.MaxIdleConns,
		ConnMaxIdleTime: conf.ConnMaxIdleTime,
		PoolSize:        conf.MaxOpenConns,
		ConnMaxLifetime: conf.ConnMaxLifetime,
	})

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err = self.client.Ping(ctx).Err()
	if err != nil {
		self.log.WithError(err).Error("Failed to ping Redis")
		return
	}
	return
}

func (self *RedisLocker) Close() {
	if self.client == nil {
		return
	}
	err := self.client.Close()
	if err != nil {
		self.log.WithError(err).Error("Failed to close connection")
	}
}

func (self *RedisLocker) TryLock(ctx context.Context, key string) (lockCtx context.Context, unlock func(), ok bool, err error) {
	key = self.config.Reconciler.LockPrefix + key
	token := xid.New().String()

	ok, err = self.client.SetNX(ctx, key, token, self.config.Reconciler.LockTtl).Result()
	if err != nil || !ok {
		return nil, nil, false, err
	}

	lockCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	if self.config.Reconciler.LockTtl > 0 {
		go self.keepAlive(lockCtx, cancel, key, token, done)
	} else {
		// Key never expires
		close(done)
	}

	var once sync.Once
	unlock = func() {
		once.Do(func() {
			cancel()
			<-done

			// Release even if the job's context is already cancelled
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()

			err := releaseScript.Run(releaseCtx, self.client, []string{key}, token).Err()
			if err != nil {
				self.log.WithError(err).WithField("key", key).Warn("Failed to release lock, it will expire")
			}
		})
	}
	return lockCtx, unlock, true, nil
}

// Extends the lock while it's held. Cancels the holder's context once the key
// belongs to someone else or couldn't be extended before it expired.
func (self *RedisLocker) keepAlive(ctx context.Context, lost context.CancelFunc, key, token string, done chan struct{}) {
	defer close(done)

	ttl := self.config.Reconciler.LockTtl
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	log := self.log.WithField("key", key)
	extendedAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		extended, err := extendScript.Run(ctx, self.client, []string{key}, token, ttl.Milliseconds()).Int()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			if time.Since(extendedAt) < ttl {
				log.WithError(err).Warn("Failed to extend lock, retrying")
				continue
			}
			log.WithError(err).Error("Lock expired, stopping the holder")
		case extended == 0:
			log.Error("Lock taken over, stopping the holder")
		default:
			extendedAt = time.Now()
			continue
		}

		lost()
		return
	}
}
