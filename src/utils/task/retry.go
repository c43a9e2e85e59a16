package task

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Implements operation retrying with a fixed delay and a bounded number of attempts.
// Errors classified as fatal by the callback are returned immediately.
type Retry struct {
	ctx         context.Context
	maxAttempts int
	delay       time.Duration
	isRetryable func(error) bool
	onError     func(err error, attempt int)
}

func NewRetry() *Retry {
	return &Retry{
		ctx:         context.Background(),
		maxAttempts: 1,
	}
}

func (self *Retry) WithContext(ctx context.Context) *Retry {
	self.ctx = ctx
	return self
}

// Total number of attempts, including the first one
func (self *Retry) WithMaxAttempts(v int) *Retry {
	if v < 1 {
		v = 1
	}
	self.maxAttempts = v
	return self
}

func (self *Retry) WithDelay(v time.Duration) *Retry {
	self.delay = v
	return self
}

func (self *Retry) WithIsRetryable(v func(error) bool) *Retry {
	self.isRetryable = v
	return self
}

// Called after every failed attempt that will be retried
func (self *Retry) WithOnError(v func(err error, attempt int)) *Retry {
	self.onError = v
	return self
}

// Runs f until it succeeds, fails with a fatal error or the attempts are exhausted.
// The error of the last attempt is returned.
func (self *Retry) Run(f func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(self.delay), uint64(self.maxAttempts-1)),
		self.ctx,
	)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := f()
		if err != nil && self.isRetryable != nil && !self.isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, _ time.Duration) {
		if self.onError != nil {
			self.onError(err, attempt)
		}
	})
}
