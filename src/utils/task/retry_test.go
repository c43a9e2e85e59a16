package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

func TestRetryTestSuite(t *testing.T) {
	suite.Run(t, new(RetryTestSuite))
}

type RetryTestSuite struct {
	suite.Suite
}

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func isRetryable(err error) bool {
	return !errors.Is(err, errFatal)
}

func (s *RetryTestSuite) TestSucceedsAfterFailures() {
	calls := 0
	var notified []int
	err := NewRetry().
		WithMaxAttempts(3).
		WithIsRetryable(isRetryable).
		WithOnError(func(err error, attempt int) {
			notified = append(notified, attempt)
		}).
		Run(func() error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
	s.Require().NoError(err)
	s.Require().Equal(3, calls)
	s.Require().Equal([]int{1, 2}, notified)
}

func (s *RetryTestSuite) TestReturnsLastError() {
	calls := 0
	err := NewRetry().
		WithMaxAttempts(3).
		Run(func() error {
			calls++
			return errTransient
		})
	s.Require().ErrorIs(err, errTransient)
	s.Require().Equal(3, calls)
}

func (s *RetryTestSuite) TestFatalErrorIsNotRetried() {
	calls := 0
	err := NewRetry().
		WithMaxAttempts(5).
		WithIsRetryable(isRetryable).
		Run(func() error {
			calls++
			return errFatal
		})
	s.Require().ErrorIs(err, errFatal)
	s.Require().Equal(1, calls)
}

func (s *RetryTestSuite) TestAtLeastOneAttempt() {
	calls := 0
	err := NewRetry().
		WithMaxAttempts(0).
		Run(func() error {
			calls++
			return nil
		})
	s.Require().NoError(err)
	s.Require().Equal(1, calls)
}

func (s *RetryTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := NewRetry().
		WithContext(ctx).
		WithMaxAttempts(3).
		Run(func() error {
			calls++
			return errTransient
		})
	s.Require().Error(err)
	s.Require().LessOrEqual(calls, 1)
}
