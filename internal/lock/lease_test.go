package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldLeaseExtendsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		holdLease(stop, 5*time.Millisecond,
			func(context.Context) (bool, error) {
				calls.Add(1)
				return true, nil
			},
			func(err error) { t.Errorf("lease reported lost: %v", err) },
		)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	close(stop)
	<-done
}

func TestHoldLeaseReportsLostKey(t *testing.T) {
	boom := errors.New("connection reset")
	var calls atomic.Int32
	lostErr := make(chan error, 1)

	holdLease(make(chan struct{}), time.Millisecond,
		func(context.Context) (bool, error) {
			switch calls.Add(1) {
			case 1:
				return false, boom
			default:
				return false, nil
			}
		},
		func(err error) { lostErr <- err },
	)

	select {
	case err := <-lostErr:
		assert.ErrorIs(t, err, ErrLeaseLost)
		assert.ErrorIs(t, err, boom)
	default:
		t.Fatal("lost was not called")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestHoldLeaseWithoutIntervalReturns(t *testing.T) {
	holdLease(make(chan struct{}), 0,
		func(context.Context) (bool, error) { t.Fatal("extend called"); return false, nil },
		func(error) { t.Fatal("lost called") },
	)
}

func TestRedisLockerExtendWithoutClient(t *testing.T) {
	var l *RedisLocker
	_, err := l.Extend(context.Background(), "k", "token")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
