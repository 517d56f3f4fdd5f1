package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	"github.com/kongfuworld/settlement/internal/lock"
	"github.com/kongfuworld/settlement/internal/lock/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestNovelMonthKey(t *testing.T) {
	month, err := calendar.ParseMonth("2025-11")
	require.NoError(t, err)
	assert.Equal(t, "novel:42:2025-11", lock.NovelMonthKey(42, month))
}

func TestMemoryLockerExcludesSameKey(t *testing.T) {
	locker := lock.NewMemoryLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "novel:1:2025-11")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "novel:1:2025-11")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(ctx, "novel:2:2025-11")
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	again, err := locker.Lock(ctx, "novel:1:2025-11")
	require.NoError(t, err)
	again()
}

func TestMemoryLockerSerializesHolders(t *testing.T) {
	locker := lock.NewMemoryLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "k")
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLockAllSortsAndDedupes(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := mocks.NewMockLocker(ctrl)

	var released []string
	unlockFor := func(key string) lock.Unlock {
		return func() { released = append(released, key) }
	}
	gomock.InOrder(
		locker.EXPECT().Lock(gomock.Any(), "novel:1:2025-11").Return(unlockFor("novel:1:2025-11"), nil),
		locker.EXPECT().Lock(gomock.Any(), "novel:2:2025-11").Return(unlockFor("novel:2:2025-11"), nil),
	)

	unlock, err := lock.LockAll(context.Background(), locker, []string{"novel:2:2025-11", "novel:1:2025-11", "novel:2:2025-11"})
	require.NoError(t, err)
	unlock()
	unlock()

	assert.Equal(t, []string{"novel:2:2025-11", "novel:1:2025-11"}, released)
}

func TestLockAllReleasesOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	locker := mocks.NewMockLocker(ctrl)

	released := false
	locker.EXPECT().Lock(gomock.Any(), "a").Return(lock.Unlock(func() { released = true }), nil)
	locker.EXPECT().Lock(gomock.Any(), "b").Return(nil, errors.New("redis down"))

	_, err := lock.LockAll(context.Background(), locker, []string{"b", "a"})
	require.Error(t, err)
	assert.True(t, released)
}

func TestNewRedisLockerWithoutClient(t *testing.T) {
	assert.Nil(t, lock.NewRedisLocker(nil, time.Minute, time.Millisecond, nil))
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.DefaultSettlementConfig()
	locker, err := lock.New(lock.Params{
		Lifecycle: fxtest.NewLifecycle(t),
		Config:    config.StaticSettlementConfig(cfg),
		Log:       zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, lock.BackendMemory, locker.Backend())

	cfg.Lock.Backend = config.LockBackendRedis
	_, err = lock.New(lock.Params{
		Lifecycle: fxtest.NewLifecycle(t),
		Config:    config.StaticSettlementConfig(cfg),
		Log:       zap.NewNop(),
	})
	assert.ErrorIs(t, err, lock.ErrNotConfigured)
}
