package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kongfuworld/settlement/internal/calendar"
)

var (
	ErrEmptyKey      = errors.New("lock_key_empty")
	ErrNotConfigured = errors.New("lock_client_not_configured")
	ErrLeaseLost     = errors.New("lock_lease_lost")
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

//go:generate mockgen -source=lock.go -destination=./mocks/mock_locker.go -package=mocks

// Locker provides mutual exclusion per key across settlement workers.
type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
	Backend() string
}

// NovelMonthKey names the aggregation lock of one novel in one month.
func NovelMonthKey(novelID int64, month calendar.Month) string {
	return fmt.Sprintf("novel:%d:%s", novelID, month)
}

// LockAll acquires every key in sorted order so concurrent callers with
// overlapping key sets cannot deadlock. On failure nothing stays held.
func LockAll(ctx context.Context, locker Locker, keys []string) (Unlock, error) {
	ordered := dedupe(keys)
	held := make([]Unlock, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
		held = held[:0]
	}

	for _, key := range ordered {
		unlock, err := locker.Lock(ctx, key)
		if err != nil {
			release()
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		held = append(held, unlock)
	}
	return once(release), nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func once(fn func()) Unlock {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		fn()
	}
}
