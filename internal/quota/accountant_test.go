package quota_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/quota"
)

type fakeRepliedRepo struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRepliedRepo() *fakeRepliedRepo { return &fakeRepliedRepo{counts: map[string]int64{}} }

func (f *fakeRepliedRepo) ContainsAny(context.Context, []string) (map[string]bool, error) { return nil, nil }
func (f *fakeRepliedRepo) Insert(context.Context, domain.RepliedComment) (bool, error)     { return true, nil }
func (f *fakeRepliedRepo) ListIDsForUser(context.Context, string) ([]string, error)        { return nil, nil }
func (f *fakeRepliedRepo) StatsForUser(context.Context, string) (domain.ReplyStats, error) {
	return domain.ReplyStats{}, nil
}
func (f *fakeRepliedRepo) DailyCounts(context.Context, string, int) (map[string]int64, error) {
	return nil, nil
}
func (f *fakeRepliedRepo) CountForUserToday(_ context.Context, userID string, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[userID], nil
}
func (f *fakeRepliedRepo) set(userID string, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[userID] = n
}

func newTestAccountant(t *testing.T, budget, perUserCap int) (*quota.Accountant, *fakeRepliedRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newFakeRepliedRepo()
	cfg := config.Config{DailyGlobalAPIBudget: budget, PerUserDailyReplyCap: perUserCap}
	return quota.New(rdb, repo, cfg), repo
}

func TestAccountant_RemainingGlobal_StartsAtBudget(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccountant(t, 60, 10)
	remaining, err := a.RemainingGlobal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60, remaining)
}

func TestAccountant_Reserve_DebitsGlobalAndUser(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccountant(t, 60, 10)
	ctx := context.Background()

	require.NoError(t, a.Reserve(ctx, 50, "u1"))

	remaining, err := a.RemainingGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	remainingUser, err := a.RemainingForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 9, remainingUser)
}

func TestAccountant_CanReserve_FalseWhenGlobalExhausted(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccountant(t, 60, 10)
	ctx := context.Background()
	require.NoError(t, a.Reserve(ctx, 50, "u1"))

	ok, err := a.CanReserve(ctx, 50, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccountant_Reserve_ConcurrentIsAtomic(t *testing.T) {
	t.Parallel()
	a, _ := newTestAccountant(t, 100000, 100000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Reserve(ctx, 50, "u1")
		}()
	}
	wg.Wait()

	remaining, err := a.RemainingGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100000-20*50, remaining)
}

func TestAccountant_UserReplyCount_SourcedFromRepliedComments(t *testing.T) {
	t.Parallel()
	a, repo := newTestAccountant(t, 60, 10)
	repo.set("u1", 3)

	n, err := a.UserReplyCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
