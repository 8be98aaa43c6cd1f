// Package quota implements the QuotaAccountant (component B): a dual-scope
// daily budget enforced via a Redis Lua-scripted atomic counter, with the
// per-user reply count sourced from the RepliedComment audit log per
// spec.md §9's consolidated semantics.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/observability"
)

const keyTTL = 48 * time.Hour

// Accountant implements domain.QuotaAccountant.
type Accountant struct {
	redis   *redis.Client
	replied domain.RepliedCommentRepository
	script  *redis.Script

	globalDailyBudget int
	perUserDailyCap   int

	now func() time.Time
}

// New constructs an Accountant backed by the given Redis client and
// RepliedComment repository, with caps read from cfg.
func New(rdb *redis.Client, replied domain.RepliedCommentRepository, cfg config.Config) *Accountant {
	return &Accountant{
		redis:             rdb,
		replied:           replied,
		script:            redis.NewScript(reserveScript),
		globalDailyBudget: cfg.DailyGlobalAPIBudget,
		perUserDailyCap:   cfg.PerUserDailyReplyCap,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

func globalKey(t time.Time) string { return "quota:global:" + dateKey(t) }

func userKey(userID string, t time.Time) string { return "quota:user:" + userID + ":" + dateKey(t) }

// RemainingGlobal returns the global daily API-unit headroom for today,
// clamped to zero once exhausted.
func (a *Accountant) RemainingGlobal(ctx context.Context) (int, error) {
	spent, err := a.getCounter(ctx, globalKey(a.now()))
	if err != nil {
		return 0, fmt.Errorf("op=quota.remaining_global: %w", err)
	}
	remaining := a.globalDailyBudget - spent
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RemainingForUser returns one user's daily reply-cap headroom, clamped to
// zero once exhausted.
func (a *Accountant) RemainingForUser(ctx context.Context, userID string) (int, error) {
	spent, err := a.getCounter(ctx, userKey(userID, a.now()))
	if err != nil {
		return 0, fmt.Errorf("op=quota.remaining_for_user: %w", err)
	}
	remaining := a.perUserDailyCap - spent
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (a *Accountant) getCounter(ctx context.Context, key string) (int, error) {
	n, err := a.redis.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CanReserve reports whether both budgets have headroom: the global budget
// must be able to absorb cost units, and the user must have at least one
// reply of headroom left.
func (a *Accountant) CanReserve(ctx context.Context, cost int, userID string) (bool, error) {
	remainingGlobal, err := a.RemainingGlobal(ctx)
	if err != nil {
		return false, err
	}
	remainingUser, err := a.RemainingForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return remainingGlobal >= cost && remainingUser > 0, nil
}

// Reserve atomically credits cost units to today's global counter and one
// reply to today's per-user counter. Per spec.md §4.B, a reservation that
// crosses the cap still commits -- callers must call CanReserve first; the
// resulting overshoot is bounded by worker_concurrency * reply_cost and is
// not unwound.
func (a *Accountant) Reserve(ctx context.Context, cost int, userID string) error {
	now := a.now()
	keys := []string{globalKey(now), userKey(userID, now)}
	if err := a.script.Run(ctx, a.redis, keys, cost, int(keyTTL.Seconds())).Err(); err != nil {
		return fmt.Errorf("op=quota.reserve: %w", err)
	}
	observability.QuotaReservedUnitsTotal.Add(float64(cost))
	return nil
}

// UserReplyCount is the source of truth for dashboards: the count of
// RepliedComment rows for the user on the current UTC date, per spec.md §9
// ("this spec fixes the semantics: user_reply_count counts RepliedComment
// rows for the current local date").
func (a *Accountant) UserReplyCount(ctx context.Context, userID string) (int64, error) {
	n, err := a.replied.CountForUserToday(ctx, userID, a.now())
	if err != nil {
		return 0, fmt.Errorf("op=quota.user_reply_count: %w", err)
	}
	return n, nil
}
