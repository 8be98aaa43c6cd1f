package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/repo/postgres"
)

func TestRepliedCommentRepo_ContainsAny_Empty(t *testing.T) {
	t.Parallel()
	repo := postgres.NewRepliedCommentRepo(&poolStub{})
	got, err := repo.ContainsAny(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRepliedCommentRepo_ContainsAny_MixedHits(t *testing.T) {
	t.Parallel()
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{
		func(dest ...any) error { *(dest[0].(*string)) = "c1"; return nil },
	}}}
	repo := postgres.NewRepliedCommentRepo(pool)

	got, err := repo.ContainsAny(context.Background(), []string{"c1", "c2"})
	require.NoError(t, err)
	assert.True(t, got["c1"])
	assert.False(t, got["c2"])
}

func TestRepliedCommentRepo_Insert_NewRow(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewRepliedCommentRepo(pool)

	inserted, err := repo.Insert(context.Background(), domain.RepliedComment{
		ExternalCommentID: "c1", VideoID: "v1", UserID: "u1", ReplyText: "thanks", RepliedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestRepliedCommentRepo_Insert_AlreadyPresent(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 0")}
	repo := postgres.NewRepliedCommentRepo(pool)

	inserted, err := repo.Insert(context.Background(), domain.RepliedComment{ExternalCommentID: "c1"})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestRepliedCommentRepo_Insert_Error(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execErr: errors.New("boom")}
	repo := postgres.NewRepliedCommentRepo(pool)
	_, err := repo.Insert(context.Background(), domain.RepliedComment{ExternalCommentID: "c1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=replied_comment.insert")
}

func TestRepliedCommentRepo_CountForUserToday(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*int64)) = 7
		return nil
	}}}
	repo := postgres.NewRepliedCommentRepo(pool)

	n, err := repo.CountForUserToday(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
}
