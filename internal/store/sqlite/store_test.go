package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "migrate is idempotent")
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(openTestDB(t))

	alice := &domain.User{ID: "alice", Email: "alice@example.com", FullName: "Alice", Bio: "hi"}
	require.NoError(t, repo.Create(ctx, alice))
	require.NoError(t, repo.Create(ctx, &domain.User{ID: "bob", Email: "bob@example.com", FullName: "Bob"}))

	err := repo.Create(ctx, &domain.User{ID: "eve", Email: "alice@example.com", FullName: "Eve"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ID)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repo.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	peers, err := repo.ListExcept(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "bob", peers[0].ID)

	updated, err := repo.UpdateProfile(ctx, "alice", domain.ProfileUpdate{Bio: ptr("new bio")})
	require.NoError(t, err)
	assert.Equal(t, "new bio", updated.Bio)
	assert.Equal(t, "Alice", updated.FullName, "nil fields untouched")

	_, err = repo.UpdateProfile(ctx, "nobody", domain.ProfileUpdate{Bio: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	gone, err := repo.IsDeleted(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, gone)

	require.NoError(t, repo.Delete(ctx, "bob"))
	assert.ErrorIs(t, repo.Delete(ctx, "bob"), domain.ErrNotFound)

	gone, err = repo.IsDeleted(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, gone)

	// deleting an id that never had a profile still leaves a tombstone
	assert.ErrorIs(t, repo.Delete(ctx, "never-seen"), domain.ErrNotFound)
	gone, err = repo.IsDeleted(ctx, "never-seen")
	require.NoError(t, err)
	assert.True(t, gone)
}

func TestUserRepoUpsertKeepsBio(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(openTestDB(t))

	require.NoError(t, repo.Upsert(ctx, &domain.User{ID: "u1", Email: "a@x.io", FullName: "A User", Bio: "Please update your profile."}))
	_, err := repo.UpdateProfile(ctx, "u1", domain.ProfileUpdate{Bio: ptr("mine")})
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, &domain.User{ID: "u1", Email: "b@x.io", FullName: "B User", ProfilePic: "https://img/b", Bio: "Please update your profile."}))

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b@x.io", got.Email)
	assert.Equal(t, "B User", got.FullName)
	assert.Equal(t, "https://img/b", got.ProfilePic)
	assert.Equal(t, "mine", got.Bio)
}

func seedMessage(t *testing.T, repo *MessageRepo, id, from, to string, at time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &domain.Message{
		ID: id, SenderID: from, ReceiverID: to, Text: "t-" + id, CreatedAt: at,
	}))
}

func TestMessageRepoPairScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepo(openTestDB(t))
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, repo, "m2", "bob", "alice", base.Add(2*time.Second))
	seedMessage(t, repo, "m1", "alice", "bob", base.Add(time.Second))
	seedMessage(t, repo, "m3", "alice", "carol", base.Add(3*time.Second))
	seedMessage(t, repo, "m4", "carol", "bob", base.Add(4*time.Second))

	msgs, err := repo.ListBetween(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	for _, m := range msgs {
		assert.True(t, m.Between("alice", "bob"))
	}
	assert.True(t, msgs[0].CreatedAt.Equal(base.Add(time.Second)))
}

func TestMessageRepoSeenState(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepo(openTestDB(t))
	now := time.Now()

	seedMessage(t, repo, "m1", "bob", "alice", now)
	seedMessage(t, repo, "m2", "bob", "alice", now.Add(time.Millisecond))
	seedMessage(t, repo, "m3", "carol", "alice", now.Add(2*time.Millisecond))
	seedMessage(t, repo, "m4", "alice", "bob", now.Add(3*time.Millisecond))

	counts, err := repo.UnseenCounts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bob": 2, "carol": 1}, counts)

	require.NoError(t, repo.MarkSeen(ctx, "m3"))
	require.NoError(t, repo.MarkSeen(ctx, "m3"), "idempotent")
	assert.ErrorIs(t, repo.MarkSeen(ctx, "missing"), domain.ErrNotFound)

	n, err := repo.MarkSeenFrom(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	counts, err = repo.UnseenCounts(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, counts)

	m4, err := repo.GetByID(ctx, "m4")
	require.NoError(t, err)
	assert.False(t, m4.Seen, "other direction untouched")
}
