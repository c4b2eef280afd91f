package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

// Set TEST_MONGO_URI to run; every test gets its own database.
func openTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := Open(ctx, uri, "quickchat_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Client().Disconnect(context.Background())
	})
	return db
}

func TestUserRepo(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepo(db)

	require.NoError(t, repo.Upsert(ctx, &domain.User{ID: "u1", Email: "a@x.io", FullName: "A User", Bio: "Please update your profile."}))
	bio := "mine"
	_, err := repo.UpdateProfile(ctx, "u1", domain.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, &domain.User{ID: "u1", Email: "b@x.io", FullName: "B User", Bio: "Please update your profile."}))

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b@x.io", got.Email)
	assert.Equal(t, "mine", got.Bio)

	err = repo.Create(ctx, &domain.User{ID: "u2", Email: "b@x.io", FullName: "Dup"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, repo.Create(ctx, &domain.User{ID: "u3", Email: "c@x.io", FullName: "C"}))
	peers, err := repo.ListExcept(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "u3", peers[0].ID)

	require.NoError(t, repo.Delete(ctx, "u3"))
	_, err = repo.GetByID(ctx, "u3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	gone, err := repo.IsDeleted(ctx, "u3")
	require.NoError(t, err)
	assert.True(t, gone)
}

func TestMessageRepo(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewMessageRepo(db)
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, m := range []*domain.Message{
		{ID: "m2", SenderID: "bob", ReceiverID: "alice", Text: "two", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "one", CreatedAt: base.Add(time.Second)},
		{ID: "m3", SenderID: "carol", ReceiverID: "alice", Image: "https://img", CreatedAt: base.Add(3 * time.Second)},
	} {
		require.NoError(t, repo.Create(ctx, m), "message %d", i)
	}

	list, err := repo.ListBetween(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID)
	assert.Equal(t, "m2", list[1].ID)

	counts, err := repo.UnseenCounts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bob": 1, "carol": 1}, counts)

	n, err := repo.MarkSeenFrom(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.MarkSeen(ctx, "m3"))
	require.NoError(t, repo.MarkSeen(ctx, "m3"))
	assert.ErrorIs(t, repo.MarkSeen(ctx, "nope"), domain.ErrNotFound)
}
