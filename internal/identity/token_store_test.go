package identity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmailTokenRepo struct {
	userID    string
	hash      string
	expiresAt time.Time
	now       time.Time
}

func (f *fakeEmailTokenRepo) Upsert(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	f.userID, f.hash, f.expiresAt = userID, tokenHash, expiresAt
	return nil
}

func (f *fakeEmailTokenRepo) Consume(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	f.now = now
	return userID == f.userID && tokenHash == f.hash && now.Before(f.expiresAt), nil
}

func TestHashToken_IsDeterministicHex(t *testing.T) {
	h1 := hashToken("abc")
	h2 := hashToken("abc")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, hashToken("abd"))
}

func TestPostgresTokenStore_ExpiryFromClock(t *testing.T) {
	repo := &fakeEmailTokenRepo{}
	store := NewPostgresTokenStore(repo)
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	require.NoError(t, store.Save(context.Background(), "u1", "h", 2*time.Hour))
	assert.Equal(t, fixed.Add(2*time.Hour), repo.expiresAt)

	ok, err := store.Consume(context.Background(), "u1", "h")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fixed, repo.now)

	store.now = func() time.Time { return fixed.Add(3 * time.Hour) }
	ok, err = store.Consume(context.Background(), "u1", "h")
	require.NoError(t, err)
	assert.False(t, ok, "expired token must be rejected")
}

func TestRedisTokenStore_Key(t *testing.T) {
	store := NewRedisTokenStore(nil)
	assert.Equal(t, "confirm_email:user-1", store.key("user-1"))
}

// TestRedisTokenStore_SaveAndConsume はTEST_REDIS_URLのRedisに対して保存と消費を検証する。
func TestRedisTokenStore_SaveAndConsume(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL が未設定のためスキップ")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, redisURL)
	if err != nil {
		t.Skipf("Redisに接続できません（スキップ）: %v", err)
	}
	defer client.Close()

	store := NewRedisTokenStore(client)
	userID := "test-" + time.Now().Format("150405.000000")
	defer client.Del(ctx, store.key(userID))

	require.NoError(t, store.Save(ctx, userID, "hash-1", time.Minute))

	ttl, err := client.TTL(ctx, store.key(userID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	ok, err := store.Consume(ctx, userID, "other")
	require.NoError(t, err)
	assert.False(t, ok, "mismatched hash must not consume")

	ok, err = store.Consume(ctx, userID, "hash-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, userID, "hash-1")
	require.NoError(t, err)
	assert.False(t, ok, "token must be single use")
}
