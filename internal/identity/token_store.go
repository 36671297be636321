package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hitoshi/carmarket/internal/repository"
)

// TokenStore はメール確認トークンのハッシュを期限付きで保持する。
type TokenStore interface {
	// Save はユーザーのトークンハッシュを保存する。既存の値は置き換える。
	Save(ctx context.Context, userID, tokenHash string, ttl time.Duration) error

	// Consume はハッシュが一致すれば削除してtrueを返す。
	Consume(ctx context.Context, userID, tokenHash string) (bool, error)
}

// hashToken はトークンのSHA-256ハッシュ（16進）を返す。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PostgresTokenStore はemail_confirmation_tokensテーブルを使うTokenStore。
type PostgresTokenStore struct {
	repo repository.EmailTokenRepository
	now  func() time.Time
}

// NewPostgresTokenStore はPostgresTokenStoreを生成する。
func NewPostgresTokenStore(repo repository.EmailTokenRepository) *PostgresTokenStore {
	return &PostgresTokenStore{repo: repo, now: time.Now}
}

// Save はトークンハッシュを有効期限付きで保存する。
func (s *PostgresTokenStore) Save(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	return s.repo.Upsert(ctx, userID, tokenHash, s.now().Add(ttl))
}

// Consume は期限内のトークンハッシュが一致すれば削除してtrueを返す。
func (s *PostgresTokenStore) Consume(ctx context.Context, userID, tokenHash string) (bool, error) {
	return s.repo.Consume(ctx, userID, tokenHash, s.now())
}

const redisTokenPrefix = "confirm_email"

// consumeScript は値が一致した場合のみキーを削除する。
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTokenStore はRedisのTTL付きキーを使うTokenStore。
// キーは "confirm_email:<ユーザーID>"。
type RedisTokenStore struct {
	client redis.UniversalClient
}

// NewRedisTokenStore はRedisTokenStoreを生成する。
func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) key(userID string) string {
	return fmt.Sprintf("%s:%s", redisTokenPrefix, userID)
}

// Save はトークンハッシュをTTL付きで保存する。
func (s *RedisTokenStore) Save(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(userID), tokenHash, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save confirmation token: %w", err)
	}
	return nil
}

// Consume はハッシュが一致すればキーを削除してtrueを返す。期限切れのキーは存在しない扱い。
func (s *RedisTokenStore) Consume(ctx context.Context, userID, tokenHash string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.key(userID)}, tokenHash).Int()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to consume confirmation token: %w", err)
	}
	return n == 1, nil
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// compile-time interface check
var (
	_ TokenStore = (*PostgresTokenStore)(nil)
	_ TokenStore = (*RedisTokenStore)(nil)
)
