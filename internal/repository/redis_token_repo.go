package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "revculture:session:"

// DefaultTokenTTL はRedisに保存するトークンの有効期間。
// リフレッシュトークンの既定有効期間に合わせる。
const DefaultTokenTTL = 7 * 24 * time.Hour

// RedisTokenRepo はRedisにトークンを保存するリポジトリ。
// 複数インスタンス構成でもクライアントのセッションを共有できる。
type RedisTokenRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedis はREDIS_URLからクライアントを生成し、疎通を確認する。
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisTokenRepo はRedisTokenRepoを生成する。ttlが0以下の場合はDefaultTokenTTLを使用する。
func NewRedisTokenRepo(client *redis.Client, ttl time.Duration) *RedisTokenRepo {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &RedisTokenRepo{client: client, ttl: ttl}
}

// Load はクライアントのトークンを取得する。見つからない場合はnilを返す。
func (r *RedisTokenRepo) Load(ctx context.Context, clientID string) (*StoredSession, error) {
	b, err := r.client.Get(ctx, tokenKey(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session tokens: %w", err)
	}

	var s StoredSession
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session tokens: %w", err)
	}
	return &s, nil
}

// Save はクライアントのトークンをTTL付きで保存する。
func (r *RedisTokenRepo) Save(ctx context.Context, clientID string, session StoredSession) error {
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session tokens: %w", err)
	}
	if err := r.client.Set(ctx, tokenKey(clientID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session tokens: %w", err)
	}
	return nil
}

// Delete はクライアントのトークンを削除する。
func (r *RedisTokenRepo) Delete(ctx context.Context, clientID string) error {
	if err := r.client.Del(ctx, tokenKey(clientID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session tokens: %w", err)
	}
	return nil
}

func tokenKey(clientID string) string {
	return tokenKeyPrefix + clientID
}

// compile-time interface check
var _ TokenRepository = (*RedisTokenRepo)(nil)
