// Package redis backs artifact storage and the run ledger with Redis
// via rueidis. Blobs live under <prefix>:blob:, run hashes under
// <prefix>:run:.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/protomerlab/protomer/internal/storage"
)

// Compile-time check: Store implements storage.Store.
var _ storage.Store = (*Store)(nil)

// Config holds connection parameters for a Redis store.
type Config struct {
	InitAddress []string
	Username    string
	Password    string
	SelectDB    int
	KeyPrefix   string
}

// Store implements artifact blob storage and ledger hash operations via
// rueidis.
type Store struct {
	client rueidis.Client
	prefix string
}

// NewStore connects to Redis. The key prefix defaults to "protomer" so
// several deployments can share one instance.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.InitAddress) == 0 {
		return nil, errors.New("redis: init address is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "protomer"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.InitAddress,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.SelectDB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: new client: %w", err)
	}

	return &Store{client: client, prefix: prefix}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings until the store answers or the timeout expires.
// The first ping is immediate, so an already-running Redis adds no
// startup delay.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis not ready after %s: %w", timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

func (s *Store) blobKey(u storage.URI) string {
	return s.prefix + ":blob:" + u.Bucket + "/" + u.Key
}
