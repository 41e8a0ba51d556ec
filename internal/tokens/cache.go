// Package tokens caches device tokens in Redis for provider capability
// checks.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/retry"
)

// Cache reads and writes push device tokens keyed by tenant and
// recipient.
type Cache struct {
	client     *redis.Client
	strategy   retry.Strategy
	expiration time.Duration
}

func NewCache(client *redis.Client, strategy retry.Strategy, expiration time.Duration) *Cache {
	return &Cache{client: client, strategy: strategy, expiration: expiration}
}

func key(tenantID, recipient string) string {
	return fmt.Sprintf("push_token:%s:%s", tenantID, recipient)
}

// Token returns the cached token, or "" when none is stored.
func (c *Cache) Token(ctx context.Context, tenantID, recipient string) (string, error) {
	token, err := c.client.Get(ctx, key(tenantID, recipient))
	if err != nil {
		return "", fmt.Errorf("get token for %s/%s: %w", tenantID, recipient, err)
	}
	return token, nil
}

// Store caches a token with the configured expiration.
func (c *Cache) Store(ctx context.Context, tenantID, recipient, token string) error {
	err := retry.DoContext(ctx, c.strategy, func() error {
		return c.client.SetWithExpiration(ctx, key(tenantID, recipient), []byte(token), c.expiration)
	})
	if err != nil {
		return fmt.Errorf("store token for %s/%s: %w", tenantID, recipient, err)
	}
	return nil
}
