package registryhttp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeboard/tradeboard/internal/registry"
)

const (
	generationKey     = "registry:generation"
	generationChannel = "registry.bump"
)

// Cache keeps serialized views in Redis. Keys end with a generation number
// that Bump advances. Once ListenForInvalidation runs, the process keeps the
// latest generation in memory instead of reading it per request.
type Cache struct {
	client     *redis.Client
	ttl        time.Duration
	listening  atomic.Bool
	generation atomic.Int64
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Generation returns the current key generation. A missing counter is 0.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	if c.listening.Load() {
		return c.generation.Load(), nil
	}
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// BuildKey joins parts and appends the current generation.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(parts, ":") + ":" + strconv.FormatInt(gen, 10), nil
}

// fetch returns the value stored under key or stores what load produces.
func fetch[T any](ctx context.Context, c *Cache, key string, load func() (T, error)) (T, error) {
	var zero T
	if !c.enabled() {
		return load()
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if err := json.Unmarshal(payload, &cached); err != nil {
			return zero, fmt.Errorf("registry cache: decode %s: %w", key, err)
		}
		return cached, nil
	case !errors.Is(err, redis.Nil):
		return zero, err
	}

	value, err := load()
	if err != nil {
		return zero, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return zero, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return zero, err
	}
	return value, nil
}

// Bump moves every process to a new generation, orphaning existing entries
// until their TTL expires.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	gen, err := c.client.Incr(ctx, generationKey).Result()
	if err != nil {
		return err
	}
	c.advance(gen)
	return c.client.Publish(ctx, generationChannel, strconv.FormatInt(gen, 10)).Err()
}

func (c *Cache) advance(gen int64) {
	for {
		cur := c.generation.Load()
		if gen <= cur || c.generation.CompareAndSwap(cur, gen) {
			return
		}
	}
}

// ListenForInvalidation seeds the in-memory generation and follows bumps
// published by other processes until ctx ends. The subscription is active
// when it returns.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, generationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	gen, err := c.Generation(ctx)
	if err != nil {
		_ = pubsub.Close()
		return err
	}
	c.advance(gen)
	c.listening.Store(true)

	go func() {
		defer func() { _ = pubsub.Close() }()
		defer c.listening.Store(false)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if gen, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					c.advance(gen)
				}
			}
		}
	}()
	return nil
}

// keyView scopes a cached view to the caller and to the snapshot content, so
// processes sharing Redis with different data never read each other's views.
func keyView(id registry.Identity, content string, f registry.FilterState) []string {
	return []string{
		"registry", "view",
		string(id.Role),
		strings.TrimSpace(id.MemberID),
		content,
		filterDigest(f),
	}
}

// filterDigest hashes a canonical rendering of f so that equal filter states
// share one cache entry regardless of selection order.
func filterDigest(f registry.FilterState) string {
	var b strings.Builder
	b.WriteString(formatBound(f.Start))
	b.WriteByte('|')
	b.WriteString(formatBound(f.End))

	fields := make([]string, 0, len(f.Selections))
	for field, values := range f.Selections {
		if len(values) > 0 {
			fields = append(fields, string(field))
		}
	}
	sort.Strings(fields)
	for _, field := range fields {
		values := append([]string(nil), f.Selections[registry.Field(field)]...)
		sort.Strings(values)
		b.WriteByte('|')
		b.WriteString(field)
		b.WriteByte('=')
		b.WriteString(strings.Join(values, "\x1f"))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}
