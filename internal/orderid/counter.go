// File: internal/orderid/counter.go
// ============================================
package orderid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"invest-scalp-bot/internal/store"
)

// Key is where the last used order id lives.
const Key = "oid.txt"

// DefaultSeed is written when no counter exists yet.
const DefaultSeed int64 = 1_000_000

// Counter hands out client order ids that never repeat across restarts.
type Counter struct {
	mu    sync.Mutex
	store store.Store
	last  int64
}

// Load reads the counter, seeding it when the key is absent.
// A corrupt value is an error: guessing could reuse an id.
func Load(ctx context.Context, s store.Store, seed int64) (*Counter, error) {
	data, ok, err := s.Read(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("read order id counter: %w", err)
	}
	if !ok {
		if seed <= 0 {
			seed = DefaultSeed
		}
		if err := s.Write(ctx, Key, []byte(strconv.FormatInt(seed, 10))); err != nil {
			return nil, fmt.Errorf("seed order id counter: %w", err)
		}
		return &Counter{store: s, last: seed}, nil
	}
	last, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || last < 0 {
		return nil, fmt.Errorf("corrupt order id counter %q", string(data))
	}
	return &Counter{store: s, last: last}, nil
}

// Next persists and returns the next id. The caller must not place an
// order when Next fails.
func (c *Counter) Next(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.last + 1
	id := strconv.FormatInt(next, 10)
	if err := c.store.Write(ctx, Key, []byte(id)); err != nil {
		return "", fmt.Errorf("persist order id %s: %w", id, err)
	}
	c.last = next
	return id, nil
}

// Last returns the most recently issued id.
func (c *Counter) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
