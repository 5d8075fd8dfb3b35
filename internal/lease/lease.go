// Package lease serializes engine access to a trading account. Only one
// engine process may run cycles against an account at a time; a second
// instance must fail to acquire the lease rather than double-trade.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrHeld is returned when another process holds the account lease.
var ErrHeld = errors.New("account lease held by another process")

// Lease guards exclusive access to one account.
type Lease interface {
	// Acquire takes the lease or returns ErrHeld.
	Acquire(ctx context.Context) error
	// Renew extends the lease TTL. Fails if the lease was lost.
	Renew(ctx context.Context) error
	// Release gives the lease up. Releasing a lost lease is not an error.
	Release(ctx context.Context) error
}

// New returns a Redis-backed lease when addr is set, otherwise a
// process-local one (single-instance deployments without Redis).
func New(addr, password, accountID string, ttl time.Duration) Lease {
	if addr == "" {
		log.Printf("[lease] no redis configured, using process-local lease")
		return &localLease{}
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
	return &redisLease{
		client: client,
		key:    fmt.Sprintf("engine:lease:%s", accountID),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// redisLease implements the lease with SET NX PX and a per-process token so
// only the holder can renew or release.
type redisLease struct {
	client *goredis.Client
	key    string
	token  string
	ttl    time.Duration
}

var renewScript = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

var releaseScript = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

func (l *redisLease) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("lease acquire: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	log.Printf("[lease] acquired %s (ttl %s)", l.key, l.ttl)
	return nil
}

func (l *redisLease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("lease renew: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lease renew: %w", ErrHeld)
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result(); err != nil {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}

// localLease is an in-process fallback with the same semantics.
type localLease struct {
	mu   sync.Mutex
	held bool
}

func (l *localLease) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return ErrHeld
	}
	l.held = true
	return nil
}

func (l *localLease) Renew(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return fmt.Errorf("lease renew: %w", ErrHeld)
	}
	return nil
}

func (l *localLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}
