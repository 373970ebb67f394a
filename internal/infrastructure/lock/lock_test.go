package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bsm/redislock"
)

func TestCompanyKey(t *testing.T) {
	if got := CompanyKey(42); got != "lock:dfe:42" {
		t.Errorf("CompanyKey = %s", got)
	}
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	first, err := l.Obtain(ctx, CompanyKey(1))
	if err != nil {
		t.Fatalf("primeiro Obtain falhou: %v", err)
	}
	if _, err := l.Obtain(ctx, CompanyKey(1)); !errors.Is(err, ErrBusy) {
		t.Fatalf("esperado ErrBusy, veio %v", err)
	}
	other, err := l.Obtain(ctx, CompanyKey(2))
	if err != nil {
		t.Fatalf("empresas diferentes não devem se bloquear: %v", err)
	}
	_ = other.Release(ctx)

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release falhou: %v", err)
	}
	_ = first.Release(ctx)

	again, err := l.Obtain(ctx, CompanyKey(1))
	if err != nil {
		t.Fatalf("lock liberado deveria ser obtido novamente: %v", err)
	}
	_ = again.Release(ctx)
}

// ttlStore imita o Redis: a chave expira sozinha se não for renovada
type ttlStore struct {
	mu        sync.Mutex
	expires   map[string]time.Time
	refreshes int
}

func newTTLStore() *ttlStore {
	return &ttlStore{expires: map[string]time.Time{}}
}

func (s *ttlStore) obtain(_ context.Context, key string, ttl time.Duration) (refresher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.expires[key]; ok && time.Now().Before(exp) {
		return nil, redislock.ErrNotObtained
	}
	s.expires[key] = time.Now().Add(ttl)
	return &ttlLock{store: s, key: key}, nil
}

func (s *ttlStore) expire(key string) {
	s.mu.Lock()
	delete(s.expires, key)
	s.mu.Unlock()
}

type ttlLock struct {
	store *ttlStore
	key   string
}

func (l *ttlLock) Refresh(_ context.Context, ttl time.Duration, _ *redislock.Options) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	exp, ok := l.store.expires[l.key]
	if !ok || time.Now().After(exp) {
		return redislock.ErrNotObtained
	}
	l.store.expires[l.key] = time.Now().Add(ttl)
	l.store.refreshes++
	return nil
}

func (l *ttlLock) Release(context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if _, ok := l.store.expires[l.key]; !ok {
		return redislock.ErrLockNotHeld
	}
	delete(l.store.expires, l.key)
	return nil
}

func TestRedisLockerRefreshesDuringLongRun(t *testing.T) {
	ctx := context.Background()
	store := newTTLStore()
	ttl := 100 * time.Millisecond
	l := &RedisLocker{obtain: store.obtain, ttl: ttl}

	held, err := l.Obtain(ctx, CompanyKey(1))
	if err != nil {
		t.Fatalf("Obtain falhou: %v", err)
	}

	// a execução dura várias vezes o TTL
	time.Sleep(4 * ttl)

	if _, err := l.Obtain(ctx, CompanyKey(1)); !errors.Is(err, ErrBusy) {
		t.Fatalf("lock deveria continuar ocupado após o TTL, veio %v", err)
	}

	if err := held.Release(ctx); err != nil {
		t.Fatalf("Release falhou: %v", err)
	}
	store.mu.Lock()
	refreshes := store.refreshes
	store.mu.Unlock()
	if refreshes < 2 {
		t.Errorf("renovações = %d, esperado ao menos 2", refreshes)
	}

	again, err := l.Obtain(ctx, CompanyKey(1))
	if err != nil {
		t.Fatalf("lock liberado deveria ser obtido novamente: %v", err)
	}
	_ = again.Release(ctx)
}

func TestRedisLockerReportsLostLock(t *testing.T) {
	ctx := context.Background()
	store := newTTLStore()
	ttl := 60 * time.Millisecond
	l := &RedisLocker{obtain: store.obtain, ttl: ttl}

	held, err := l.Obtain(ctx, CompanyKey(2))
	if err != nil {
		t.Fatalf("Obtain falhou: %v", err)
	}
	store.expire(CompanyKey(2))
	time.Sleep(2 * ttl)

	if err := held.Release(ctx); !errors.Is(err, redislock.ErrNotObtained) {
		t.Errorf("Release deveria informar a perda do lock, veio %v", err)
	}
}

func TestRedisLockerStopsRefreshOnCancel(t *testing.T) {
	store := newTTLStore()
	ttl := 60 * time.Millisecond
	l := &RedisLocker{obtain: store.obtain, ttl: ttl}

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := l.Obtain(ctx, CompanyKey(3)); err != nil {
		t.Fatalf("Obtain falhou: %v", err)
	}
	cancel()
	time.Sleep(2 * ttl)

	again, err := l.Obtain(context.Background(), CompanyKey(3))
	if err != nil {
		t.Fatalf("sem renovação o lock deveria expirar, veio %v", err)
	}
	_ = again.Release(context.Background())
}
