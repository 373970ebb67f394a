package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrBusy indica que outra execução detém o lock da empresa
var ErrBusy = errors.New("recurso bloqueado por outra execução")

// Lock é um lock obtido que deve ser liberado
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtém locks exclusivos por chave
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

// CompanyKey monta a chave do lock de DF-e de uma empresa
func CompanyKey(companyID int64) string {
	return fmt.Sprintf("lock:dfe:%d", companyID)
}

// refresher é o lock remoto com TTL; *redislock.Lock o implementa
type refresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
	Release(ctx context.Context) error
}

type obtainFunc func(ctx context.Context, key string, ttl time.Duration) (refresher, error)

// RedisLocker usa redislock para exclusão mútua entre processos. O lock obtido
// é renovado a cada ttl/2 enquanto estiver em uso.
type RedisLocker struct {
	obtain obtainFunc
	ttl    time.Duration
}

// NewRedisLocker cria o locker sobre um cliente Redis existente
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	client := redislock.New(rdb)
	return &RedisLocker{
		obtain: func(ctx context.Context, key string, ttl time.Duration) (refresher, error) {
			lk, err := client.Obtain(ctx, key, ttl, nil)
			if err != nil {
				return nil, err
			}
			return lk, nil
		},
		ttl: ttl,
	}
}

// NewRedisClient conecta ao Redis e testa a conexão
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("falha ao conectar ao redis em %s: %w", addr, err)
	}
	return rdb, nil
}

// Obtain tenta obter o lock sem espera. A renovação para quando o lock é
// liberado ou quando ctx é cancelado.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	lk, err := l.obtain(ctx, key, l.ttl)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("falha ao obter lock %s: %w", key, err)
	}
	return keepAlive(ctx, key, lk, l.ttl), nil
}

// heldLock renova o lock remoto em segundo plano até Release
type heldLock struct {
	key    string
	lk     refresher
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	lost error
}

func keepAlive(ctx context.Context, key string, lk refresher, ttl time.Duration) *heldLock {
	rctx, cancel := context.WithCancel(ctx)
	h := &heldLock{key: key, lk: lk, cancel: cancel, done: make(chan struct{})}
	go h.refresh(rctx, ttl)
	return h
}

func (h *heldLock) refresh(ctx context.Context, ttl time.Duration) {
	defer close(h.done)

	interval := ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.lk.Refresh(ctx, ttl, nil); err != nil {
				if ctx.Err() != nil {
					return
				}
				h.mu.Lock()
				h.lost = err
				h.mu.Unlock()
				return
			}
		}
	}
}

// Release para a renovação e libera o lock. Se a renovação falhou antes,
// o erro informa que o lock foi perdido durante a execução.
func (h *heldLock) Release(ctx context.Context) error {
	h.cancel()
	<-h.done

	err := h.lk.Release(ctx)

	h.mu.Lock()
	lost := h.lost
	h.mu.Unlock()
	if lost != nil {
		return fmt.Errorf("lock %s perdido durante a execução: %w", h.key, lost)
	}
	return err
}

// MemoryLocker é o locker em processo usado quando não há Redis configurado
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker cria um locker em memória
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// Obtain tenta obter o lock sem espera
func (l *MemoryLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrBusy
	}
	l.held[key] = struct{}{}
	return &memoryLock{parent: l, key: key}, nil
}

type memoryLock struct {
	parent *MemoryLocker
	key    string
	once   sync.Once
}

func (m *memoryLock) Release(ctx context.Context) error {
	m.once.Do(func() {
		m.parent.mu.Lock()
		delete(m.parent.held, m.key)
		m.parent.mu.Unlock()
	})
	return nil
}
