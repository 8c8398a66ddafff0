package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval период удаления истёкших счётчиков
const sweepInterval = time.Hour

type counter struct {
	value     int64
	expiresAt time.Time
}

// MemoryStore хранит счётчики в памяти процесса
type MemoryStore struct {
	mu        sync.Mutex
	counters  map[string]counter
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryStore создаёт пустой MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]counter),
		now:      time.Now,
	}
}

// Get возвращает значение действующего счётчика
func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return 0, false, nil
	}
	if !s.now().Before(c.expiresAt) {
		delete(s.counters, key)
		return 0, false, nil
	}
	return c.value, true, nil
}

// Incr увеличивает счётчик и продлевает срок его жизни
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = counter{}
	}
	c.value++
	c.expiresAt = now.Add(ttl)
	s.counters[key] = c
	return c.value, nil
}

// sweepLocked удаляет истёкшие счётчики не чаще раза в sweepInterval.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	for key, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, key)
		}
	}
	s.lastSweep = now
}

// Len возвращает число хранимых счётчиков, включая ещё не удалённые истёкшие
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
