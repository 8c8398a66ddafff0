// Package ratelimit ограничивает число ссылок, которые анонимный источник может создать за сутки.
//
// Счётчики хранятся вне основной базы в хранилище с истечением ключей. Ключ включает
// календарный день UTC, поэтому новый день начинается с нуля даже при задержке истечения.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tempizhere/redirector/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultMax число ссылок в сутки по умолчанию
	DefaultMax = 5
	// KeyTTL время жизни счётчика, чуть больше суток
	KeyTTL = 25 * time.Hour

	keyPrefix = "ratelimit:create:"
	dayLayout = "2006-01-02"
)

// Store хранилище счётчиков с истечением ключей
type Store interface {
	// Get возвращает значение счётчика и false, если ключа нет
	Get(ctx context.Context, key string) (int64, bool, error)
	// Incr увеличивает счётчик на единицу и продлевает срок жизни ключа до ttl
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter проверяет и учитывает суточный лимит создания ссылок
type Limiter struct {
	store  Store
	max    int
	now    func() time.Time
	logger *zap.Logger
}

// NewLimiter создаёт Limiter с лимитом max в сутки
func NewLimiter(store Store, max int, logger *zap.Logger) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	return &Limiter{
		store:  store,
		max:    max,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock подменяет источник времени
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Max возвращает суточный лимит
func (l *Limiter) Max() int {
	return l.max
}

// Key строит ключ счётчика для источника и дня
func Key(source string, day time.Time) string {
	return keyPrefix + source + ":" + day.UTC().Format(dayLayout)
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// Check сообщает, может ли источник создать ещё одну ссылку. Состояние не изменяется.
func (l *Limiter) Check(ctx context.Context, source string) (models.RateDecision, error) {
	now := l.now()
	decision := models.RateDecision{Limit: l.max, ResetAt: nextMidnight(now)}

	count, _, err := l.store.Get(ctx, Key(source, now))
	if err != nil {
		return decision, fmt.Errorf("rate limit check: %w", err)
	}

	if int(count) < l.max {
		decision.Allowed = true
		decision.Remaining = l.max - int(count) - 1
	}
	return decision, nil
}

// Increment учитывает успешно созданную ссылку и возвращает новое значение счётчика
func (l *Limiter) Increment(ctx context.Context, source string) (int64, error) {
	key := Key(source, l.now())
	count, err := l.store.Incr(ctx, key, KeyTTL)
	if err != nil {
		return 0, fmt.Errorf("rate limit increment: %w", err)
	}
	l.logger.Debug("Rate limit counter incremented", zap.String("key", key), zap.Int64("count", count))
	return count, nil
}
