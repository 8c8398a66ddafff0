package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempizhere/redirector/internal/models"
)

func mapping(shortcode, subdomain string, owner *string) *models.Mapping {
	return &models.Mapping{
		ID:          uuid.New(),
		Shortcode:   shortcode,
		Subdomain:   subdomain,
		Destination: "https://dest.example/" + shortcode,
		OwnerID:     owner,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	// Проверяем, что MemoryRepository реализует интерфейс Store
	var _ Store = (*MemoryRepository)(nil)

	// Тест 1: Сохранение и получение ссылки
	m := mapping("abc123", models.GlobalSubdomain, nil)
	n, err := repo.InsertMappingIfUnderQuota(ctx, m, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := repo.FindMapping(ctx, "abc123", models.GlobalSubdomain)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, m.Destination, found.Destination)

	// Тест 2: Повтор в глобальном пространстве даёт конфликт
	_, err = repo.InsertMappingIfUnderQuota(ctx, mapping("abc123", models.GlobalSubdomain, nil), 0)
	assert.ErrorIs(t, err, ErrConflict)

	// Тест 3: Тот же код в другом поддомене независим
	n, err = repo.InsertMappingIfUnderQuota(ctx, mapping("abc123", "foo", nil), 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	partitioned, err := repo.FindMapping(ctx, "abc123", "foo")
	require.NoError(t, err)
	require.NotNil(t, partitioned)
	assert.NotEqual(t, m.ID, partitioned.ID)

	// Тест 4: Отсутствующий код
	missing, err := repo.FindMapping(ctx, "nope", models.GlobalSubdomain)
	assert.NoError(t, err)
	assert.Nil(t, missing)

	// Тест 5: Очистка хранилища
	repo.Clear()
	found, err = repo.FindMapping(ctx, "abc123", models.GlobalSubdomain)
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestMemoryRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo := NewMemoryRepository()
	repo.SetClock(func() time.Time { return now })

	atNow := mapping("expired", models.GlobalSubdomain, nil)
	atNow.ExpiresAt = &now
	later := now.Add(time.Second)
	future := mapping("future", models.GlobalSubdomain, nil)
	future.ExpiresAt = &later

	_, err := repo.InsertMappingIfUnderQuota(ctx, atNow, 0)
	require.NoError(t, err)
	_, err = repo.InsertMappingIfUnderQuota(ctx, future, 0)
	require.NoError(t, err)

	found, err := repo.FindMapping(ctx, "expired", models.GlobalSubdomain)
	assert.NoError(t, err)
	assert.Nil(t, found, "expires_at equal to now must not resolve")

	found, err = repo.FindMapping(ctx, "future", models.GlobalSubdomain)
	assert.NoError(t, err)
	assert.NotNil(t, found, "expires_at one second ahead must resolve")

	// Истёкшая ссылка продолжает занимать код
	exists, err := repo.MappingExists(ctx, "expired", models.GlobalSubdomain)
	assert.NoError(t, err)
	assert.True(t, exists)
	_, err = repo.InsertMappingIfUnderQuota(ctx, mapping("expired", models.GlobalSubdomain, nil), 0)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryRepository_Quota(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	owner := "owner-1"

	n, err := repo.InsertMappingIfUnderQuota(ctx, mapping("one", "", &owner), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.InsertMappingIfUnderQuota(ctx, mapping("two", "", &owner), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Лимит исчерпан: ноль вставленных строк без ошибки
	n, err = repo.InsertMappingIfUnderQuota(ctx, mapping("three", "", &owner), 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	count, err := repo.CountOwnerMappings(ctx, owner)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	// Анонимные ссылки не учитываются
	n, err = repo.InsertMappingIfUnderQuota(ctx, mapping("anon", "", nil), 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryRepository_QuotaUnderConcurrency(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		repo := NewMemoryRepository()
		owner := "owner-1"

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			rejected  int
		)
		start := make(chan struct{})
		for _, code := range []string{"first", "second"} {
			wg.Add(1)
			go func(code string) {
				defer wg.Done()
				<-start
				n, err := repo.InsertMappingIfUnderQuota(ctx, mapping(code, "", &owner), 1)
				assert.NoError(t, err)

				mu.Lock()
				defer mu.Unlock()
				if n == 1 {
					successes++
				} else {
					rejected++
				}
			}(code)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, 1, rejected)
	}
}

func TestMemoryRepository_FindOwnerMappingByDestination(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	owner, other := "owner-1", "owner-2"

	mine := mapping("mine", models.GlobalSubdomain, &owner)
	mine.Destination = "https://dest.example"
	theirs := mapping("theirs", models.GlobalSubdomain, &other)
	theirs.Destination = "https://dest.example"
	partitioned := mapping("part", "step", &owner)
	partitioned.Destination = "https://dest.example"

	for _, m := range []*models.Mapping{theirs, partitioned, mine} {
		_, err := repo.InsertMappingIfUnderQuota(ctx, m, 10)
		require.NoError(t, err)
	}

	found, err := repo.FindOwnerMappingByDestination(ctx, owner, "https://dest.example", models.GlobalSubdomain)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, mine.ID, found.ID)

	found, err = repo.FindOwnerMappingByDestination(ctx, "owner-3", "https://dest.example", models.GlobalSubdomain)
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestMemoryRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	owner := "owner-1"

	m := mapping("abc123", "", &owner)
	_, err := repo.InsertMappingIfUnderQuota(ctx, m, 1)
	require.NoError(t, err)

	require.NoError(t, repo.InsertClick(ctx, &models.ClickEvent{ID: uuid.New(), MappingID: m.ID, ClickedAt: time.Now(), DeviceClass: models.DeviceDesktop}))
	assert.Len(t, repo.Clicks(m.ID), 1)

	// Чужой владелец не может удалить ссылку
	assert.ErrorIs(t, repo.DeleteMapping(ctx, m.ID, "owner-2"), ErrNotFound)

	require.NoError(t, repo.DeleteMapping(ctx, m.ID, owner))
	assert.Empty(t, repo.Clicks(m.ID))

	got, err := repo.GetMapping(ctx, m.ID)
	assert.NoError(t, err)
	assert.Nil(t, got)

	// Событие для удалённой ссылки отклоняется
	assert.ErrorIs(t, repo.InsertClick(ctx, &models.ClickEvent{ID: uuid.New(), MappingID: m.ID}), ErrNotFound)

	// Код снова свободен
	_, err = repo.InsertMappingIfUnderQuota(ctx, mapping("abc123", "", &owner), 1)
	assert.NoError(t, err)
}
