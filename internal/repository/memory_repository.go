package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tempizhere/redirector/internal/models"
)

type mappingKey struct {
	subdomain string
	shortcode string
}

// MemoryRepository реализует интерфейс Store с использованием map.
// Все проверки и вставка выполняются под одной блокировкой, что даёт ту же атомарность,
// что и условная вставка в PostgreSQL.
type MemoryRepository struct {
	mutex    sync.RWMutex
	mappings map[uuid.UUID]*models.Mapping
	index    map[mappingKey]uuid.UUID
	clicks   []models.ClickEvent
	now      func() time.Time
}

// NewMemoryRepository создаёт новый экземпляр MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		mappings: make(map[uuid.UUID]*models.Mapping),
		index:    make(map[mappingKey]uuid.UUID),
		now:      time.Now,
	}
}

// SetClock подменяет источник времени, по которому проверяется срок действия
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.now = now
}

func copyMapping(m *models.Mapping) *models.Mapping {
	c := *m
	return &c
}

// FindMapping возвращает действующую ссылку по коду и поддомену
func (r *MemoryRepository) FindMapping(_ context.Context, shortcode, subdomain string) (*models.Mapping, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	id, ok := r.index[mappingKey{subdomain: subdomain, shortcode: shortcode}]
	if !ok {
		return nil, nil
	}
	m := r.mappings[id]
	if !m.IsLive(r.now()) {
		return nil, nil
	}
	return copyMapping(m), nil
}

// MappingExists сообщает, занят ли код в поддомене
func (r *MemoryRepository) MappingExists(_ context.Context, shortcode, subdomain string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.index[mappingKey{subdomain: subdomain, shortcode: shortcode}]
	return ok, nil
}

// GetMapping возвращает ссылку по идентификатору
func (r *MemoryRepository) GetMapping(_ context.Context, id uuid.UUID) (*models.Mapping, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.mappings[id]
	if !ok {
		return nil, nil
	}
	return copyMapping(m), nil
}

// FindOwnerMappingByDestination ищет самую раннюю действующую ссылку владельца с тем же адресом
func (r *MemoryRepository) FindOwnerMappingByDestination(_ context.Context, ownerID, destination, subdomain string) (*models.Mapping, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	now := r.now()
	var found *models.Mapping
	for _, m := range r.mappings {
		if !m.OwnedBy(ownerID) || m.Destination != destination || m.Subdomain != subdomain || !m.IsLive(now) {
			continue
		}
		if found == nil || m.CreatedAt.Before(found.CreatedAt) {
			found = m
		}
	}
	if found == nil {
		return nil, nil
	}
	return copyMapping(found), nil
}

// InsertMappingIfUnderQuota вставляет ссылку, если у владельца меньше quota ссылок
func (r *MemoryRepository) InsertMappingIfUnderQuota(_ context.Context, m *models.Mapping, quota int) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.insertLocked(m, quota)
}

func (r *MemoryRepository) insertLocked(m *models.Mapping, quota int) (int64, error) {
	if m.OwnerID != nil && r.countLocked(*m.OwnerID) >= quota {
		return 0, nil
	}
	if _, ok := r.index[mappingKey{subdomain: m.Subdomain, shortcode: m.Shortcode}]; ok {
		return 0, ErrConflict
	}
	r.putLocked(m)
	return 1, nil
}

func (r *MemoryRepository) putLocked(m *models.Mapping) {
	r.mappings[m.ID] = copyMapping(m)
	r.index[mappingKey{subdomain: m.Subdomain, shortcode: m.Shortcode}] = m.ID
}

func (r *MemoryRepository) countLocked(ownerID string) int {
	count := 0
	for _, m := range r.mappings {
		if m.OwnedBy(ownerID) {
			count++
		}
	}
	return count
}

// CountOwnerMappings возвращает число ссылок владельца
func (r *MemoryRepository) CountOwnerMappings(_ context.Context, ownerID string) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.countLocked(ownerID), nil
}

// DeleteMapping удаляет ссылку владельца вместе с её событиями
func (r *MemoryRepository) DeleteMapping(_ context.Context, id uuid.UUID, ownerID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.mappings[id]
	if !ok || !m.OwnedBy(ownerID) {
		return ErrNotFound
	}
	r.removeLocked(id)
	return nil
}

func (r *MemoryRepository) removeLocked(id uuid.UUID) {
	m, ok := r.mappings[id]
	if !ok {
		return
	}
	delete(r.mappings, id)
	delete(r.index, mappingKey{subdomain: m.Subdomain, shortcode: m.Shortcode})

	kept := r.clicks[:0]
	for _, ev := range r.clicks {
		if ev.MappingID != id {
			kept = append(kept, ev)
		}
	}
	r.clicks = kept
}

// InsertClick сохраняет событие перехода; событие без ссылки отклоняется, как внешний ключ в базе
func (r *MemoryRepository) InsertClick(_ context.Context, ev *models.ClickEvent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.mappings[ev.MappingID]; !ok {
		return ErrNotFound
	}
	r.clicks = append(r.clicks, *ev)
	return nil
}

// Clicks возвращает события перехода по ссылке в порядке времени
func (r *MemoryRepository) Clicks(mappingID uuid.UUID) []models.ClickEvent {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var out []models.ClickEvent
	for _, ev := range r.clicks {
		if ev.MappingID == mappingID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClickedAt.Before(out[j].ClickedAt) })
	return out
}

// Ping всегда успешен для хранилища в памяти
func (r *MemoryRepository) Ping(_ context.Context) error {
	return nil
}

// Clear очищает хранилище
func (r *MemoryRepository) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.mappings = make(map[uuid.UUID]*models.Mapping)
	r.index = make(map[mappingKey]uuid.UUID)
	r.clicks = nil
}
