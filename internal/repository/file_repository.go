package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/tempizhere/redirector/internal/models"
	"go.uber.org/zap"
)

const (
	opInsert = "insert"
	opDelete = "delete"
	opClick  = "click"
)

// journalRecord представляет строку журнала в JSON-файле
type journalRecord struct {
	Op      string             `json:"op"`
	Mapping *models.Mapping    `json:"mapping,omitempty"`
	ID      *uuid.UUID         `json:"id,omitempty"`
	Click   *models.ClickEvent `json:"click,omitempty"`
}

// FileRepository хранит данные в памяти и дописывает каждое изменение в журнал.
// При запуске журнал воспроизводится построчно.
type FileRepository struct {
	*MemoryRepository
	filePath string
	logger   *zap.Logger
	// writeMutex упорядочивает изменение памяти и запись в файл
	writeMutex sync.Mutex
}

// NewFileRepository создаёт новый экземпляр FileRepository
func NewFileRepository(filePath string, logger *zap.Logger) (*FileRepository, error) {
	repo := &FileRepository{
		MemoryRepository: NewMemoryRepository(),
		filePath:         filePath,
		logger:           logger,
	}

	// Создаём директорию, если не существует
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return repo, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record journalRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			// Пропускаем некорректные строки и логируем это
			repo.logger.Warn("Skipping invalid journal line", zap.String("line", scanner.Text()), zap.Error(err))
			continue
		}
		repo.replay(record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *FileRepository) replay(record journalRecord) {
	mem := r.MemoryRepository
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	switch record.Op {
	case opInsert:
		if record.Mapping != nil {
			mem.putLocked(record.Mapping)
		}
	case opDelete:
		if record.ID != nil {
			mem.removeLocked(*record.ID)
		}
	case opClick:
		if record.Click != nil {
			if _, ok := mem.mappings[record.Click.MappingID]; ok {
				mem.clicks = append(mem.clicks, *record.Click)
			}
		}
	default:
		r.logger.Warn("Skipping unknown journal operation", zap.String("op", record.Op))
	}
}

func (r *FileRepository) appendRecord(record journalRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	file, err := os.OpenFile(r.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write(data)
	return err
}

// InsertMappingIfUnderQuota вставляет ссылку и фиксирует её в журнале
func (r *FileRepository) InsertMappingIfUnderQuota(_ context.Context, m *models.Mapping, quota int) (int64, error) {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	mem := r.MemoryRepository
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	n, err := mem.insertLocked(m, quota)
	if err != nil || n == 0 {
		return n, err
	}
	if err := r.appendRecord(journalRecord{Op: opInsert, Mapping: m}); err != nil {
		mem.removeLocked(m.ID)
		r.logger.Error("Failed to write journal", zap.String("path", r.filePath), zap.Error(err))
		return 0, fmt.Errorf("write journal: %w", err)
	}
	return n, nil
}

// DeleteMapping удаляет ссылку владельца и фиксирует удаление в журнале
func (r *FileRepository) DeleteMapping(_ context.Context, id uuid.UUID, ownerID string) error {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	mem := r.MemoryRepository
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	m, ok := mem.mappings[id]
	if !ok || !m.OwnedBy(ownerID) {
		return ErrNotFound
	}
	if err := r.appendRecord(journalRecord{Op: opDelete, ID: &id}); err != nil {
		r.logger.Error("Failed to write journal", zap.String("path", r.filePath), zap.Error(err))
		return fmt.Errorf("write journal: %w", err)
	}
	mem.removeLocked(id)
	return nil
}

// InsertClick сохраняет событие перехода и фиксирует его в журнале
func (r *FileRepository) InsertClick(_ context.Context, ev *models.ClickEvent) error {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	mem := r.MemoryRepository
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	if _, ok := mem.mappings[ev.MappingID]; !ok {
		return ErrNotFound
	}
	if err := r.appendRecord(journalRecord{Op: opClick, Click: ev}); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	mem.clicks = append(mem.clicks, *ev)
	return nil
}

// Clear очищает хранилище и файл
func (r *FileRepository) Clear() {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	r.MemoryRepository.Clear()
	if err := os.Truncate(r.filePath, 0); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("Failed to truncate journal", zap.String("path", r.filePath), zap.Error(err))
	}
}
