// Package repository содержит хранилища коротких ссылок и событий переходов.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tempizhere/redirector/internal/models"
)

var (
	// ErrConflict возвращается, если короткий код уже занят в пространстве имён
	ErrConflict = errors.New("shortcode already exists in subdomain")
	// ErrNotFound возвращается, если ссылка не найдена или принадлежит другому владельцу
	ErrNotFound = errors.New("mapping not found")
)

// uniqueViolation код ошибки PostgreSQL при нарушении ограничения уникальности
const uniqueViolation = "23505"

// Store определяет контракт хранилища ссылок
type Store interface {
	// FindMapping возвращает действующую ссылку по коду и поддомену или nil, если её нет или срок истёк
	FindMapping(ctx context.Context, shortcode, subdomain string) (*models.Mapping, error)
	// MappingExists сообщает, занят ли код в поддомене, без учёта срока действия
	MappingExists(ctx context.Context, shortcode, subdomain string) (bool, error)
	// GetMapping возвращает ссылку по идентификатору или nil
	GetMapping(ctx context.Context, id uuid.UUID) (*models.Mapping, error)
	// FindOwnerMappingByDestination ищет действующую ссылку владельца с тем же адресом в поддомене
	FindOwnerMappingByDestination(ctx context.Context, ownerID, destination, subdomain string) (*models.Mapping, error)
	// InsertMappingIfUnderQuota атомарно вставляет ссылку, если у владельца меньше quota ссылок.
	// Возвращает число вставленных строк; 0 означает превышение лимита.
	InsertMappingIfUnderQuota(ctx context.Context, m *models.Mapping, quota int) (int64, error)
	// CountOwnerMappings возвращает число ссылок владельца
	CountOwnerMappings(ctx context.Context, ownerID string) (int, error)
	// DeleteMapping удаляет ссылку владельца вместе с её событиями
	DeleteMapping(ctx context.Context, id uuid.UUID, ownerID string) error
	// InsertClick сохраняет событие перехода
	InsertClick(ctx context.Context, ev *models.ClickEvent) error
	// Ping проверяет доступность хранилища
	Ping(ctx context.Context) error
}

// Database определяет интерфейс для работы с базой данных
type Database interface {
	// PingContext проверяет соединение с базой данных
	PingContext(ctx context.Context) error
	// Close закрывает соединение с базой данных
	Close() error
	// ExecContext выполняет SQL-команду без возврата результатов
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	// QueryContext выполняет SQL-запрос и возвращает результаты
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	// QueryRowContext выполняет SQL-запрос и возвращает одну строку результата
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	// BeginTx начинает новую транзакцию
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// IsUniqueViolation сообщает, вызвана ли ошибка нарушением ограничения уникальности
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
