package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tempizhere/redirector/internal/models"
	"go.uber.org/zap"
)

const mappingColumns = "id, shortcode, subdomain, destination, owner_id, created_at, expires_at"

const (
	queryFindMapping = "SELECT " + mappingColumns + " FROM mappings " +
		"WHERE subdomain = $1 AND shortcode = $2 AND (expires_at IS NULL OR expires_at > NOW())"
	queryMappingExists = "SELECT EXISTS (SELECT 1 FROM mappings WHERE subdomain = $1 AND shortcode = $2)"
	queryGetMapping    = "SELECT " + mappingColumns + " FROM mappings WHERE id = $1"
	queryFindByDest    = "SELECT " + mappingColumns + " FROM mappings " +
		"WHERE owner_id = $1 AND destination = $2 AND subdomain = $3 AND (expires_at IS NULL OR expires_at > NOW()) " +
		"ORDER BY created_at LIMIT 1"
	queryCountOwner = "SELECT COUNT(*) FROM mappings WHERE owner_id = $1"
	queryAdvisory   = "SELECT pg_advisory_xact_lock(hashtext($1))"
	queryInsert     = "INSERT INTO mappings (" + mappingColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7)"
	queryInsertIf   = "INSERT INTO mappings (" + mappingColumns + ") " +
		"SELECT $1::uuid, $2::text, $3::text, $4::text, $5::text, $6::timestamptz, $7::timestamptz " +
		"WHERE (SELECT COUNT(*) FROM mappings WHERE owner_id = $5::text) < $8"
	queryDelete      = "DELETE FROM mappings WHERE id = $1 AND owner_id = $2"
	queryInsertClick = "INSERT INTO click_events " +
		"(id, mapping_id, clicked_at, referrer_host, country_code, device_class, visitor_hash) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7)"
)

// PostgresRepository реализует интерфейс Store с использованием PostgreSQL
type PostgresRepository struct {
	db     Database
	logger *zap.Logger
}

// NewPostgresRepository создаёт новый экземпляр PostgresRepository
func NewPostgresRepository(db Database, logger *zap.Logger) (*PostgresRepository, error) {
	if db == nil {
		return nil, errors.New("database is nil")
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMapping(row rowScanner) (*models.Mapping, error) {
	var (
		m         models.Mapping
		ownerID   sql.NullString
		expiresAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.Shortcode, &m.Subdomain, &m.Destination, &ownerID, &m.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		m.OwnerID = &ownerID.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	return &m, nil
}

func (r *PostgresRepository) queryMapping(ctx context.Context, query string, args ...interface{}) (*models.Mapping, error) {
	m, err := scanMapping(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindMapping возвращает действующую ссылку; срок действия проверяется по часам базы данных
func (r *PostgresRepository) FindMapping(ctx context.Context, shortcode, subdomain string) (*models.Mapping, error) {
	m, err := r.queryMapping(ctx, queryFindMapping, subdomain, shortcode)
	if err != nil {
		r.logger.Error("Failed to find mapping", zap.String("shortcode", shortcode), zap.String("subdomain", subdomain), zap.Error(err))
		return nil, fmt.Errorf("find mapping: %w", err)
	}
	return m, nil
}

// MappingExists сообщает, занят ли код в поддомене
func (r *PostgresRepository) MappingExists(ctx context.Context, shortcode, subdomain string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, queryMappingExists, subdomain, shortcode).Scan(&exists); err != nil {
		r.logger.Error("Failed to check mapping existence", zap.String("shortcode", shortcode), zap.Error(err))
		return false, fmt.Errorf("mapping exists: %w", err)
	}
	return exists, nil
}

// GetMapping возвращает ссылку по идентификатору
func (r *PostgresRepository) GetMapping(ctx context.Context, id uuid.UUID) (*models.Mapping, error) {
	m, err := r.queryMapping(ctx, queryGetMapping, id)
	if err != nil {
		r.logger.Error("Failed to get mapping", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return m, nil
}

// FindOwnerMappingByDestination ищет действующую ссылку владельца с тем же адресом
func (r *PostgresRepository) FindOwnerMappingByDestination(ctx context.Context, ownerID, destination, subdomain string) (*models.Mapping, error) {
	m, err := r.queryMapping(ctx, queryFindByDest, ownerID, destination, subdomain)
	if err != nil {
		r.logger.Error("Failed to find mapping by destination", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("find mapping by destination: %w", err)
	}
	return m, nil
}

// InsertMappingIfUnderQuota вставляет ссылку одной условной командой внутри транзакции.
// Рекомендательная блокировка по владельцу сериализует конкурентные вставки одного владельца,
// поэтому подзапрос COUNT видит все ранее зафиксированные строки.
func (r *PostgresRepository) InsertMappingIfUnderQuota(ctx context.Context, m *models.Mapping, quota int) (int64, error) {
	if m.OwnerID == nil {
		res, err := r.db.ExecContext(ctx, queryInsert, m.ID, m.Shortcode, m.Subdomain, m.Destination, nil, m.CreatedAt, m.ExpiresAt)
		if err != nil {
			return 0, r.insertError(m, err)
		}
		return res.RowsAffected()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// после Commit возвращает sql.ErrTxDone
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, queryAdvisory, *m.OwnerID); err != nil {
		r.logger.Error("Failed to acquire owner lock", zap.String("owner_id", *m.OwnerID), zap.Error(err))
		return 0, fmt.Errorf("owner lock: %w", err)
	}

	res, err := tx.ExecContext(ctx, queryInsertIf,
		m.ID, m.Shortcode, m.Subdomain, m.Destination, *m.OwnerID, m.CreatedAt, m.ExpiresAt, quota)
	if err != nil {
		return 0, r.insertError(m, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if IsUniqueViolation(err) {
			return 0, ErrConflict
		}
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) insertError(m *models.Mapping, err error) error {
	if IsUniqueViolation(err) {
		r.logger.Info("Shortcode already taken",
			zap.String("shortcode", m.Shortcode), zap.String("subdomain", m.Subdomain))
		return ErrConflict
	}
	r.logger.Error("Failed to insert mapping", zap.String("shortcode", m.Shortcode), zap.Error(err))
	return fmt.Errorf("insert mapping: %w", err)
}

// CountOwnerMappings возвращает число ссылок владельца
func (r *PostgresRepository) CountOwnerMappings(ctx context.Context, ownerID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, queryCountOwner, ownerID).Scan(&count); err != nil {
		r.logger.Error("Failed to count owner mappings", zap.String("owner_id", ownerID), zap.Error(err))
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return count, nil
}

// DeleteMapping удаляет ссылку владельца; события переходов удаляются каскадно
func (r *PostgresRepository) DeleteMapping(ctx context.Context, id uuid.UUID, ownerID string) error {
	res, err := r.db.ExecContext(ctx, queryDelete, id, ownerID)
	if err != nil {
		r.logger.Error("Failed to delete mapping", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("delete mapping: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertClick сохраняет событие перехода
func (r *PostgresRepository) InsertClick(ctx context.Context, ev *models.ClickEvent) error {
	_, err := r.db.ExecContext(ctx, queryInsertClick,
		ev.ID, ev.MappingID, ev.ClickedAt, ev.ReferrerHost, ev.CountryCode, string(ev.DeviceClass), ev.VisitorHash)
	if err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

// Ping проверяет соединение с базой данных
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
