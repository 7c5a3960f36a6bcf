package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yourusername/verify-api/internal/domain/entity"
	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
)

// SQLSTATE нарушения уникального ограничения
const uniqueViolationCode = "23505"

// isUniqueViolation распознает нарушение уникального индекса как в
// транслированном виде (gorm.Config.TranslateError), так и как сырую
// ошибку драйвера pgx.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

type SettingsRepo struct {
	db *gorm.DB
}

func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// GetLatest возвращает версию настроек с максимальным номером.
func (r *SettingsRepo) GetLatest(ctx context.Context) (*entity.SettingsVersion, error) {
	var record entity.SettingsVersion
	err := r.db.WithContext(ctx).
		Order("version DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest settings version: %w", err)
	}
	return &record, nil
}

// CreateVersionWithAudit вставляет новую версию и запись аудита в одной
// транзакции: либо обе записи, либо ни одной. Уникальный индекс по
// version превращает гонку двух конкурентных созданий в ErrConflict.
func (r *SettingsRepo) CreateVersionWithAudit(ctx context.Context, record *entity.SettingsVersion, audit *entity.SettingsAuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			if isUniqueViolation(err) {
				return apperrors.ErrConflict
			}
			return fmt.Errorf("failed to insert settings version: %w", err)
		}

		audit.SettingsID = record.ID
		if err := tx.Create(audit).Error; err != nil {
			return fmt.Errorf("failed to append settings audit entry: %w", err)
		}
		return nil
	})
}

func (r *SettingsRepo) AppendAudit(ctx context.Context, audit *entity.SettingsAuditLog) error {
	if err := r.db.WithContext(ctx).Create(audit).Error; err != nil {
		return fmt.Errorf("failed to append settings audit entry: %w", err)
	}
	return nil
}

func (r *SettingsRepo) ListAudit(ctx context.Context, limit, offset int) ([]entity.SettingsAuditLog, int64, error) {
	var entries []entity.SettingsAuditLog
	var total int64

	if err := r.db.WithContext(ctx).Model(&entity.SettingsAuditLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count settings audit entries: %w", err)
	}

	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list settings audit entries: %w", err)
	}
	return entries, total, nil
}
