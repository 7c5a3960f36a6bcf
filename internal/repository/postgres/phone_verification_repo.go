package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/verify-api/internal/domain/entity"
	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
)

type PhoneVerificationRepo struct {
	db *gorm.DB
}

func NewPhoneVerificationRepo(db *gorm.DB) *PhoneVerificationRepo {
	return &PhoneVerificationRepo{db: db}
}

func (r *PhoneVerificationRepo) GetByPhone(ctx context.Context, phoneNumber string) (*entity.PhoneVerification, error) {
	var record entity.PhoneVerification
	err := r.db.WithContext(ctx).
		Where("phone_number = ?", phoneNumber).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get phone verification record: %w", err)
	}
	return &record, nil
}

// UpdateInTx выполняет read-modify-write для одного номера в рамках
// одной транзакции с блокировкой строки (SELECT ... FOR UPDATE).
// Конкурентные send/verify по одному номеру сериализуются на уровне
// БД — это граница корректности при нескольких инстансах сервиса.
func (r *PhoneVerificationRepo) UpdateInTx(ctx context.Context, phoneNumber string, fn func(record *entity.PhoneVerification) (*entity.PhoneVerification, error)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current entity.PhoneVerification
		var existing *entity.PhoneVerification

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("phone_number = ?", phoneNumber).
			First(&current).Error
		switch {
		case err == nil:
			existing = &current
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = nil
		default:
			return fmt.Errorf("failed to lock phone verification record: %w", err)
		}

		updated, err := fn(existing)
		if err != nil {
			// Откат: предыдущий код (если был) остается действующим.
			return err
		}
		if updated == nil {
			return nil
		}

		if err := tx.Save(updated).Error; err != nil {
			return fmt.Errorf("failed to save phone verification record: %w", err)
		}
		return nil
	})
}
