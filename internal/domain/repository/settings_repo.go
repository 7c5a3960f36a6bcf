package repository

import (
	"context"

	"github.com/yourusername/verify-api/internal/domain/entity"
)

// SettingsRepository owns the append-only settings history.
// CreateVersionWithAudit inserts the new version row and its audit
// entry atomically — both succeed or neither does.
type SettingsRepository interface {
	GetLatest(ctx context.Context) (*entity.SettingsVersion, error)
	CreateVersionWithAudit(ctx context.Context, record *entity.SettingsVersion, audit *entity.SettingsAuditLog) error
	AppendAudit(ctx context.Context, audit *entity.SettingsAuditLog) error
	ListAudit(ctx context.Context, limit, offset int) ([]entity.SettingsAuditLog, int64, error)
}
