package dto

import (
	"time"

	"github.com/yourusername/verify-api/internal/domain/entity"
	"github.com/yourusername/verify-api/internal/service"
)

// SettingsVersionResponse — версия настроек в расшифрованном виде.
// Админ-панель доступна только операторам, секреты отдаются как есть.
type SettingsVersionResponse struct {
	Version int `json:"version"`

	Storage     service.StorageConfig     `json:"storage"`
	Twilio      service.TwilioConfig      `json:"twilio"`
	Application service.ApplicationConfig `json:"application"`
	Security    service.SecurityConfig    `json:"security"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// NewSettingsVersionResponse создает DTO версии настроек из строки
// версии и ее расшифрованного payload.
func NewSettingsVersionResponse(record *entity.SettingsVersion, payload *service.SettingsPayload) *SettingsVersionResponse {
	return &SettingsVersionResponse{
		Version: record.Version,

		Storage:     payload.Storage,
		Twilio:      payload.Twilio,
		Application: payload.Application,
		Security:    payload.Security,

		CreatedAt: record.CreatedAt,
		CreatedBy: record.CreatedBy,
	}
}

// AuditEntryResponse представляет одну запись аудита
type AuditEntryResponse struct {
	ID         string    `json:"id"`
	SettingsID string    `json:"settings_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PaginatedAuditResponse представляет пагинированный список записей аудита
type PaginatedAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
	Total   int64                `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// NewPaginatedAuditResponse создает DTO списка аудита
func NewPaginatedAuditResponse(entries []entity.SettingsAuditLog, total int64, limit, offset int) *PaginatedAuditResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:         e.ID.String(),
			SettingsID: e.SettingsID.String(),
			Action:     e.Action,
			Actor:      e.Actor,
			Notes:      e.Notes,
			CreatedAt:  e.CreatedAt,
		})
	}
	return &PaginatedAuditResponse{
		Entries: out,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}
}

// CreateSessionRequest представляет запрос на выпуск сессионного токена
type CreateSessionRequest struct {
	Actor string `json:"actor" binding:"required,min=2,max=128"`
}

// CreateSessionResponse возвращает выпущенный сессионный токен
type CreateSessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TestDeliveryRequest представляет запрос проверки учетных данных
// провайдера: номер опционален, при его наличии отправляется проба
type TestDeliveryRequest struct {
	Twilio      service.TwilioConfig `json:"twilio" binding:"required"`
	PhoneNumber string               `json:"phone_number" binding:"omitempty,min=8,max=16"`
	Method      string               `json:"method" binding:"omitempty,oneof=sms voice"`
}
