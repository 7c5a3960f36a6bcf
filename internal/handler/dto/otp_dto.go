package dto

import (
	"time"

	"github.com/yourusername/verify-api/internal/domain/entity"
)

// SendOTPRequest представляет запрос на отправку кода подтверждения
type SendOTPRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required,min=8,max=16"`
	Method      string `json:"method" binding:"omitempty,oneof=sms voice"`
}

// VerifyOTPRequest представляет запрос на проверку кода
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required,min=8,max=16"`
	Code        string `json:"code" binding:"required,numeric,min=4,max=10"`
}

// SendOTPResponse возвращается после успешной отправки кода
type SendOTPResponse struct {
	Status                string    `json:"status"`
	PhoneNumber           string    `json:"phone_number"`
	Method                string    `json:"method"`
	ExpiresAt             time.Time `json:"expires_at"`
	ResendIntervalSeconds int       `json:"resend_interval_seconds"`
}

// VerifyOTPResponse возвращается после успешной проверки кода
type VerifyOTPResponse struct {
	Verified    bool   `json:"verified"`
	PhoneNumber string `json:"phone_number"`
}

// OTPStatusResponse — read-only снимок состояния верификации номера.
// Хеш и соль кода наружу не отдаются никогда.
type OTPStatusResponse struct {
	PhoneNumber       string     `json:"phone_number"`
	Verified          bool       `json:"verified"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	Method            string     `json:"method"`
	ExpiresAt         time.Time  `json:"expires_at"`
	Expired           bool       `json:"expired"`
	LastSentAt        time.Time  `json:"last_sent_at"`
	AttemptsUsed      int        `json:"attempts_used"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	SendCount         int        `json:"send_count"`
	RateLimitResetAt  time.Time  `json:"rate_limit_reset_at"`
}

// NewOTPStatusResponse создает DTO статуса из записи верификации
func NewOTPStatusResponse(record *entity.PhoneVerification, now time.Time) *OTPStatusResponse {
	remaining := record.MaxAttempts - record.Attempts
	if remaining < 0 {
		remaining = 0
	}

	return &OTPStatusResponse{
		PhoneNumber:       record.PhoneNumber,
		Verified:          record.IsVerified(),
		VerifiedAt:        record.VerifiedAt,
		Method:            record.Method,
		ExpiresAt:         record.ExpiresAt,
		Expired:           record.IsExpired(now),
		LastSentAt:        record.LastSentAt,
		AttemptsUsed:      record.Attempts,
		AttemptsRemaining: remaining,
		SendCount:         record.SendCount,
		RateLimitResetAt:  record.RateLimitResetAt,
	}
}
