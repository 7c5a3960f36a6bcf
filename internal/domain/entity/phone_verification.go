package entity

import (
	"time"

	"github.com/google/uuid"
)

// Delivery methods supported by the verification flow.
const (
	MethodSMS   = "sms"
	MethodVoice = "voice"
)

// PhoneVerification stores hashed OTP material for one phone number.
// There is at most one row per number: a new send overwrites the code
// material in place, which permanently invalidates the previous code.
type PhoneVerification struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PhoneNumber      string     `gorm:"size:32;not null;uniqueIndex" json:"phone_number"`
	CodeHash         string     `gorm:"size:128;not null" json:"-"`
	CodeSalt         string     `gorm:"size:64;not null" json:"-"`
	Method           string     `gorm:"size:16;not null;default:sms" json:"method"`
	ExpiresAt        time.Time  `gorm:"not null" json:"expires_at"`
	LastSentAt       time.Time  `gorm:"not null" json:"last_sent_at"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	Attempts         int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts      int        `gorm:"not null;default:5" json:"max_attempts"`
	SendCount        int        `gorm:"not null;default:0" json:"send_count"`
	RateLimitResetAt time.Time  `gorm:"not null" json:"rate_limit_reset_at"`
	CreatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PhoneVerification) TableName() string {
	return "phone_verifications"
}

func (p *PhoneVerification) IsVerified() bool {
	return p.VerifiedAt != nil
}

func (p *PhoneVerification) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

func (p *PhoneVerification) AttemptsExhausted() bool {
	return p.Attempts >= p.MaxAttempts
}
