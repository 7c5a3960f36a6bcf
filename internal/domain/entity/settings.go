package entity

import (
	"time"

	"github.com/google/uuid"
)

// SettingsVersion is one immutable snapshot of service configuration.
// Rows are append-only; "current" is the row with the highest version.
// Columns suffixed Encrypted hold AES-GCM ciphertext, never plaintext.
type SettingsVersion struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Version int       `gorm:"not null;uniqueIndex:uq_settings_version" json:"version"`

	S3Endpoint           string `gorm:"size:512;not null" json:"s3_endpoint"`
	S3AccessKeyEncrypted string `gorm:"size:1024;not null" json:"-"`
	S3SecretKeyEncrypted string `gorm:"size:1024;not null" json:"-"`
	S3Bucket             string `gorm:"size:256;not null" json:"s3_bucket"`
	S3Region             string `gorm:"size:128" json:"s3_region"`

	TwilioAccountSID         string `gorm:"size:64;not null" json:"twilio_account_sid"`
	TwilioAuthTokenEncrypted string `gorm:"size:1024;not null" json:"-"`
	TwilioFromNumber         string `gorm:"size:32;not null" json:"twilio_from_number"`
	TwilioVerifyServiceSID   string `gorm:"size:64" json:"twilio_verify_service_sid"`
	OTPTemplate              string `gorm:"type:text;not null" json:"otp_template"`

	Theme      string `gorm:"size:32;not null;default:dark" json:"theme"`
	Language   string `gorm:"size:8;not null;default:en" json:"language"`
	APITimeout int    `gorm:"not null;default:30" json:"api_timeout"`

	JWTExpiry int `gorm:"not null;default:900" json:"jwt_expiry"`
	// PasswordPolicy is serialized JSON; the service layer owns the shape.
	PasswordPolicy string `gorm:"type:jsonb;not null;default:'{}'" json:"password_policy"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy string    `gorm:"size:128;not null" json:"created_by"`
}

func (SettingsVersion) TableName() string {
	return "settings_versions"
}

// Audit actions recorded against settings versions.
const (
	AuditActionUpdate       = "update"
	AuditActionBackup       = "backup"
	AuditActionRestore      = "restore"
	AuditActionTestStorage  = "test_storage"
	AuditActionTestDelivery = "test_delivery"
)

// SettingsAuditLog is an append-only trail of mutating or sensitive
// settings operations. Rows are never updated or deleted.
type SettingsAuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SettingsID uuid.UUID `gorm:"type:uuid;not null;index" json:"settings_id"`
	Action     string    `gorm:"size:64;not null" json:"action"`
	Actor      string    `gorm:"size:128;not null" json:"actor"`
	Notes      string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (SettingsAuditLog) TableName() string {
	return "settings_audit_log"
}
