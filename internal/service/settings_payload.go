package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
)

// CodePlaceholder is substituted with the generated OTP in message
// templates.
const CodePlaceholder = "{{code}}"

var (
	accountSIDPattern = regexp.MustCompile(`^AC[a-fA-F0-9]{32}$`)
	verifySIDPattern  = regexp.MustCompile(`^VA[a-fA-F0-9]{32}$`)
	e164Pattern       = regexp.MustCompile(`^\+[1-9]\d{7,14}$`) // ITU-T E.164
)

// IsE164 reports basic E.164 compliance.
func IsE164(number string) bool { return e164Pattern.MatchString(number) }

// StorageConfig holds object-storage credentials kept in the settings
// history for the upload collaborator. Access and secret keys are
// encrypted at rest.
type StorageConfig struct {
	Endpoint  string `json:"endpoint" binding:"required,url"`
	AccessKey string `json:"access_key" binding:"required,min=3,max=512"`
	SecretKey string `json:"secret_key" binding:"required,min=8,max=1024"`
	Bucket    string `json:"bucket" binding:"required,min=3,max=255"`
	Region    string `json:"region" binding:"omitempty,max=128"`
}

// TwilioConfig holds delivery-provider credentials. The auth token is
// encrypted at rest.
type TwilioConfig struct {
	AccountSID       string `json:"account_sid" binding:"required"`
	AuthToken        string `json:"auth_token" binding:"required,min=16,max=128"`
	PhoneNumber      string `json:"phone_number" binding:"required"`
	VerifyServiceSID string `json:"verify_service_sid" binding:"omitempty"`
	OTPTemplate      string `json:"otp_template" binding:"required"`
}

// ApplicationConfig holds non-secret application policy.
type ApplicationConfig struct {
	Theme      string `json:"theme" binding:"required,oneof=dark light system"`
	Language   string `json:"language" binding:"required,max=8"`
	APITimeout int    `json:"api_timeout" binding:"required,min=5,max=120"`
}

// PasswordPolicy mirrors the policy enforced by the excluded auth
// collaborator; stored here so it versions together with the rest.
type PasswordPolicy struct {
	MinLength        int  `json:"min_length"`
	RequireUppercase bool `json:"require_uppercase"`
	RequireNumber    bool `json:"require_number"`
	RequireSpecial   bool `json:"require_special"`
}

// DefaultPasswordPolicy возвращает политику паролей по умолчанию.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        10,
		RequireUppercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}
}

// SecurityConfig holds security policy fields.
type SecurityConfig struct {
	JWTExpiry      int            `json:"jwt_expiry" binding:"required,min=300,max=86400"`
	PasswordPolicy PasswordPolicy `json:"password_policy"`
}

// SettingsPayload is the decrypted form of one settings version.
type SettingsPayload struct {
	Storage     StorageConfig     `json:"storage" binding:"required"`
	Twilio      TwilioConfig      `json:"twilio" binding:"required"`
	Application ApplicationConfig `json:"application" binding:"required"`
	Security    SecurityConfig    `json:"security" binding:"required"`
}

// Validate checks the storage section in isolation. The connection
// test endpoint reuses it for submitted credentials that are not part
// of any saved version yet.
func (c *StorageConfig) Validate() error {
	if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
		return fmt.Errorf("%w: storage endpoint must be a valid URL", apperrors.ErrValidation)
	}
	if len(c.AccessKey) < 3 || len(c.SecretKey) < 8 || len(c.Bucket) < 3 {
		return fmt.Errorf("%w: storage credentials are incomplete", apperrors.ErrValidation)
	}
	return nil
}

// Validate checks the delivery-provider section in isolation.
func (c *TwilioConfig) Validate() error {
	if !accountSIDPattern.MatchString(c.AccountSID) {
		return fmt.Errorf("%w: twilio account SID must match AC + 32 hex characters", apperrors.ErrValidation)
	}
	if len(c.AuthToken) < 16 {
		return fmt.Errorf("%w: twilio auth token is too short", apperrors.ErrValidation)
	}
	if !IsE164(c.PhoneNumber) {
		return fmt.Errorf("%w: twilio from number must be E.164", apperrors.ErrValidation)
	}
	if c.VerifyServiceSID != "" && !verifySIDPattern.MatchString(c.VerifyServiceSID) {
		return fmt.Errorf("%w: twilio verify service SID must match VA + 32 hex characters", apperrors.ErrValidation)
	}
	if !strings.Contains(c.OTPTemplate, CodePlaceholder) {
		return fmt.Errorf("%w: otp template must include the %s placeholder", apperrors.ErrValidation, CodePlaceholder)
	}
	return nil
}

// Validate re-checks the structural rules that gin binding enforces at
// the HTTP boundary. Restore and programmatic callers go through here,
// so a payload read from a backup file gets the same scrutiny as one
// typed into the dashboard.
func (p *SettingsPayload) Validate() error {
	if err := p.Storage.Validate(); err != nil {
		return err
	}
	if err := p.Twilio.Validate(); err != nil {
		return err
	}

	switch p.Application.Theme {
	case "dark", "light", "system":
	default:
		return fmt.Errorf("%w: theme must be one of dark, light, system", apperrors.ErrValidation)
	}
	if p.Application.APITimeout < 5 || p.Application.APITimeout > 120 {
		return fmt.Errorf("%w: api timeout must be within 5..120 seconds", apperrors.ErrValidation)
	}

	if p.Security.JWTExpiry < 300 || p.Security.JWTExpiry > 86400 {
		return fmt.Errorf("%w: jwt expiry must be within 300..86400 seconds", apperrors.ErrValidation)
	}
	if p.Security.PasswordPolicy.MinLength < 6 || p.Security.PasswordPolicy.MinLength > 128 {
		return fmt.Errorf("%w: password min length must be within 6..128", apperrors.ErrValidation)
	}

	return nil
}
