package service

import "errors"

// Verification and settings flow errors used by handlers for stable
// error_type mapping.
var (
	ErrOTPNotFound      = errors.New("otp_not_found")
	ErrRateLimited      = errors.New("otp_rate_limited")
	ErrResendCooldown   = errors.New("otp_resend_cooldown")
	ErrOTPExpired       = errors.New("otp_expired")
	ErrAttemptsExceeded = errors.New("otp_attempts_exceeded")
	ErrInvalidCode      = errors.New("otp_invalid_code")
	ErrDeliveryFailed   = errors.New("otp_delivery_failed")
	ErrDecryption       = errors.New("settings_decryption_failed")
	ErrDeliveryConfig   = errors.New("delivery_configuration_missing")
	ErrNoSettings       = errors.New("settings_not_found")
)
