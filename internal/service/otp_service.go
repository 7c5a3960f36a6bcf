package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/verify-api/internal/domain/entity"
	"github.com/yourusername/verify-api/internal/domain/repository"
	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
)

// SendResult is returned by Send/Resend so the caller can surface the
// code lifetime and the earliest moment a resend is allowed.
type SendResult struct {
	ExpiresAt             time.Time `json:"expires_at"`
	ResendIntervalSeconds int       `json:"resend_interval_seconds"`
}

// OTPService owns the per-phone verification lifecycle: issuing codes,
// resend throttling, the hourly quota, expiry and attempt counting.
// All read-modify-write runs inside one store transaction per
// operation, so concurrent calls for the same number serialize at the
// database rather than on an in-process lock.
type OTPService struct {
	verificationRepo repository.PhoneVerificationRepository
	delivery         DeliveryService
	codeLength       int
	ttl              time.Duration
	resendInterval   time.Duration
	hourlyQuota      int
	maxAttempts      int
	now              func() time.Time
}

func NewOTPService(
	verificationRepo repository.PhoneVerificationRepository,
	delivery DeliveryService,
	codeLength int,
	ttl time.Duration,
	resendInterval time.Duration,
	hourlyQuota int,
	maxAttempts int,
) (*OTPService, error) {
	if verificationRepo == nil {
		return nil, fmt.Errorf("phone verification repository is required")
	}
	if delivery == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	if codeLength <= 0 {
		codeLength = 6
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if resendInterval <= 0 {
		resendInterval = 60 * time.Second
	}
	if hourlyQuota <= 0 {
		hourlyQuota = 5
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &OTPService{
		verificationRepo: verificationRepo,
		delivery:         delivery,
		codeLength:       codeLength,
		ttl:              ttl,
		resendInterval:   resendInterval,
		hourlyQuota:      hourlyQuota,
		maxAttempts:      maxAttempts,
		now:              time.Now,
	}, nil
}

// ResendIntervalSeconds exposes the configured cooldown; the OTP
// rate-limit middleware derives its window from it.
func (s *OTPService) ResendIntervalSeconds() int {
	return int(s.resendInterval.Seconds())
}

// HourlyQuota exposes the configured per-phone hourly send cap.
func (s *OTPService) HourlyQuota() int {
	return s.hourlyQuota
}

// Send issues a fresh code for the number and dispatches it. The new
// code material is committed only after the provider accepts the
// dispatch; on delivery failure every mutation rolls back and the
// previous code, if any, stays authoritative.
func (s *OTPService) Send(ctx context.Context, phoneNumber, method string) (*SendResult, error) {
	if method == "" {
		method = entity.MethodSMS
	}

	var result SendResult
	err := s.verificationRepo.UpdateInTx(ctx, phoneNumber, func(record *entity.PhoneVerification) (*entity.PhoneVerification, error) {
		now := s.now()
		creating := record == nil

		if creating {
			record = &entity.PhoneVerification{
				PhoneNumber:      phoneNumber,
				MaxAttempts:      s.maxAttempts,
				RateLimitResetAt: now.Add(time.Hour),
			}
		} else {
			// Окно квоты истекло — сбрасываем счетчик и катим окно вперед.
			if !record.RateLimitResetAt.After(now) {
				record.SendCount = 0
				record.RateLimitResetAt = now.Add(time.Hour)
			}
			if record.SendCount >= s.hourlyQuota {
				retryIn := int(record.RateLimitResetAt.Sub(now).Seconds())
				return nil, fmt.Errorf("%w: hourly quota of %d codes reached, retry in %ds", ErrRateLimited, s.hourlyQuota, retryIn)
			}
			if elapsed := now.Sub(record.LastSentAt); elapsed < s.resendInterval {
				remaining := int(s.resendInterval.Seconds()) - int(elapsed.Seconds())
				return nil, fmt.Errorf("%w: please wait %ds before requesting a new code", ErrResendCooldown, remaining)
			}
		}

		code, err := GenerateCode(s.codeLength)
		if err != nil {
			return nil, err
		}
		salt, err := GenerateSalt()
		if err != nil {
			return nil, err
		}

		record.CodeHash = HashCode(code, salt)
		record.CodeSalt = salt
		record.Method = method
		record.ExpiresAt = now.Add(s.ttl)
		record.LastSentAt = now
		record.VerifiedAt = nil
		record.Attempts = 0
		record.SendCount++

		// Диспатч внутри транзакции: провайдер отказал — ничего не
		// сохраняем, прежний код остается действующим.
		if err := s.delivery.SendCode(ctx, phoneNumber, code, method); err != nil {
			return nil, err
		}

		result = SendResult{
			ExpiresAt:             record.ExpiresAt,
			ResendIntervalSeconds: int(s.resendInterval.Seconds()),
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Verify checks a submitted code. Every check, including the
// successful one, increments the attempt counter, bounding total
// checks per issued code to maxAttempts regardless of outcome. A
// record already in the verified state answers success idempotently
// without touching the counter.
func (s *OTPService) Verify(ctx context.Context, phoneNumber, code string) (bool, error) {
	var invalid bool
	err := s.verificationRepo.UpdateInTx(ctx, phoneNumber, func(record *entity.PhoneVerification) (*entity.PhoneVerification, error) {
		if record == nil {
			return nil, ErrOTPNotFound
		}

		now := s.now()
		if record.IsVerified() {
			return nil, nil
		}
		if record.IsExpired(now) {
			return nil, fmt.Errorf("%w: request a new code", ErrOTPExpired)
		}
		if record.AttemptsExhausted() {
			return nil, ErrAttemptsExceeded
		}

		if !VerifyCode(code, record.CodeSalt, record.CodeHash) {
			record.Attempts++
			invalid = true
			// Инкремент попытки фиксируем, ошибку возвращаем вызывающему ниже.
			return record, nil
		}

		verifiedAt := now
		record.VerifiedAt = &verifiedAt
		record.Attempts++
		return record, nil
	})
	if err != nil {
		return false, err
	}
	if invalid {
		return false, ErrInvalidCode
	}
	return true, nil
}

// Resend behaves exactly as Send for an existing record, reusing the
// record's last method when none is supplied. It is not a bypass: the
// same cooldown and quota rules apply.
func (s *OTPService) Resend(ctx context.Context, phoneNumber, method string) (*SendResult, error) {
	record, err := s.verificationRepo.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}

	if method == "" {
		method = record.Method
	}
	return s.Send(ctx, phoneNumber, method)
}

// Status returns a read-only snapshot of the record.
func (s *OTPService) Status(ctx context.Context, phoneNumber string) (*entity.PhoneVerification, error) {
	record, err := s.verificationRepo.GetByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}
	return record, nil
}
