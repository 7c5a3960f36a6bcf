package repository

import (
	"context"

	"github.com/yourusername/verify-api/internal/domain/entity"
)

// PhoneVerificationRepository persists per-phone OTP records.
//
// UpdateInTx runs a read-modify-write for one phone number inside a
// single database transaction: fn receives the current record (nil if
// absent) and returns the record to save. Returning an error from fn
// rolls the transaction back with no mutation persisted. This is the
// serialization boundary for concurrent sends/verifies against the
// same number — an in-process mutex would not survive multiple
// instances behind a load balancer.
type PhoneVerificationRepository interface {
	GetByPhone(ctx context.Context, phoneNumber string) (*entity.PhoneVerification, error)
	UpdateInTx(ctx context.Context, phoneNumber string, fn func(record *entity.PhoneVerification) (*entity.PhoneVerification, error)) error
}
