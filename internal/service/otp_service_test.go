package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/verify-api/internal/domain/entity"
	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
)

// ============================================================================
// Test doubles
// ============================================================================

// fakePhoneVerificationRepo keeps records in a map and mimics the
// transactional contract: fn works on a copy, an error discards it, a
// returned record replaces the stored one.
type fakePhoneVerificationRepo struct {
	records map[string]*entity.PhoneVerification
}

func newFakePhoneVerificationRepo() *fakePhoneVerificationRepo {
	return &fakePhoneVerificationRepo{records: make(map[string]*entity.PhoneVerification)}
}

func (f *fakePhoneVerificationRepo) GetByPhone(ctx context.Context, phoneNumber string) (*entity.PhoneVerification, error) {
	record, ok := f.records[phoneNumber]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *record
	return &c, nil
}

func (f *fakePhoneVerificationRepo) UpdateInTx(ctx context.Context, phoneNumber string, fn func(record *entity.PhoneVerification) (*entity.PhoneVerification, error)) error {
	var working *entity.PhoneVerification
	if record, ok := f.records[phoneNumber]; ok {
		c := *record
		working = &c
	}

	updated, err := fn(working)
	if err != nil {
		return err
	}
	if updated != nil {
		f.records[phoneNumber] = updated
	}
	return nil
}

// MockDeliveryService реализует DeliveryService
type MockDeliveryService struct {
	mock.Mock
}

func (m *MockDeliveryService) SendCode(ctx context.Context, phoneNumber, code, method string) error {
	args := m.Called(ctx, phoneNumber, code, method)
	return args.Error(0)
}

const testPhone = "+15550001111"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func createTestOTPService(t *testing.T, repo *fakePhoneVerificationRepo, delivery DeliveryService) *OTPService {
	t.Helper()
	svc, err := NewOTPService(repo, delivery, 6, 5*time.Minute, 60*time.Second, 5, 5)
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc
}

// issuedRecord builds a stored record for a known code so Verify tests
// do not depend on random generation.
func issuedRecord(code string, sentAt time.Time) *entity.PhoneVerification {
	salt := "00112233445566778899aabbccddeeff"
	return &entity.PhoneVerification{
		PhoneNumber:      testPhone,
		CodeHash:         HashCode(code, salt),
		CodeSalt:         salt,
		Method:           entity.MethodSMS,
		ExpiresAt:        sentAt.Add(5 * time.Minute),
		LastSentAt:       sentAt,
		Attempts:         0,
		MaxAttempts:      5,
		SendCount:        1,
		RateLimitResetAt: sentAt.Add(time.Hour),
	}
}

// ============================================================================
// Send
// ============================================================================

func TestOTPService_Send_CreatesRecord(t *testing.T) {
	// Arrange
	repo := newFakePhoneVerificationRepo()
	delivery := new(MockDeliveryService)

	var sentCode string
	delivery.On("SendCode", mock.Anything, testPhone, mock.AnythingOfType("string"), entity.MethodSMS).
		Run(func(args mock.Arguments) { sentCode = args.String(2) }).
		Return(nil)

	svc := createTestOTPService(t, repo, delivery)

	// Act
	result, err := svc.Send(context.Background(), testPhone, "")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(5*time.Minute), result.ExpiresAt)
	assert.Equal(t, 60, result.ResendIntervalSeconds)

	record := repo.records[testPhone]
	require.NotNil(t, record, "record must be persisted")
	assert.Len(t, sentCode, 6)
	assert.True(t, VerifyCode(sentCode, record.CodeSalt, record.CodeHash), "stored hash must match the dispatched code")
	assert.Equal(t, 1, record.SendCount)
	assert.Equal(t, 0, record.Attempts)
	assert.Nil(t, record.VerifiedAt)
	assert.Equal(t, testNow.Add(time.Hour), record.RateLimitResetAt)
	delivery.AssertExpectations(t)
}

func TestOTPService_Send_ResendCooldown(t *testing.T) {
	// Arrange: last send was 30s ago, cooldown is 60s
	repo := newFakePhoneVerificationRepo()
	repo.records[testPhone] = issuedRecord("123456", testNow.Add(-30*time.Second))
	delivery := new(MockDeliveryService)
	svc := createTestOTPService(t, repo, delivery)

	// Act
	result, err := svc.Send(context.Background(), testPhone, "")

	// Assert
	assert.Nil(t, result)
	require.ErrorIs(t, err, ErrResendCooldown)
	assert.Contains(t, err.Error(), "30s", "remaining wait must be reported exactly")
	assert.Equal(t, 1, repo.records[testPhone].SendCount, "record must stay untouched")
	delivery.AssertNotCalled(t, "SendCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOTPService_Send_HourlyQuotaExceeded(t *testing.T) {
	// Arrange
	repo := newFakePhoneVerificationRepo()
	record := issuedRecord("123456", testNow.Add(-2*time.Minute))
	record.SendCount = 5
	repo.records[testPhone] = record
	delivery := new(MockDeliveryService)
	svc := createTestOTPService(t, repo, delivery)

	// Act
	result, err := svc.Send(context.Background(), testPhone, "")

	// Assert
	assert.Nil(t, result)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 5, repo.records[testPhone].SendCount)
	delivery.AssertNotCalled(t, "SendCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOTPService_Send_QuotaWindowRollsOver(t *testing.T) {
	// Arrange: quota exhausted, but the hourly window already elapsed
	repo := newFakePhoneVerificationRepo()
	record := issuedRecord("123456", testNow.Add(-2*time.Hour))
	record.SendCount = 5
	record.RateLimitResetAt = testNow.Add(-time.Hour)
	repo.records[testPhone] = record
	delivery := new(MockDeliveryService)
	delivery.On("SendCode", mock.Anything, testPhone, mock.AnythingOfType("string"), entity.MethodSMS).Return(nil)
	svc := createTestOTPService(t, repo, delivery)

	// Act
	result, err := svc.Send(context.Background(), testPhone, "")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result)
	updated := repo.records[testPhone]
	assert.Equal(t, 1, updated.SendCount, "counter must restart in the new window")
	assert.Equal(t, testNow.Add(time.Hour), updated.RateLimitResetAt)
	delivery.AssertExpectations(t)
}

func TestOTPService_Send_DeliveryFailureRollsBack(t *testing.T) {
	// Arrange
	repo := newFakePhoneVerificationRepo()
	original := issuedRecord("123456", testNow.Add(-2*time.Minute))
	repo.records[testPhone] = original
	delivery := new(MockDeliveryService)
	delivery.On("SendCode", mock.Anything, testPhone, mock.AnythingOfType("string"), entity.MethodSMS).
		Return(ErrDeliveryFailed)
	svc := createTestOTPService(t, repo, delivery)

	// Act
	result, err := svc.Send(context.Background(), testPhone, "")

	// Assert
	assert.Nil(t, result)
	require.ErrorIs(t, err, ErrDeliveryFailed)

	// Прежний код остается действующим после отката
	stored := repo.records[testPhone]
	assert.Equal(t, original.CodeHash, stored.CodeHash)
	assert.Equal(t, original.SendCount, stored.SendCount)
	assert.True(t, VerifyCode("123456", stored.CodeSalt, stored.CodeHash))
}

func TestOTPService_Send_NewSendInvalidatesPreviousCode(t *testing.T) {
	// Arrange
	repo := newFakePhoneVerificationRepo()
	repo.records[testPhone] = issuedRecord("123456", testNow.Add(-2*time.Minute))
	delivery := new(MockDeliveryService)
	delivery.On("SendCode", mock.Anything, testPhone, mock.AnythingOfType("string"), entity.MethodSMS).Return(nil)
	svc := createTestOTPService(t, repo, delivery)

	// Act
	_, err := svc.Send(context.Background(), testPhone, "")

	// Assert
	require.NoError(t, err)
	stored := repo.records[testPhone]
	assert.False(t, VerifyCode("123456", stored.CodeSalt, stored.CodeHash), "old code must stop verifying")
	assert.Equal(t, 2, stored.SendCount)
}

// ============================================================================
// Verify
// ============================================================================

func TestOTPService_Verify_Success(t *testing.T) {
	// Arrange
	repo := newFakePhoneVerificationRepo()
	repo.records[testPhone] = issuedRecord("042137", testNow.Add(-time.Minute))
	svc := createTestOTPService(t, repo, new(MockDeliveryService))

	// Act
	ok, err := svc.Verify(context.Background(), testPhone, "042137")

	// Assert
	require.NoError(t, err)
	assert.True(t, ok)
	stored := repo.records[testPhone]
	require.NotNil(t, stored.VerifiedAt)
	assert.Equal(t, testNow, *stored.VerifiedAt)
	assert.Equal(t, 1, stored.Attempts, "successful check also counts as an attempt")
}

func TestOTPService_Verify_WrongCodeIncrementsAttempts(t *testing.T) {
	// Arrange
	repo := newFakePhoneVerificationRepo()
	repo.records[testPhone] = issuedRecord("042137", testNow.Add(-time.Minute))
	svc := createTestOTPService(t, repo, new(MockDeliveryService))

	// Act
	ok, err := svc.Verify(context.Background(), testPhone, "000000")

	// Assert
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrInvalidCode)
	stored := repo.records[testPhone]
	assert.Equal(t, 1, stored.Attempts, "failed attempt must be persisted")
	assert.Nil(t, stored.VerifiedAt)
}

func TestOTPService_Verify_IdempotentAfterSuccess(t *testing.T) {
	// Arrange: already verified record
	repo := newFakePhoneVerificationRepo()
	record := issuedRecord("042137", testNow.Add(-time.Minute))
	verifiedAt := testNow.Add(-30 * time.Second)
	record.VerifiedAt = &verifiedAt
	record.Attempts = 1
	repo.records[testPhone] = record
	svc := createTestOTPService(t, repo, new(MockDeliveryService))

	// Act: even a wrong code answers success once verified
	ok, err := svc.Verify(context.Background(), testPhone, "999999")

	// Assert
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.records[testPhone].Attempts, "verified record must not be mutated")
}

func TestOTPService_Verify_Expired(t *testing.T) {
	// Arrange
	repo := newFakePhoneVerificationRepo()
	repo.records[testPhone] = issuedRecord("042137", testNow.Add(-10*time.Minute))
	svc := createTestOTPService(t, repo, new(MockDeliveryService))

	// Act
	ok, err := svc.Verify(context.Background(), testPhone, "042137")

	// Assert
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestOTPService_Verify_AttemptsExceeded(t *testing.T) {
	// Arrange
	repo := newFakePhoneVerificationRepo()
	record := issuedRecord("042137", testNow.Add(-time.Minute))
	record.Attempts = 5
	repo.records[testPhone] = record
	svc := createTestOTPService(t, repo, new(MockDeliveryService))

	// Act: the correct code no longer helps
	ok, err := svc.Verify(context.Background(), testPhone, "042137")

	// Assert
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAttemptsExceeded)
}

func TestOTPService_Verify_NotFound(t *testing.T) {
	svc := createTestOTPService(t, newFakePhoneVerificationRepo(), new(MockDeliveryService))

	ok, err := svc.Verify(context.Background(), testPhone, "042137")

	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

// ============================================================================
// Resend / Status
// ============================================================================

func TestOTPService_Resend_ReusesLastMethod(t *testing.T) {
	// Arrange: previous send went by voice call
	repo := newFakePhoneVerificationRepo()
	record := issuedRecord("123456", testNow.Add(-2*time.Minute))
	record.Method = entity.MethodVoice
	repo.records[testPhone] = record
	delivery := new(MockDeliveryService)
	delivery.On("SendCode", mock.Anything, testPhone, mock.AnythingOfType("string"), entity.MethodVoice).Return(nil)
	svc := createTestOTPService(t, repo, delivery)

	// Act
	result, err := svc.Resend(context.Background(), testPhone, "")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result)
	delivery.AssertExpectations(t)
}

func TestOTPService_Resend_NotFound(t *testing.T) {
	svc := createTestOTPService(t, newFakePhoneVerificationRepo(), new(MockDeliveryService))

	result, err := svc.Resend(context.Background(), testPhone, "")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPService_Resend_SubjectToCooldown(t *testing.T) {
	// Arrange: resend is not a throttle bypass
	repo := newFakePhoneVerificationRepo()
	repo.records[testPhone] = issuedRecord("123456", testNow.Add(-10*time.Second))
	delivery := new(MockDeliveryService)
	svc := createTestOTPService(t, repo, delivery)

	// Act
	result, err := svc.Resend(context.Background(), testPhone, "")

	// Assert
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrResendCooldown)
	delivery.AssertNotCalled(t, "SendCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOTPService_Status(t *testing.T) {
	repo := newFakePhoneVerificationRepo()
	repo.records[testPhone] = issuedRecord("123456", testNow.Add(-time.Minute))
	svc := createTestOTPService(t, repo, new(MockDeliveryService))

	record, err := svc.Status(context.Background(), testPhone)

	require.NoError(t, err)
	assert.Equal(t, testPhone, record.PhoneNumber)
	assert.False(t, record.IsVerified())

	_, err = svc.Status(context.Background(), "+15550009999")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}
