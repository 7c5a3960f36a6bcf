package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/verify-api/internal/domain/entity"
	"github.com/yourusername/verify-api/internal/domain/repository"
	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
	"github.com/yourusername/verify-api/pkg/secrets"
)

// SettingsBackup is the export format produced by Backup and consumed
// by Restore. Secrets inside are plaintext: the file is meant for an
// operator's secure storage, not for the database.
type SettingsBackup struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Settings   SettingsPayload `json:"settings"`
}

// SettingsService owns the versioned settings history: every change
// appends a new version row, secret columns are encrypted before they
// reach the repository, and each mutation lands in the audit trail in
// the same transaction as the version row.
type SettingsService struct {
	settingsRepo repository.SettingsRepository
	box          *secrets.Box
	now          func() time.Time
}

func NewSettingsService(settingsRepo repository.SettingsRepository, box *secrets.Box) (*SettingsService, error) {
	if settingsRepo == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if box == nil {
		return nil, fmt.Errorf("secrets box is required")
	}
	return &SettingsService{
		settingsRepo: settingsRepo,
		box:          box,
		now:          time.Now,
	}, nil
}

// Latest returns the current version row as stored, secrets still
// encrypted.
func (s *SettingsService) Latest(ctx context.Context) (*entity.SettingsVersion, error) {
	record, err := s.settingsRepo.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNoSettings
		}
		return nil, err
	}
	return record, nil
}

// Decrypted returns the current settings with secrets in plaintext
// plus the version number they came from.
func (s *SettingsService) Decrypted(ctx context.Context) (*SettingsPayload, int, error) {
	record, err := s.Latest(ctx)
	if err != nil {
		return nil, 0, err
	}

	payload, err := s.decryptRecord(record)
	if err != nil {
		return nil, 0, err
	}
	return payload, record.Version, nil
}

// DecryptVersion returns the plaintext payload of an already loaded
// version row. Handlers use it to echo the full settings back after a
// write without a second repository read.
func (s *SettingsService) DecryptVersion(record *entity.SettingsVersion) (*SettingsPayload, error) {
	return s.decryptRecord(record)
}

// Update validates the payload, encrypts its secrets and appends a new
// version together with an audit entry. Version numbers are allocated
// as latest+1; a concurrent writer taking the same number surfaces as
// ErrConflict from the unique index, and the loser retries from the
// dashboard.
func (s *SettingsService) Update(ctx context.Context, payload *SettingsPayload, actor string) (*entity.SettingsVersion, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	nextVersion, err := s.nextVersion(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.encryptRecord(payload, nextVersion, actor)
	if err != nil {
		return nil, err
	}

	audit := &entity.SettingsAuditLog{
		Action: entity.AuditActionUpdate,
		Actor:  actor,
		Notes:  fmt.Sprintf("settings updated to version %d", nextVersion),
	}
	if err := s.settingsRepo.CreateVersionWithAudit(ctx, record, audit); err != nil {
		return nil, err
	}

	log.Printf("[SettingsService] Settings version %d created by %s", nextVersion, actor)
	return record, nil
}

// Backup exports the current settings with secrets decrypted and
// records the export in the audit trail.
func (s *SettingsService) Backup(ctx context.Context, actor string) (*SettingsBackup, error) {
	record, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := s.decryptRecord(record)
	if err != nil {
		return nil, err
	}

	audit := &entity.SettingsAuditLog{
		SettingsID: record.ID,
		Action:     entity.AuditActionBackup,
		Actor:      actor,
		Notes:      fmt.Sprintf("settings version %d exported", record.Version),
	}
	if err := s.settingsRepo.AppendAudit(ctx, audit); err != nil {
		// Бэкап уже собран; падать из-за аудита нельзя, но след оставляем.
		log.Printf("[SettingsService] Failed to record backup audit entry: %v", err)
	}

	return &SettingsBackup{
		Version:    record.Version,
		ExportedAt: s.now(),
		Settings:   *payload,
	}, nil
}

// Restore validates a backup payload and appends it as a brand-new
// version. History is never rewritten: restoring version 3 on top of
// version 7 produces version 8 with version 3's contents.
func (s *SettingsService) Restore(ctx context.Context, backup *SettingsBackup, actor string) (*entity.SettingsVersion, error) {
	if err := backup.Settings.Validate(); err != nil {
		return nil, err
	}

	nextVersion, err := s.nextVersion(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.encryptRecord(&backup.Settings, nextVersion, actor)
	if err != nil {
		return nil, err
	}

	audit := &entity.SettingsAuditLog{
		Action: entity.AuditActionRestore,
		Actor:  actor,
		Notes:  fmt.Sprintf("settings restored from backup of version %d as version %d", backup.Version, nextVersion),
	}
	if err := s.settingsRepo.CreateVersionWithAudit(ctx, record, audit); err != nil {
		return nil, err
	}

	log.Printf("[SettingsService] Settings restored from backup of version %d as version %d by %s", backup.Version, nextVersion, actor)
	return record, nil
}

// TestDelivery validates the submitted provider credentials and, when
// a phone number is given, dispatches a probe code through them. The
// submitted payload is used as-is so an operator can test credentials
// before saving a version. The attempt lands in the audit trail
// regardless of outcome.
func (s *SettingsService) TestDelivery(ctx context.Context, delivery DeliveryService, payload *TwilioConfig, phoneNumber, method, actor string) error {
	if payload == nil {
		return fmt.Errorf("%w: twilio settings are required", apperrors.ErrValidation)
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	if phoneNumber != "" && !IsE164(phoneNumber) {
		return fmt.Errorf("%w: phone number must be E.164", apperrors.ErrValidation)
	}

	var sendErr error
	notes := fmt.Sprintf("test delivery credentials for %s: validated", payload.AccountSID)
	if phoneNumber != "" {
		code, err := GenerateCode(6)
		if err != nil {
			return err
		}

		creds := DeliveryCredentials{
			AccountSID:       payload.AccountSID,
			AuthToken:        payload.AuthToken,
			FromNumber:       payload.PhoneNumber,
			VerifyServiceSID: payload.VerifyServiceSID,
			OTPTemplate:      payload.OTPTemplate,
		}
		if prober, ok := delivery.(CredentialProber); ok {
			sendErr = prober.ProbeCredentials(ctx, creds, phoneNumber, code, method)
		} else {
			// Реализация без поддержки проб использует текущие креды
			sendErr = delivery.SendCode(ctx, phoneNumber, code, method)
		}

		notes = fmt.Sprintf("test delivery to %s via %s: ok", phoneNumber, method)
		if sendErr != nil {
			notes = fmt.Sprintf("test delivery to %s via %s failed: %v", phoneNumber, method, sendErr)
		}
	}

	s.appendTestAudit(ctx, entity.AuditActionTestDelivery, actor, notes)
	return sendErr
}

// TestStorage validates the submitted object-storage credentials at
// the structural level and records the check in the audit trail. The
// live bucket probe belongs to the upload service that owns the S3
// client.
func (s *SettingsService) TestStorage(ctx context.Context, payload *StorageConfig, actor string) error {
	if payload == nil {
		return fmt.Errorf("%w: storage settings are required", apperrors.ErrValidation)
	}

	vErr := payload.Validate()

	notes := fmt.Sprintf("test storage settings for %s: ok", payload.Endpoint)
	if vErr != nil {
		notes = fmt.Sprintf("test storage settings for %s failed: %v", payload.Endpoint, vErr)
	}
	s.appendTestAudit(ctx, entity.AuditActionTestStorage, actor, notes)

	return vErr
}

// appendTestAudit записывает результат проверки в аудит; сбой записи
// не прерывает саму проверку.
func (s *SettingsService) appendTestAudit(ctx context.Context, action, actor, notes string) {
	audit := &entity.SettingsAuditLog{
		Action: action,
		Actor:  actor,
		Notes:  notes,
	}
	if record, err := s.settingsRepo.GetLatest(ctx); err == nil {
		audit.SettingsID = record.ID
	}
	if err := s.settingsRepo.AppendAudit(ctx, audit); err != nil {
		log.Printf("[SettingsService] Failed to record %s audit entry: %v", action, err)
	}
}

// ListAudit returns a page of the audit trail, newest first.
func (s *SettingsService) ListAudit(ctx context.Context, limit, offset int) ([]entity.SettingsAuditLog, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.settingsRepo.ListAudit(ctx, limit, offset)
}

// DeliveryCredentials implements CredentialSource for the delivery
// service. Resolution happens per send, so a credential rotation via
// Update is picked up by the very next dispatch.
func (s *SettingsService) DeliveryCredentials(ctx context.Context) (*DeliveryCredentials, error) {
	record, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}

	authToken, err := s.box.Decrypt(record.TwilioAuthTokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: twilio auth token: %v", ErrDecryption, err)
	}

	return &DeliveryCredentials{
		AccountSID:       record.TwilioAccountSID,
		AuthToken:        authToken,
		FromNumber:       record.TwilioFromNumber,
		VerifyServiceSID: record.TwilioVerifyServiceSID,
		OTPTemplate:      record.OTPTemplate,
	}, nil
}

// JWTExpirySeconds returns the session lifetime from the current
// settings, or the given default when no version exists yet.
func (s *SettingsService) JWTExpirySeconds(ctx context.Context, fallback int) int {
	record, err := s.Latest(ctx)
	if err != nil {
		return fallback
	}
	if record.JWTExpiry <= 0 {
		return fallback
	}
	return record.JWTExpiry
}

func (s *SettingsService) nextVersion(ctx context.Context) (int, error) {
	record, err := s.settingsRepo.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 1, nil
		}
		return 0, err
	}
	return record.Version + 1, nil
}

// encryptRecord строит строку версии из плоского payload, шифруя
// секретные поля перед сохранением.
func (s *SettingsService) encryptRecord(payload *SettingsPayload, version int, actor string) (*entity.SettingsVersion, error) {
	accessKey, err := s.box.Encrypt(payload.Storage.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt storage access key: %w", err)
	}
	secretKey, err := s.box.Encrypt(payload.Storage.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt storage secret key: %w", err)
	}
	authToken, err := s.box.Encrypt(payload.Twilio.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt twilio auth token: %w", err)
	}

	policy, err := json.Marshal(payload.Security.PasswordPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize password policy: %w", err)
	}

	return &entity.SettingsVersion{
		Version: version,

		S3Endpoint:           payload.Storage.Endpoint,
		S3AccessKeyEncrypted: accessKey,
		S3SecretKeyEncrypted: secretKey,
		S3Bucket:             payload.Storage.Bucket,
		S3Region:             payload.Storage.Region,

		TwilioAccountSID:         payload.Twilio.AccountSID,
		TwilioAuthTokenEncrypted: authToken,
		TwilioFromNumber:         payload.Twilio.PhoneNumber,
		TwilioVerifyServiceSID:   payload.Twilio.VerifyServiceSID,
		OTPTemplate:              payload.Twilio.OTPTemplate,

		Theme:      payload.Application.Theme,
		Language:   payload.Application.Language,
		APITimeout: payload.Application.APITimeout,

		JWTExpiry:      payload.Security.JWTExpiry,
		PasswordPolicy: string(policy),

		CreatedBy: actor,
	}, nil
}

// decryptRecord восстанавливает плоский payload из строки версии.
// Любая ошибка дешифрования — это ErrDecryption, без подстановки
// пустых значений.
func (s *SettingsService) decryptRecord(record *entity.SettingsVersion) (*SettingsPayload, error) {
	accessKey, err := s.box.Decrypt(record.S3AccessKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: storage access key: %v", ErrDecryption, err)
	}
	secretKey, err := s.box.Decrypt(record.S3SecretKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: storage secret key: %v", ErrDecryption, err)
	}
	authToken, err := s.box.Decrypt(record.TwilioAuthTokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: twilio auth token: %v", ErrDecryption, err)
	}

	policy := DefaultPasswordPolicy()
	if record.PasswordPolicy != "" && record.PasswordPolicy != "{}" {
		if err := json.Unmarshal([]byte(record.PasswordPolicy), &policy); err != nil {
			return nil, fmt.Errorf("failed to parse stored password policy: %w", err)
		}
	}

	return &SettingsPayload{
		Storage: StorageConfig{
			Endpoint:  record.S3Endpoint,
			AccessKey: accessKey,
			SecretKey: secretKey,
			Bucket:    record.S3Bucket,
			Region:    record.S3Region,
		},
		Twilio: TwilioConfig{
			AccountSID:       record.TwilioAccountSID,
			AuthToken:        authToken,
			PhoneNumber:      record.TwilioFromNumber,
			VerifyServiceSID: record.TwilioVerifyServiceSID,
			OTPTemplate:      record.OTPTemplate,
		},
		Application: ApplicationConfig{
			Theme:      record.Theme,
			Language:   record.Language,
			APITimeout: record.APITimeout,
		},
		Security: SecurityConfig{
			JWTExpiry:      record.JWTExpiry,
			PasswordPolicy: policy,
		},
	}, nil
}
