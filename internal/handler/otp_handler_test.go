package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/verify-api/internal/domain/entity"
	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
	"github.com/yourusername/verify-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

// ============================================================================
// In-memory fakes backing a real OTPService
// ============================================================================

type memVerificationRepo struct {
	records map[string]*entity.PhoneVerification
}

func newMemVerificationRepo() *memVerificationRepo {
	return &memVerificationRepo{records: make(map[string]*entity.PhoneVerification)}
}

func (f *memVerificationRepo) GetByPhone(ctx context.Context, phoneNumber string) (*entity.PhoneVerification, error) {
	record, ok := f.records[phoneNumber]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *record
	return &c, nil
}

func (f *memVerificationRepo) UpdateInTx(ctx context.Context, phoneNumber string, fn func(record *entity.PhoneVerification) (*entity.PhoneVerification, error)) error {
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

// stubDelivery записывает последний отправленный код
type stubDelivery struct {
	lastCode   string
	lastMethod string
	fail       error
}

func (s *stubDelivery) SendCode(ctx context.Context, phoneNumber, code, method string) error {
	if s.fail != nil {
		return s.fail
	}
	s.lastCode = code
	s.lastMethod = method
	return nil
}

func newTestOTPHandler(t *testing.T, repo *memVerificationRepo, delivery service.DeliveryService) *OTPHandler {
	t.Helper()
	svc, err := service.NewOTPService(repo, delivery, 6, 5*time.Minute, 60*time.Second, 5, 5)
	require.NoError(t, err)
	return NewOTPHandler(svc)
}

// ============================================================================
// Send
// ============================================================================

func TestOTPHandler_Send_Success(t *testing.T) {
	repo := newMemVerificationRepo()
	delivery := &stubDelivery{}
	handler := newTestOTPHandler(t, repo, delivery)

	c, w := newTestGinContext("POST", "/api/otp/send", map[string]string{
		"phone_number": "+15550001111",
	})
	handler.Send(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "sent", resp["status"])
	assert.Equal(t, "sms", resp["method"], "sms is the default delivery method")
	assert.Equal(t, float64(60), resp["resend_interval_seconds"])
	assert.Len(t, delivery.lastCode, 6)
}

func TestOTPHandler_Send_ValidationErrors(t *testing.T) {
	handler := newTestOTPHandler(t, newMemVerificationRepo(), &stubDelivery{})

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{"empty body", nil, http.StatusBadRequest},
		{"missing phone", map[string]string{"method": "sms"}, http.StatusBadRequest},
		{"unknown method", map[string]string{"phone_number": "+15550001111", "method": "fax"}, http.StatusBadRequest},
		{"not e164", map[string]string{"phone_number": "55500011112"}, http.StatusUnprocessableEntity},
		{"leading zero", map[string]string{"phone_number": "+05550001111"}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/otp/send", tt.body)
			handler.Send(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, "validation_error", resp["error_type"])
		})
	}
}

func TestOTPHandler_Send_CooldownReturns429(t *testing.T) {
	repo := newMemVerificationRepo()
	delivery := &stubDelivery{}
	handler := newTestOTPHandler(t, repo, delivery)

	c, w := newTestGinContext("POST", "/api/otp/send", map[string]string{"phone_number": "+15550001111"})
	handler.Send(c)
	require.Equal(t, http.StatusOK, w.Code)

	// Повторная отправка сразу же — отказ с точным остатком ожидания
	c, w = newTestGinContext("POST", "/api/otp/send", map[string]string{"phone_number": "+15550001111"})
	handler.Send(c)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "otp_resend_cooldown", resp["error_type"])
	assert.Contains(t, resp["error"], "wait")
}

func TestOTPHandler_Send_DeliveryFailure(t *testing.T) {
	repo := newMemVerificationRepo()
	delivery := &stubDelivery{fail: service.ErrDeliveryFailed}
	handler := newTestOTPHandler(t, repo, delivery)

	c, w := newTestGinContext("POST", "/api/otp/send", map[string]string{"phone_number": "+15550001111"})
	handler.Send(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "otp_delivery_failed", resp["error_type"])
	assert.Empty(t, repo.records, "failed dispatch must not persist a record")
}

// ============================================================================
// Verify
// ============================================================================

func TestOTPHandler_Verify_FullFlow(t *testing.T) {
	repo := newMemVerificationRepo()
	delivery := &stubDelivery{}
	handler := newTestOTPHandler(t, repo, delivery)

	c, w := newTestGinContext("POST", "/api/otp/send", map[string]string{"phone_number": "+15550001111"})
	handler.Send(c)
	require.Equal(t, http.StatusOK, w.Code)

	// Проверяем код, который реально ушел через доставку
	c, w = newTestGinContext("POST", "/api/otp/verify", map[string]string{
		"phone_number": "+15550001111",
		"code":         delivery.lastCode,
	})
	handler.Verify(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, true, resp["verified"])
	assert.Equal(t, "+15550001111", resp["phone_number"])
}

func TestOTPHandler_Verify_WrongCode(t *testing.T) {
	repo := newMemVerificationRepo()
	delivery := &stubDelivery{}
	handler := newTestOTPHandler(t, repo, delivery)

	c, w := newTestGinContext("POST", "/api/otp/send", map[string]string{"phone_number": "+15550001111"})
	handler.Send(c)
	require.Equal(t, http.StatusOK, w.Code)

	wrong := "000000"
	if delivery.lastCode == wrong {
		wrong = "000001"
	}
	c, w = newTestGinContext("POST", "/api/otp/verify", map[string]string{
		"phone_number": "+15550001111",
		"code":         wrong,
	})
	handler.Verify(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "otp_invalid_code", resp["error_type"])
	assert.Equal(t, 1, repo.records["+15550001111"].Attempts)
}

func TestOTPHandler_Verify_NotFound(t *testing.T) {
	handler := newTestOTPHandler(t, newMemVerificationRepo(), &stubDelivery{})

	c, w := newTestGinContext("POST", "/api/otp/verify", map[string]string{
		"phone_number": "+15550001111",
		"code":         "123456",
	})
	handler.Verify(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "otp_not_found", resp["error_type"])
}

func TestOTPHandler_Verify_NonNumericCodeRejected(t *testing.T) {
	handler := newTestOTPHandler(t, newMemVerificationRepo(), &stubDelivery{})

	c, w := newTestGinContext("POST", "/api/otp/verify", map[string]string{
		"phone_number": "+15550001111",
		"code":         "12a456",
	})
	handler.Verify(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ============================================================================
// Resend / Status
// ============================================================================

func TestOTPHandler_Resend_NotFound(t *testing.T) {
	handler := newTestOTPHandler(t, newMemVerificationRepo(), &stubDelivery{})

	c, w := newTestGinContext("POST", "/api/otp/resend", map[string]string{"phone_number": "+15550001111"})
	handler.Resend(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "otp_not_found", resp["error_type"])
}

func TestOTPHandler_Status(t *testing.T) {
	repo := newMemVerificationRepo()
	delivery := &stubDelivery{}
	handler := newTestOTPHandler(t, repo, delivery)

	c, w := newTestGinContext("POST", "/api/otp/send", map[string]string{"phone_number": "+15550001111"})
	handler.Send(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestGinContext("GET", "/api/otp/status/+15550001111", nil)
	c.Set("phoneNumber", "+15550001111")
	handler.Status(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, false, resp["verified"])
	assert.Equal(t, float64(0), resp["attempts_used"])
	assert.Equal(t, float64(5), resp["attempts_remaining"])
	assert.Equal(t, float64(1), resp["send_count"])
	_, hasHash := resp["code_hash"]
	assert.False(t, hasHash, "code material must never leak through status")
}
