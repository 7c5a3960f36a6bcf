package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/verify-api/internal/domain/entity"
	"github.com/yourusername/verify-api/internal/handler/dto"
	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
	"github.com/yourusername/verify-api/internal/service"
)

// OTPHandler обрабатывает запросы верификации номеров телефонов
type OTPHandler struct {
	otpService *service.OTPService
}

// NewOTPHandler создает новый обработчик верификации
func NewOTPHandler(otpService *service.OTPService) *OTPHandler {
	return &OTPHandler{otpService: otpService}
}

// Send обрабатывает запрос на отправку кода подтверждения
func (h *OTPHandler) Send(c *gin.Context) {
	var req dto.SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}
	if !service.IsE164(req.PhoneNumber) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "phone_number must be E.164, e.g. +15550001111",
			"error_type": "validation_error",
		})
		return
	}

	result, err := h.otpService.Send(c.Request.Context(), req.PhoneNumber, req.Method)
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	method := req.Method
	if method == "" {
		method = entity.MethodSMS
	}
	c.JSON(http.StatusOK, dto.SendOTPResponse{
		Status:                "sent",
		PhoneNumber:           req.PhoneNumber,
		Method:                method,
		ExpiresAt:             result.ExpiresAt,
		ResendIntervalSeconds: result.ResendIntervalSeconds,
	})
}

// Verify обрабатывает запрос на проверку кода
func (h *OTPHandler) Verify(c *gin.Context) {
	var req dto.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}

	verified, err := h.otpService.Verify(c.Request.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.VerifyOTPResponse{
		Verified:    verified,
		PhoneNumber: req.PhoneNumber,
	})
}

// Resend повторно отправляет код, по умолчанию прежним способом доставки
func (h *OTPHandler) Resend(c *gin.Context) {
	var req dto.SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}

	result, err := h.otpService.Resend(c.Request.Context(), req.PhoneNumber, req.Method)
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SendOTPResponse{
		Status:                "sent",
		PhoneNumber:           req.PhoneNumber,
		Method:                req.Method,
		ExpiresAt:             result.ExpiresAt,
		ResendIntervalSeconds: result.ResendIntervalSeconds,
	})
}

// Status возвращает состояние верификации номера
func (h *OTPHandler) Status(c *gin.Context) {
	phone := c.MustGet("phoneNumber").(string) // Получаем из контекста (param middleware)

	record, err := h.otpService.Status(c.Request.Context(), phone)
	if err != nil {
		h.handleOTPError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewOTPStatusResponse(record, time.Now()))
}

// handleOTPError преобразует ошибки сервиса в HTTP ответы со
// стабильными error_type кодами
func (h *OTPHandler) handleOTPError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOTPNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "error_type": "otp_not_found"})
	case errors.Is(err, service.ErrResendCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "error_type": "otp_resend_cooldown"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "error_type": "otp_rate_limited"})
	case errors.Is(err, service.ErrAttemptsExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "error_type": "otp_attempts_exceeded"})
	case errors.Is(err, service.ErrOTPExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "otp_expired"})
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "otp_invalid_code"})
	case errors.Is(err, service.ErrDeliveryFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "error_type": "otp_delivery_failed"})
	case errors.Is(err, service.ErrDeliveryConfig):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "error_type": "delivery_not_configured"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "error_type": "validation_error"})
	default:
		log.Printf("ERROR: Internal server error in OTPHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
