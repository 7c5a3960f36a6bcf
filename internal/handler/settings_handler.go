package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"github.com/yourusername/verify-api/internal/domain/entity"
	"github.com/yourusername/verify-api/internal/handler/dto"
	"github.com/yourusername/verify-api/internal/middleware"
	apperrors "github.com/yourusername/verify-api/internal/pkg/errors"
	"github.com/yourusername/verify-api/internal/service"
	"github.com/yourusername/verify-api/pkg/auth"
)

// SettingsHandler обрабатывает запросы админ-панели настроек
type SettingsHandler struct {
	settingsService *service.SettingsService
	delivery        service.DeliveryService
	sessions        *auth.SessionService
	defaultJWTTTL   int
}

// NewSettingsHandler создает новый обработчик настроек
func NewSettingsHandler(
	settingsService *service.SettingsService,
	delivery service.DeliveryService,
	sessions *auth.SessionService,
	defaultJWTTTL int,
) *SettingsHandler {
	if defaultJWTTTL <= 0 {
		defaultJWTTTL = 900
	}
	return &SettingsHandler{
		settingsService: settingsService,
		delivery:        delivery,
		sessions:        sessions,
		defaultJWTTTL:   defaultJWTTTL,
	}
}

// CreateSession выпускает короткоживущий JWT для работы в дашборде.
// Срок жизни берется из текущих настроек (jwt_expiry).
func (h *SettingsHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}

	ttlSeconds := h.settingsService.JWTExpirySeconds(c.Request.Context(), h.defaultJWTTTL)
	token, expiresAt, err := h.sessions.GenerateToken(req.Actor, time.Duration(ttlSeconds)*time.Second)
	if err != nil {
		log.Printf("ERROR: Failed to issue admin session for %s: %v", req.Actor, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateSessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// GetSettings возвращает текущую версию настроек в расшифрованном виде
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	record, err := h.settingsService.Latest(c.Request.Context())
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	payload, err := h.settingsService.DecryptVersion(record)
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSettingsVersionResponse(record, payload))
}

// UpdateSettings создает новую версию настроек
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var payload service.SettingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}

	record, err := h.settingsService.Update(c.Request.Context(), &payload, middleware.Actor(c))
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSettingsVersionResponse(record, &payload))
}

// Backup отдает текущие настройки с расшифрованными секретами как
// файл для скачивания
func (h *SettingsHandler) Backup(c *gin.Context) {
	backup, err := h.settingsService.Backup(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	filename := fmt.Sprintf("settings-backup-v%d-%s.json", backup.Version, backup.ExportedAt.Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.JSON(http.StatusOK, backup)
}

// Restore применяет ранее экспортированный бэкап как новую версию
func (h *SettingsHandler) Restore(c *gin.Context) {
	var backup service.SettingsBackup
	if err := c.ShouldBindJSON(&backup); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}

	record, err := h.settingsService.Restore(c.Request.Context(), &backup, middleware.Actor(c))
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSettingsVersionResponse(record, &backup.Settings))
}

// TestDelivery проверяет переданные учетные данные провайдера; при
// указанном номере через них отправляется пробное сообщение
func (h *SettingsHandler) TestDelivery(c *gin.Context) {
	var req dto.TestDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}
	method := req.Method
	if method == "" {
		method = "sms"
	}

	err := h.settingsService.TestDelivery(c.Request.Context(), h.delivery, &req.Twilio, req.PhoneNumber, method, middleware.Actor(c))
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	status := "validated"
	if req.PhoneNumber != "" {
		status = "sent"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"phone_number": req.PhoneNumber,
		"method":       method,
	})
}

// TestStorage проверяет переданные учетные данные объектного хранилища
func (h *SettingsHandler) TestStorage(c *gin.Context) {
	var payload service.StorageConfig
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
		return
	}

	if err := h.settingsService.TestStorage(c.Request.Context(), &payload, middleware.Actor(c)); err != nil {
		h.handleSettingsError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "validated",
		"endpoint": payload.Endpoint,
	})
}

// ListAudit возвращает страницу журнала аудита; ?format=xlsx отдает
// выгрузку в Excel
func (h *SettingsHandler) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, total, err := h.settingsService.ListAudit(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleSettingsError(c, err)
		return
	}

	if c.Query("format") == "xlsx" {
		h.exportAuditXLSX(c, entries)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedAuditResponse(entries, total, limit, offset))
}

// exportAuditXLSX экспортирует журнал аудита в Excel с использованием StreamWriter
func (h *SettingsHandler) exportAuditXLSX(c *gin.Context, entries []entity.SettingsAuditLog) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"settings-audit-%s.xlsx\"", time.Now().Format("20060102-150405")))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Audit"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[SettingsHandler] Failed to create stream writer: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file", "error_type": "internal_server_error"})
		return
	}

	headers := []interface{}{"Time (UTC)", "Action", "Actor", "Settings Version ID", "Notes"}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[SettingsHandler] Failed to write header row: %v", err)
	}

	for i, e := range entries {
		rowNum := i + 2 // Данные начинаются со второй строки
		cell := fmt.Sprintf("A%d", rowNum)

		row := []interface{}{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Action,
			e.Actor,
			e.SettingsID.String(),
			e.Notes,
		}
		if err := sw.SetRow(cell, row); err != nil {
			log.Printf("[SettingsHandler] Failed to write row %d: %v", rowNum, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[SettingsHandler] Failed to flush stream writer: %v", err)
	}

	if err := f.Write(c.Writer); err != nil {
		log.Printf("[SettingsHandler] Failed to write Excel response: %v", err)
	}
}

// handleSettingsError преобразует ошибки сервиса настроек в HTTP ответы
func (h *SettingsHandler) handleSettingsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoSettings):
		c.JSON(http.StatusNotFound, gin.H{"error": "No settings version exists yet", "error_type": "settings_not_found"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "error_type": "validation_error"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Settings were modified concurrently, reload and retry", "error_type": "settings_conflict"})
	case errors.Is(err, service.ErrDecryption):
		log.Printf("ERROR: Settings decryption failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored settings cannot be decrypted with the current key", "error_type": "settings_decryption_failed"})
	case errors.Is(err, service.ErrDeliveryFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "error_type": "otp_delivery_failed"})
	case errors.Is(err, service.ErrDeliveryConfig):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "error_type": "delivery_not_configured"})
	default:
		log.Printf("ERROR: Internal server error in SettingsHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
