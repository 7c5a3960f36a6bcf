package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/verify-api/internal/config"
	"github.com/yourusername/verify-api/internal/domain/repository"
	"github.com/yourusername/verify-api/internal/handler"
	"github.com/yourusername/verify-api/internal/middleware"
	memRepo "github.com/yourusername/verify-api/internal/repository/memory"
	pgRepo "github.com/yourusername/verify-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/verify-api/internal/repository/redis"
	"github.com/yourusername/verify-api/internal/service"
	"github.com/yourusername/verify-api/pkg/auth"
	"github.com/yourusername/verify-api/pkg/database"
	"github.com/yourusername/verify-api/pkg/secrets"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Хранилище счетчиков rate limiting: Redis, если сконфигурирован,
	// иначе in-memory (single-node режим)
	var rateLimitStore repository.RateLimitStore
	if len(cfg.Redis.Addrs) > 0 || cfg.Redis.Addr != "" {
		redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
		if err != nil {
			log.Printf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		log.Println("Successfully connected to Redis")

		rateLimitStore, err = redisRepo.NewRateLimitStore(redisClient)
		if err != nil {
			log.Printf("Failed to initialize rate limit store: %v", err)
			os.Exit(1)
		}
	} else {
		log.Println("Redis is not configured, using in-memory rate limit counters")
		rateLimitStore = memRepo.NewRateLimitStore()
	}

	// Инициализируем репозитории
	verificationRepo := pgRepo.NewPhoneVerificationRepo(db)
	settingsRepo := pgRepo.NewSettingsRepo(db)

	// Шифрование секретов настроек
	box, err := secrets.NewBox(cfg.Settings.EncryptionKey)
	if err != nil {
		log.Printf("Failed to initialize settings encryption: %v", err)
		os.Exit(1)
	}

	// Инициализируем сервисы
	settingsService, err := service.NewSettingsService(settingsRepo, box)
	if err != nil {
		log.Printf("Failed to initialize SettingsService: %v", err)
		os.Exit(1)
	}

	var deliveryService service.DeliveryService
	if cfg.Twilio.DryRun {
		log.Println("TWILIO_DRY_RUN is set, codes will be logged instead of dispatched")
		deliveryService = &service.NoopDeliveryService{}
	} else {
		deliveryService, err = service.NewTwilioDeliveryService(settingsService, service.EnvDeliveryDefaults{
			AccountSID:  cfg.Twilio.AccountSID,
			AuthToken:   cfg.Twilio.AuthToken,
			FromNumber:  cfg.Twilio.FromNumber,
			OTPTemplate: cfg.Twilio.OTPTemplate,
		})
		if err != nil {
			log.Printf("Failed to initialize TwilioDeliveryService: %v", err)
			os.Exit(1)
		}
	}

	otpService, err := service.NewOTPService(
		verificationRepo,
		deliveryService,
		cfg.OTP.CodeLength,
		time.Duration(cfg.OTP.TTLSeconds)*time.Second,
		time.Duration(cfg.OTP.ResendIntervalSeconds)*time.Second,
		cfg.OTP.HourlyLimit,
		cfg.OTP.MaxAttempts,
	)
	if err != nil {
		log.Printf("Failed to initialize OTPService: %v", err)
		os.Exit(1)
	}

	// Сессии админ-панели
	sessionService, err := auth.NewSessionService(cfg.Admin.SessionSecret, cfg.Admin.SessionTTLSeconds)
	if err != nil {
		log.Printf("Failed to initialize SessionService: %v", err)
		os.Exit(1)
	}

	// Инициализируем обработчики
	otpHandler := handler.NewOTPHandler(otpService)
	settingsHandler := handler.NewSettingsHandler(settingsService, deliveryService, sessionService, cfg.Admin.SessionTTLSeconds)

	// Инициализируем middleware
	adminMiddleware := middleware.NewAdminMiddleware(cfg.Admin.OperatorToken, sessionService)
	rateLimiter := middleware.NewRateLimiter(rateLimitStore)

	generalLimit := middleware.RateLimitConfig{
		MaxRequests: cfg.OTP.RateLimitMaxRequests,
		Window:      time.Duration(cfg.OTP.RateLimitWindowSeconds) * time.Second,
		KeyPrefix:   "rl:api",
	}
	// Окно OTP-лимитера равно паузе между повторными отправками
	otpLimit := middleware.OTPRateLimitConfig(
		otpService.HourlyQuota(),
		time.Duration(otpService.ResendIntervalSeconds())*time.Second,
	)

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	// В production (GIN_MODE=release): не доверяем прокси (защита от IP spoofing)
	// В development: доверяем localhost
	// При деплое на VM с load balancer: добавьте IP балансировщика в список
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8000", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Healthcheck для балансировщика и docker-compose
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Настраиваем маршруты API
	api := router.Group("/api")
	api.Use(rateLimiter.LimitByIP(generalLimit))
	{
		// Верификация номеров телефонов
		otp := api.Group("/otp")
		{
			// Строгий лимит по IP+path поверх персистентной квоты на номер
			otpSend := otp.Group("")
			otpSend.Use(rateLimiter.Limit(otpLimit))
			{
				otpSend.POST("/send", otpHandler.Send)
				otpSend.POST("/resend", otpHandler.Resend)
			}

			otp.POST("/verify", otpHandler.Verify)

			otpStatus := otp.Group("/status/:phone")
			otpStatus.Use(middleware.ExtractPhoneParam("phone", "phoneNumber"))
			{
				otpStatus.GET("", otpHandler.Status)
			}
		}

		// Админ-панель настроек
		admin := api.Group("/admin")
		admin.Use(adminMiddleware.RequireAdmin())
		{
			admin.POST("/session", settingsHandler.CreateSession)

			settings := admin.Group("/settings")
			{
				settings.GET("", settingsHandler.GetSettings)
				settings.PUT("", settingsHandler.UpdateSettings)
				settings.GET("/backup", settingsHandler.Backup)
				settings.POST("/restore", settingsHandler.Restore)
				settings.POST("/test-storage", settingsHandler.TestStorage)
				settings.POST("/test-delivery", settingsHandler.TestDelivery)
				settings.GET("/audit", settingsHandler.ListAudit)
			}
		}
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	readTimeout := cfg.Server.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15
	}
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// Ждем сигнал остановки и завершаем работу корректно
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
