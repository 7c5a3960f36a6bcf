package config

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OTP      OTPConfig
	Settings SettingsConfig
	Admin    AdminConfig
	Twilio   TwilioConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	// Для 'single', если не пуст, используется первый адрес из списка.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single' (для обратной совместимости).
	// Используется, если Mode="single" и Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения (-1 - бесконечно). По умолчанию 0 (без ретраев).
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff: Минимальный интервал между попытками (в миллисекундах). По умолчанию 8ms.
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`

	// MaxRetryBackoff: Максимальный интервал между попытками (в миллисекундах). По умолчанию 512ms.
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// OTPConfig содержит настройки жизненного цикла кодов подтверждения
type OTPConfig struct {
	// CodeLength: Длина кода в цифрах. По умолчанию 6.
	CodeLength int `mapstructure:"code_length"`

	// TTLSeconds: Срок действия кода. По умолчанию 300 секунд.
	TTLSeconds int `mapstructure:"ttl_seconds"`

	// ResendIntervalSeconds: Минимальная пауза между отправками на один номер. По умолчанию 60.
	ResendIntervalSeconds int `mapstructure:"resend_interval_seconds"`

	// HourlyLimit: Максимум отправок на номер в час. По умолчанию 5.
	HourlyLimit int `mapstructure:"hourly_limit"`

	// MaxAttempts: Максимум проверок кода. По умолчанию 5.
	MaxAttempts int `mapstructure:"max_attempts"`

	// RateLimitMaxRequests / RateLimitWindowSeconds: лимит по IP для
	// публичных endpoints. По умолчанию 20 запросов за 60 секунд.
	RateLimitMaxRequests   int `mapstructure:"rate_limit_max_requests"`
	RateLimitWindowSeconds int `mapstructure:"rate_limit_window_seconds"`
}

// SettingsConfig содержит настройки хранилища версий настроек
type SettingsConfig struct {
	// EncryptionKey: Ключ шифрования секретов (hex 64 символа или
	// парольная фраза). Обязателен: без него секреты нечитаемы.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// AdminConfig содержит настройки доступа к админ-панели
type AdminConfig struct {
	// OperatorToken: Статический Bearer токен оператора.
	OperatorToken string `mapstructure:"operator_token"`

	// SessionSecret: Секрет подписи сессионных JWT (минимум 32 символа).
	SessionSecret string `mapstructure:"session_secret"`

	// SessionTTLSeconds: Срок жизни сессии по умолчанию, если в
	// настройках нет jwt_expiry. По умолчанию 900.
	SessionTTLSeconds int `mapstructure:"session_ttl_seconds"`
}

// TwilioConfig содержит фолбэк-учетные данные провайдера доставки.
// Используются только пока в БД нет ни одной версии настроек.
type TwilioConfig struct {
	AccountSID  string `mapstructure:"account_sid"`
	AuthToken   string `mapstructure:"auth_token"`
	FromNumber  string `mapstructure:"from_number"`
	OTPTemplate string `mapstructure:"otp_template"`

	// DryRun: true — коды логируются вместо реальной отправки.
	// Для локальной разработки без аккаунта Twilio.
	DryRun bool `mapstructure:"dry_run"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// 1. Значения по умолчанию
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("otp.code_length", 6)
	vip.SetDefault("otp.ttl_seconds", 300)
	vip.SetDefault("otp.resend_interval_seconds", 60)
	vip.SetDefault("otp.hourly_limit", 5)
	vip.SetDefault("otp.max_attempts", 5)
	vip.SetDefault("otp.rate_limit_max_requests", 20)
	vip.SetDefault("otp.rate_limit_window_seconds", 60)
	vip.SetDefault("admin.session_ttl_seconds", 900)

	// 2. Привязываем переменные окружения ЯВНО
	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS") // Для массива строк
	vip.BindEnv("redis.addr", "REDIS_ADDR")   // Для одиночной строки
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// Привязка для секции OTP
	vip.BindEnv("otp.code_length", "OTP_CODE_LENGTH")
	vip.BindEnv("otp.ttl_seconds", "OTP_TTL_SECONDS")
	vip.BindEnv("otp.resend_interval_seconds", "OTP_RESEND_INTERVAL_SECONDS")
	vip.BindEnv("otp.hourly_limit", "OTP_HOURLY_LIMIT")
	vip.BindEnv("otp.max_attempts", "OTP_MAX_ATTEMPTS")
	vip.BindEnv("otp.rate_limit_max_requests", "OTP_RATE_LIMIT_MAX_REQUESTS")
	vip.BindEnv("otp.rate_limit_window_seconds", "OTP_RATE_LIMIT_WINDOW_SECONDS")

	// Привязка для секции Settings
	vip.BindEnv("settings.encryption_key", "SETTINGS_ENCRYPTION_KEY")

	// Привязка для секции Admin
	vip.BindEnv("admin.operator_token", "ADMIN_OPERATOR_TOKEN")
	vip.BindEnv("admin.session_secret", "ADMIN_SESSION_SECRET")
	vip.BindEnv("admin.session_ttl_seconds", "ADMIN_SESSION_TTL_SECONDS")

	// Привязка для секции Twilio (фолбэк до первой версии настроек)
	vip.BindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	vip.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	vip.BindEnv("twilio.from_number", "TWILIO_FROM_NUMBER")
	vip.BindEnv("twilio.otp_template", "TWILIO_OTP_TEMPLATE")
	vip.BindEnv("twilio.dry_run", "TWILIO_DRY_RUN")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")

	// 3. Устанавливаем путь к файлу конфигурации
	if configPath != "" {
		vip.SetConfigFile(configPath)
		// 4. Пытаемся прочитать файл конфигурации (не страшно, если его нет, т.к. есть BindEnv)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 5. Анмаршалим конфигурацию (Viper объединит значения из файла и привязанных env vars)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Логирование конфигурации (только в debug режиме)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Port: %s", cfg.Database.Port)
		log.Printf("Database User: %s", cfg.Database.User)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Database SSLMode: %s", cfg.Database.SSLMode)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Redis Mode: %s", cfg.Redis.Mode)
		log.Printf("OTP Code Length: %d", cfg.OTP.CodeLength)
		log.Printf("OTP TTL Seconds: %d", cfg.OTP.TTLSeconds)
		log.Printf("OTP Hourly Limit: %d", cfg.OTP.HourlyLimit)
		log.Printf("Settings Encryption Key Set: %t", cfg.Settings.EncryptionKey != "")
		log.Printf("Admin Operator Token Set: %t", cfg.Admin.OperatorToken != "")
		log.Printf("Twilio Fallback Configured: %t", cfg.Twilio.AccountSID != "")
		log.Printf("Twilio Dry Run: %t", cfg.Twilio.DryRun)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	// 7. Проверка обязательных параметров
	if cfg.Settings.EncryptionKey == "" {
		return nil, fmt.Errorf("settings encryption key is required in config (check SETTINGS_ENCRYPTION_KEY env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Admin.SessionSecret == "" {
		return nil, fmt.Errorf("admin session secret is required in config (check ADMIN_SESSION_SECRET env var)")
	}
	if cfg.Admin.OperatorToken == "" {
		return nil, fmt.Errorf("admin operator token is required in config (check ADMIN_OPERATOR_TOKEN env var)")
	}

	// Пароль БД обязателен вне debug режима
	if os.Getenv("GIN_MODE") != "debug" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("database password is required in production mode (check DATABASE_PASSWORD env var)")
	}

	return &cfg, nil
}
