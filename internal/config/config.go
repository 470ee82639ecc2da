// Пакет config: загрузка и валидация конфигурации консоли
// из переменных окружения с префиксом CONSOLE_.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервера консоли.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- REST-бэкенд ---

	// Базовый URL бэкенда (например, https://api.portline.lan)
	BackendURL string
	// Таймаут одного запроса к бэкенду
	BackendTimeout time.Duration
	// Путь к CA-сертификату бэкенда (опционально)
	BackendCACertPath string
	// Путь, по которому topologymetrics проверяет доступность бэкенда
	BackendHealthPath string

	// --- Представления списков ---

	// Размер страницы по умолчанию
	DefaultPageSize int
	// Максимально допустимый размер страницы
	MaxPageSize int

	// --- Сессии ---

	// Время жизни сессии без обращений
	SessionIdleTTL time.Duration
	// Максимальное число сессий в реестре
	MaxSessions int
	// Secure flag для cookie сессии (true для HTTPS)
	SessionCookieSecure bool

	// --- PostgreSQL (опционально, хранилище сессий) ---

	// Хост PostgreSQL; пустой хост означает хранилище в памяти
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Срок хранения состояния неактивной сессии в PostgreSQL
	StorageRetention time.Duration
	// Интервал очистки устаревших сессий
	StorageJanitorInterval time.Duration

	// --- Зависимости ---

	// Группа сервиса в topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CONSOLE_PORT: порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("CONSOLE_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CONSOLE_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CONSOLE_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, cfg.LogFormat, err = loadLogging()
	if err != nil {
		return nil, err
	}

	// --- REST-бэкенд ---

	cfg.BackendURL, cfg.BackendTimeout, cfg.BackendCACertPath, err = loadBackend()
	if err != nil {
		return nil, err
	}

	// CONSOLE_BACKEND_HEALTH_PATH: путь проверки доступности бэкенда (по умолчанию /docs)
	cfg.BackendHealthPath = getEnvDefault("CONSOLE_BACKEND_HEALTH_PATH", "/docs")
	if !strings.HasPrefix(cfg.BackendHealthPath, "/") {
		return nil, fmt.Errorf("CONSOLE_BACKEND_HEALTH_PATH: путь %q должен начинаться с /", cfg.BackendHealthPath)
	}

	// --- Представления списков ---

	// CONSOLE_MAX_PAGE_SIZE: максимальный размер страницы (по умолчанию 100)
	cfg.MaxPageSize, err = getEnvInt("CONSOLE_MAX_PAGE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("CONSOLE_MAX_PAGE_SIZE: %w", err)
	}
	if cfg.MaxPageSize < 1 {
		return nil, fmt.Errorf("CONSOLE_MAX_PAGE_SIZE: значение %d должно быть положительным", cfg.MaxPageSize)
	}

	// CONSOLE_DEFAULT_PAGE_SIZE: размер страницы по умолчанию (по умолчанию 10)
	cfg.DefaultPageSize, err = getEnvInt("CONSOLE_DEFAULT_PAGE_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("CONSOLE_DEFAULT_PAGE_SIZE: %w", err)
	}
	if cfg.DefaultPageSize < 1 || cfg.DefaultPageSize > cfg.MaxPageSize {
		return nil, fmt.Errorf("CONSOLE_DEFAULT_PAGE_SIZE: значение %d вне допустимого диапазона 1-%d",
			cfg.DefaultPageSize, cfg.MaxPageSize)
	}

	// --- Сессии ---

	// CONSOLE_SESSION_IDLE_TTL: время жизни сессии без обращений (по умолчанию 30m)
	cfg.SessionIdleTTL, err = getEnvDuration("CONSOLE_SESSION_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CONSOLE_SESSION_IDLE_TTL: %w", err)
	}
	if cfg.SessionIdleTTL <= 0 {
		return nil, fmt.Errorf("CONSOLE_SESSION_IDLE_TTL: значение должно быть положительным")
	}

	// CONSOLE_MAX_SESSIONS: размер реестра сессий (по умолчанию 1000)
	cfg.MaxSessions, err = getEnvInt("CONSOLE_MAX_SESSIONS", 1000)
	if err != nil {
		return nil, fmt.Errorf("CONSOLE_MAX_SESSIONS: %w", err)
	}
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("CONSOLE_MAX_SESSIONS: значение %d должно быть положительным", cfg.MaxSessions)
	}

	// CONSOLE_SESSION_COOKIE_SECURE: Secure flag для cookie (по умолчанию false)
	cfg.SessionCookieSecure, err = getEnvBool("CONSOLE_SESSION_COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("CONSOLE_SESSION_COOKIE_SECURE: %w", err)
	}

	// --- PostgreSQL ---

	// CONSOLE_DB_HOST: опциональный; без него сессии хранятся в памяти
	cfg.DBHost = getEnvDefault("CONSOLE_DB_HOST", "")
	if cfg.DBHost != "" {
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	}

	// --- Зависимости ---

	// CONSOLE_DEPHEALTH_GROUP: группа сервиса (по умолчанию portline)
	cfg.DephealthGroup = getEnvDefault("CONSOLE_DEPHEALTH_GROUP", "portline")

	// CONSOLE_DEPHEALTH_CHECK_INTERVAL: интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CONSOLE_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CONSOLE_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// CONSOLE_SHUTDOWN_TIMEOUT: таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CONSOLE_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CONSOLE_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase читает параметры PostgreSQL. Вызывается, только если задан CONSOLE_DB_HOST.
func loadDatabase(cfg *Config) error {
	var err error

	// CONSOLE_DB_PORT: порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CONSOLE_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("CONSOLE_DB_PORT: %w", err)
	}

	// CONSOLE_DB_NAME, CONSOLE_DB_USER, CONSOLE_DB_PASSWORD: обязательные при заданном хосте
	if cfg.DBName, err = getEnvRequired("CONSOLE_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("CONSOLE_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("CONSOLE_DB_PASSWORD"); err != nil {
		return err
	}

	// CONSOLE_DB_SSL_MODE: режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CONSOLE_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("CONSOLE_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// CONSOLE_STORAGE_RETENTION: срок хранения неактивной сессии (по умолчанию 168h)
	cfg.StorageRetention, err = getEnvDuration("CONSOLE_STORAGE_RETENTION", 7*24*time.Hour)
	if err != nil {
		return fmt.Errorf("CONSOLE_STORAGE_RETENTION: %w", err)
	}
	if cfg.StorageRetention < cfg.SessionIdleTTL {
		return fmt.Errorf("CONSOLE_STORAGE_RETENTION: значение %s меньше CONSOLE_SESSION_IDLE_TTL (%s)",
			cfg.StorageRetention, cfg.SessionIdleTTL)
	}

	// CONSOLE_STORAGE_JANITOR_INTERVAL: интервал очистки (по умолчанию 1h)
	cfg.StorageJanitorInterval, err = getEnvDuration("CONSOLE_STORAGE_JANITOR_INTERVAL", time.Hour)
	if err != nil {
		return fmt.Errorf("CONSOLE_STORAGE_JANITOR_INTERVAL: %w", err)
	}
	if cfg.StorageJanitorInterval <= 0 {
		return fmt.Errorf("CONSOLE_STORAGE_JANITOR_INTERVAL: значение должно быть положительным")
	}
	return nil
}

// UseDatabase сообщает, настроено ли хранилище сессий в PostgreSQL.
func (c *Config) UseDatabase() bool {
	return c.DBHost != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (postgres://) для лейблов topologymetrics.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// ClientConfig: конфигурация CLI (consolectl).
type ClientConfig struct {
	// Базовый URL бэкенда
	BackendURL string
	// Таймаут одного запроса к бэкенду
	BackendTimeout time.Duration
	// Путь к CA-сертификату бэкенда (опционально)
	BackendCACertPath string
	// Файл локального хранилища (токен, роль, корзина)
	StorePath string
	// Уровень логирования
	LogLevel slog.Level
	// Формат логов
	LogFormat string
}

// LoadClient загружает конфигурацию CLI. Флаги командной строки
// применяются поверх неё в пакете cli.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	var err error

	cfg.LogLevel, cfg.LogFormat, err = loadLogging()
	if err != nil {
		return nil, err
	}
	// CLI пишет логи в текстовом виде, если формат не задан явно.
	if os.Getenv("CONSOLE_LOG_FORMAT") == "" {
		cfg.LogFormat = "text"
	}

	cfg.BackendURL, cfg.BackendTimeout, cfg.BackendCACertPath, err = loadBackend()
	if err != nil {
		return nil, err
	}

	// CONSOLE_STORE_PATH: файл хранилища CLI (по умолчанию ~/.config/portline/console.json)
	defaultStore := "console.json"
	if dir, err := os.UserConfigDir(); err == nil {
		defaultStore = filepath.Join(dir, "portline", "console.json")
	}
	cfg.StorePath = getEnvDefault("CONSOLE_STORE_PATH", defaultStore)

	return cfg, nil
}

// loadLogging читает CONSOLE_LOG_LEVEL и CONSOLE_LOG_FORMAT.
func loadLogging() (slog.Level, string, error) {
	// CONSOLE_LOG_LEVEL: уровень логирования (по умолчанию info)
	level, err := parseLogLevel(getEnvDefault("CONSOLE_LOG_LEVEL", "info"))
	if err != nil {
		return level, "", fmt.Errorf("CONSOLE_LOG_LEVEL: %w", err)
	}

	// CONSOLE_LOG_FORMAT: формат логов (по умолчанию json)
	format := getEnvDefault("CONSOLE_LOG_FORMAT", "json")
	if format != "json" && format != "text" {
		return level, "", fmt.Errorf("CONSOLE_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", format)
	}
	return level, format, nil
}

// loadBackend читает параметры REST-бэкенда.
func loadBackend() (string, time.Duration, string, error) {
	// CONSOLE_BACKEND_URL: обязательный
	backendURL, err := getEnvRequired("CONSOLE_BACKEND_URL")
	if err != nil {
		return "", 0, "", err
	}
	// Убираем trailing slash
	backendURL = strings.TrimRight(backendURL, "/")
	u, err := url.Parse(backendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", 0, "", fmt.Errorf("CONSOLE_BACKEND_URL: ожидается абсолютный http(s) URL, получено %q", backendURL)
	}

	// CONSOLE_BACKEND_TIMEOUT: таймаут запроса к бэкенду (по умолчанию 15s)
	timeout, err := getEnvDuration("CONSOLE_BACKEND_TIMEOUT", 15*time.Second)
	if err != nil {
		return "", 0, "", fmt.Errorf("CONSOLE_BACKEND_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return "", 0, "", fmt.Errorf("CONSOLE_BACKEND_TIMEOUT: значение должно быть положительным")
	}

	// CONSOLE_BACKEND_CA_CERT_PATH: путь к CA-сертификату (опционально)
	caCertPath := getEnvDefault("CONSOLE_BACKEND_CA_CERT_PATH", "")

	return backendURL, timeout, caCertPath, nil
}

// SetupLogger настраивает глобальный slog-логгер.
func SetupLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
