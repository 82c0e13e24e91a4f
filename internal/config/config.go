// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
// Конфигурация валидируется сразу при загрузке (fail fast).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища учётных данных.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Алгоритмы хэширования паролей.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// MinSecretLen — минимальная длина секрета подписи (байты).
const MinSecretLen = 32

// ErrInvalidConfig — конфигурация не прошла валидацию.
var ErrInvalidConfig = errors.New("invalid config")

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Password PasswordConfig `yaml:"password"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Mail     MailConfig     `yaml:"mail"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Janitor  JanitorConfig  `yaml:"janitor"`
}

// HTTPConfig — сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host              string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port              string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	OpsPort           string        `yaml:"ops_port" env:"HTTP_OPS_PORT" env-default:"8081"`
	BasePath          string        `yaml:"base_path" env:"HTTP_BASE_PATH"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s"`
}

// Addr возвращает адрес API в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// OpsAddr возвращает адрес служебного сервера (/livez, /healthz, /metrics).
func (h HTTPConfig) OpsAddr() string {
	return net.JoinHostPort(h.Host, h.OpsPort)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
// Секреты access и refresh обязаны различаться.
type AuthConfig struct {
	AccessSecret      string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET" env-required:"true"`
	RefreshSecret     string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET" env-required:"true"`
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL   time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	CustomTokenTTL    time.Duration `yaml:"custom_token_ttl" env:"CUSTOM_TOKEN_TTL" env-default:"1h"`
	CustomTokenMaxTTL time.Duration `yaml:"custom_token_max_ttl" env:"CUSTOM_TOKEN_MAX_TTL" env-default:"24h"`
	Issuer            string        `yaml:"issuer" env:"ISSUER" env-default:"auth-service"`
	Audience          []string      `yaml:"audience" env:"AUDIENCE" env-default:"api"`
	Leeway            time.Duration `yaml:"leeway" env:"LEEWAY" env-default:"5s"`
	ResetTokenTTL     time.Duration `yaml:"reset_token_ttl" env:"RESET_TOKEN_TTL" env-default:"1h"`
	VerifyTokenTTL    time.Duration `yaml:"verify_token_ttl" env:"VERIFY_TOKEN_TTL" env-default:"24h"`
}

// PasswordConfig — выбор и параметры хэширования паролей.
type PasswordConfig struct {
	Hasher     string `yaml:"hasher" env:"PASSWORD_HASHER" env-default:"bcrypt"`
	BcryptCost int    `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"12"`
}

// StorageConfig — драйвер и строка подключения хранилища.
// Для sqlite URL — путь к файлу, для memory не используется.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	URL    string `yaml:"url" env:"DATABASE_URL"`
}

// RedisConfig — кэш использованных refresh-токенов (опционально).
type RedisConfig struct {
	URL    string `yaml:"url" env:"REDIS_URL"`
	Prefix string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"auth:rt:"`
}

// MailConfig — параметры SMTP. Пустой Host включает режим логирования писем.
type MailConfig struct {
	Host        string        `yaml:"host" env:"SMTP_HOST"`
	Port        int           `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username    string        `yaml:"username" env:"SMTP_USERNAME"`
	Password    string        `yaml:"password" env:"SMTP_PASSWORD"`
	From        string        `yaml:"from" env:"SMTP_FROM"`
	BaseURL     string        `yaml:"base_url" env:"APP_BASE_URL" env-default:"http://localhost:3000"`
	SendTimeout time.Duration `yaml:"send_timeout" env:"SMTP_SEND_TIMEOUT" env-default:"5s"`
}

// Configured сообщает, задан ли SMTP-сервер.
func (m MailConfig) Configured() bool {
	return m.Host != ""
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Request  time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"5s"`
	Store    time.Duration `yaml:"store" env:"STORE_TIMEOUT" env-default:"3s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// JanitorConfig — периодическая очистка просроченных refresh-токенов.
type JanitorConfig struct {
	Period time.Duration `yaml:"period" env:"JANITOR_PERIOD" env-default:"30m"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML,
// затем валидируем результат.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}

// Validate проверяет согласованность значений. Все найденные проблемы
// возвращаются одной ошибкой, обёрнутой в ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string

	problems = append(problems, c.Auth.problems()...)

	switch c.Password.Hasher {
	case HasherBcrypt:
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			problems = append(problems, "password.bcrypt_cost must be in [4, 31]")
		}
	case HasherArgon2id:
	default:
		problems = append(problems, fmt.Sprintf("password.hasher %q is not supported", c.Password.Hasher))
	}

	switch c.Storage.Driver {
	case DriverPostgres, DriverSQLite, DriverMongo:
		if strings.TrimSpace(c.Storage.URL) == "" {
			problems = append(problems, fmt.Sprintf("storage.url is required for driver %q", c.Storage.Driver))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not supported", c.Storage.Driver))
	}

	if c.Mail.Configured() {
		if c.Mail.From == "" {
			problems = append(problems, "mail.from is required when mail.host is set")
		}
		if c.Mail.Port <= 0 {
			problems = append(problems, "mail.port must be positive")
		}
	}
	if c.Mail.SendTimeout <= 0 {
		problems = append(problems, "mail.send_timeout must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

// Validate проверяет только параметры токенов. Используется движком токенов
// при конструировании вне полной загрузки конфигурации.
func (a AuthConfig) Validate() error {
	if problems := a.problems(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

func (a AuthConfig) problems() []string {
	var problems []string

	if a.AccessSecret == "" {
		problems = append(problems, "auth.access_secret is required")
	} else if len(a.AccessSecret) < MinSecretLen {
		problems = append(problems, fmt.Sprintf("auth.access_secret must be at least %d bytes", MinSecretLen))
	}

	if a.RefreshSecret == "" {
		problems = append(problems, "auth.refresh_secret is required")
	} else if len(a.RefreshSecret) < MinSecretLen {
		problems = append(problems, fmt.Sprintf("auth.refresh_secret must be at least %d bytes", MinSecretLen))
	}

	if a.AccessSecret != "" && a.AccessSecret == a.RefreshSecret {
		problems = append(problems, "auth.access_secret and auth.refresh_secret must differ")
	}

	ttls := []struct {
		name string
		v    time.Duration
	}{
		{"auth.access_token_ttl", a.AccessTokenTTL},
		{"auth.refresh_token_ttl", a.RefreshTokenTTL},
		{"auth.custom_token_ttl", a.CustomTokenTTL},
		{"auth.custom_token_max_ttl", a.CustomTokenMaxTTL},
		{"auth.reset_token_ttl", a.ResetTokenTTL},
		{"auth.verify_token_ttl", a.VerifyTokenTTL},
	}
	for _, ttl := range ttls {
		if ttl.v <= 0 {
			problems = append(problems, ttl.name+" must be positive")
		}
	}

	if a.AccessTokenTTL > 0 && a.RefreshTokenTTL > 0 && a.RefreshTokenTTL <= a.AccessTokenTTL {
		problems = append(problems, "auth.refresh_token_ttl must be longer than auth.access_token_ttl")
	}

	if a.CustomTokenTTL > a.CustomTokenMaxTTL {
		problems = append(problems, "auth.custom_token_ttl must not exceed auth.custom_token_max_ttl")
	}

	if a.Leeway < 0 {
		problems = append(problems, "auth.leeway must not be negative")
	}

	if a.Issuer == "" {
		problems = append(problems, "auth.issuer is required")
	}

	return problems
}
