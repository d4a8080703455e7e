// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	HTTPServer              `yaml:"http_server"`
	RedisConnection         `yaml:"redis_connection"`
	Supabase                `yaml:"supabase"`
	Stripe                  `yaml:"stripe"`
	Cron                    `yaml:"cron"`
	Admin                   `yaml:"admin"`
	Membership              `yaml:"membership"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
	Scheduler               `yaml:"scheduler"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// Supabase настройки доступа к Supabase Auth (хранилищу идентичностей).
type Supabase struct {
	SupabaseURL    string `yaml:"url" env:"SUPABASE_URL"`
	ServiceRoleKey string `yaml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret      string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
}

// Stripe настройки платёжного провайдера.
type Stripe struct {
	StripeSecretKey     string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
}

// Cron секрет, которым планировщик подписывает вызов очистки.
type Cron struct {
	CronSecret string `yaml:"secret" env:"CRON_SECRET"`
}

// Admin список адресов администраторов.
type Admin struct {
	AdminEmails []string `yaml:"emails" env:"ADMIN_EMAILS" env-separator:","`
}

// Membership параметры политики реконсиляции членства.
type Membership struct {
	// RenewalBufferMonths — сколько месяцев добавляется сверх периода,
	// сообщённого провайдером при продлении.
	RenewalBufferMonths int `yaml:"renewal_buffer_months" env:"RENEWAL_BUFFER_MONTHS" env-default:"1"`
	// DisableRenewalBuffer отключает буфер: ноль в renewal_buffer_months
	// заменяется значением по умолчанию.
	DisableRenewalBuffer bool          `yaml:"disable_renewal_buffer" env:"DISABLE_RENEWAL_BUFFER"`
	FallbackPeriodDays   int           `yaml:"fallback_period_days" env-default:"30"`
	SweepConcurrency     int           `yaml:"sweep_concurrency" env-default:"4"`
	CacheTTL             time.Duration `yaml:"cache_ttl" env-default:"5m"`
}

// RabbitMQ настройки подключения к брокеру сообщений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// SMTP настройки почтового транспорта уведомлений.
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"password" env:"SMTP_PASSWORD"`
}

// Scheduler настройки встроенного планировщика очистки.
type Scheduler struct {
	SweepInterval time.Duration `yaml:"interval" env-default:"1h"`
}

// MustLoad функция для загрузки конфига, путь к файлу берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// Load читает конфиг из файла и переменных окружения.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

// RenewalBuffer возвращает фактическое число месяцев буфера продления.
func (c *Config) RenewalBuffer() int {
	if c.DisableRenewalBuffer || c.RenewalBufferMonths < 0 {
		return 0
	}
	return c.RenewalBufferMonths
}

// AdminEmailSet возвращает множество адресов администраторов в нижнем регистре.
func (c *Config) AdminEmailSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.AdminEmails))
	for _, e := range c.AdminEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Supabase:\n"+
			"  URL: %s\n"+
			"Membership:\n"+
			"  RenewalBuffer: %d\n"+
			"  SweepConcurrency: %d\n"+
			"Admins: %d\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.SupabaseURL,
		c.RenewalBuffer(),
		c.SweepConcurrency,
		len(c.AdminEmails),
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
