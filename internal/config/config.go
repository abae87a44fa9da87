// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек всех процессов CRM.
type Config struct {
	Env                     string               `yaml:"env"`
	StorageConnectionString string               `yaml:"storage_connection_string"`
	MigrationsPath          string               `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	SMTP                    `yaml:"smtp"`
	RabbitMQ                `yaml:"rabbitmq"`
	Telegram                `yaml:"telegram"`
	Renewal                 `yaml:"renewal"`
	Tiers                   map[string]TierGroup `yaml:"tiers"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// SMTP структура с настройками почтового транспорта.
// ContractPath — путь к PDF договора, который прикладывается
// к приветственным письмам платных тарифов.
type SMTP struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     string `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPass     string `yaml:"smtp_pass"`
	ContractPath string `yaml:"contract_path"`
}

// RabbitMQ структура с настройками подключения к брокеру уведомлений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries" env-default:"10"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay" env-default:"3s"`
}

// Telegram структура с настройками бота и цикла сверки доступов.
type Telegram struct {
	BotToken      string        `yaml:"bot_token"`
	APIBaseURL    string        `yaml:"api_base_url" env-default:"https://api.telegram.org"`
	PollTimeout   time.Duration `yaml:"poll_timeout" env-default:"30s"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1h"`
	FallbackTier  string        `yaml:"fallback_tier" env-default:"Leads"`
}

// Renewal структура с настройками напоминаний о продлении подписки.
// LeadDays — за сколько дней до конца вигенции отправлять напоминание.
type Renewal struct {
	CheckInterval time.Duration `yaml:"check_interval" env-default:"12h"`
	LeadDays      []int         `yaml:"lead_days"`
}

// TierGroup описывает привязку тарифа (carteira) к группе Telegram:
// ссылка-приглашение для выдачи доступа и chat_id для удаления из группы.
type TierGroup struct {
	InviteLink string `yaml:"invite_link"`
	ChatID     int64  `yaml:"chat_id"`
}

// MustLoad функция для загрузки конфига, путь берется из переменной окружения CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	if len(cfg.Renewal.LeadDays) == 0 {
		cfg.Renewal.LeadDays = []int{30, 15, 7}
	}
	return &cfg
}
