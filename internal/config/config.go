package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Mail transports.
const (
	MailSES  = "ses"
	MailSMTP = "smtp"
	MailLog  = "log"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database. Empty DBHost runs the service on the in-memory store.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis backs the websocket fan-out and the template cache. Empty
	// RedisHost disables both.
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	AWSRegion    string
	SESFromEmail string
	SNSRegion    string // AWS region for SNS (SMS)

	MailTransport string // ses, smtp or log

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Outbound HTTP (DingTalk)
	HTTPTimeout        time.Duration
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	DingTalkOAPIURL    string
	DingTalkAPIURL     string

	TemplateCacheTTL time.Duration

	// SettingsFile is the YAML file holding per-backend settings blocks.
	SettingsFile string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBPort:    5432,
		DBUser:    "courier",
		DBName:    "courier",
		DBSSLMode: "disable",

		RedisPort: 6379,

		AWSRegion:     "us-east-1",
		SESFromEmail:  "noreply@courier.local",
		MailTransport: MailLog,

		SMTPHost: "localhost",
		SMTPPort: 587,
		SMTPFrom: "noreply@courier.local",

		HTTPTimeout:        10 * time.Second,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,

		TemplateCacheTTL: 5 * time.Minute,
	}

	var err error
	if cfg.Port, err = envInt("PORT", cfg.Port); err != nil {
		return nil, err
	}
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Env = envString("ENV", cfg.Env)

	// Database config
	cfg.DBHost = envString("DB_HOST", cfg.DBHost)
	if cfg.DBPort, err = envInt("DB_PORT", cfg.DBPort); err != nil {
		return nil, err
	}
	cfg.DBUser = envString("DB_USER", cfg.DBUser)
	cfg.DBPassword = envString("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = envString("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = envString("DB_SSLMODE", cfg.DBSSLMode)

	// Redis config
	cfg.RedisHost = envString("REDIS_HOST", cfg.RedisHost)
	if cfg.RedisPort, err = envInt("REDIS_PORT", cfg.RedisPort); err != nil {
		return nil, err
	}
	cfg.RedisPassword = envString("REDIS_PASSWORD", cfg.RedisPassword)
	if cfg.RedisDB, err = envInt("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}

	cfg.AWSRegion = envString("AWS_REGION", cfg.AWSRegion)
	cfg.SESFromEmail = envString("SES_FROM_EMAIL", cfg.SESFromEmail)
	cfg.SNSRegion = envString("SNS_REGION", cfg.AWSRegion)

	cfg.MailTransport = envString("MAIL_TRANSPORT", cfg.MailTransport)
	switch cfg.MailTransport {
	case MailSES, MailSMTP, MailLog:
	default:
		return nil, fmt.Errorf("invalid MAIL_TRANSPORT %q: want ses, smtp or log", cfg.MailTransport)
	}

	cfg.SMTPHost = envString("SMTP_HOST", cfg.SMTPHost)
	if cfg.SMTPPort, err = envInt("SMTP_PORT", cfg.SMTPPort); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = envString("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = envString("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = envString("SMTP_FROM", cfg.SMTPFrom)

	if cfg.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if v := os.Getenv("BREAKER_MAX_FAILURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid BREAKER_MAX_FAILURES: %q", v)
		}
		cfg.BreakerMaxFailures = uint32(n)
	}
	if cfg.BreakerTimeout, err = envDuration("BREAKER_TIMEOUT", cfg.BreakerTimeout); err != nil {
		return nil, err
	}
	cfg.DingTalkOAPIURL = envString("DINGTALK_OAPI_URL", cfg.DingTalkOAPIURL)
	cfg.DingTalkAPIURL = envString("DINGTALK_API_URL", cfg.DingTalkAPIURL)

	if cfg.TemplateCacheTTL, err = envDuration("TEMPLATE_CACHE_TTL", cfg.TemplateCacheTTL); err != nil {
		return nil, err
	}
	cfg.SettingsFile = envString("NOTIFY_SETTINGS_FILE", cfg.SettingsFile)

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("30s") or plain seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
