package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/api"
	"github.com/lalithlochan/courier/internal/config"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/mail"
	"github.com/lalithlochan/courier/internal/notify"
	"github.com/lalithlochan/courier/internal/sms"
)

// store is everything the gateway needs from persistence.
type store interface {
	api.Store
	notify.Store
	notify.TemplateStore
}

// newStore connects to Postgres, or falls back to the in-memory store
// when no database host is configured.
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store, func(), error) {
	if cfg.DBHost == "" {
		logger.Warn("DB_HOST not set, using in-memory store")
		return db.NewMemoryStore(), func() {}, nil
	}

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)
	return db.NewRepository(database, logger), database.Close, nil
}

func newMailer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (mail.Mailer, error) {
	switch cfg.MailTransport {
	case config.MailSES:
		m, err := mail.NewSESMailer(ctx, mail.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES mailer: %w", err)
		}
		return m, nil
	case config.MailSMTP:
		return mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger), nil
	default:
		return mail.NewLogMailer(logger), nil
	}
}

// smsConfig reads the gateway credentials and templates from the sms
// settings block.
func smsConfig(cfg *config.Config, settings config.Backends) (sms.SNSConfig, error) {
	block := settings[notify.BackendSMS]
	out := sms.SNSConfig{Region: cfg.SNSRegion}
	out.AccessKeyID, _ = block["access_key_id"].(string)
	out.AccessKeySecret, _ = block["access_key_secret"].(string)

	raw, ok := block["templates"]
	if !ok {
		return out, nil
	}
	templates, ok := raw.(map[string]any)
	if !ok {
		return out, fmt.Errorf("sms templates must be a mapping of template code to text")
	}
	out.Templates = make(map[string]string, len(templates))
	for code, body := range templates {
		text, ok := body.(string)
		if !ok {
			return out, fmt.Errorf("sms template %s must be a string", code)
		}
		out.Templates[code] = text
	}
	return out, nil
}

func newSMSGateway(ctx context.Context, cfg *config.Config, settings config.Backends, logger *zap.Logger) (sms.Gateway, error) {
	snsCfg, err := smsConfig(cfg, settings)
	if err != nil {
		return nil, err
	}
	gw, err := sms.NewSNSGateway(ctx, snsCfg, logger)
	if err != nil {
		return nil, err
	}
	return gw, nil
}
