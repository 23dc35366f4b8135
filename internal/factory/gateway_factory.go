package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/gmail"
	"github.com/mikey/llm-email-responder/internal/adapters/smtp"
	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
)

// GatewayFactory creates the mail gateway
type GatewayFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewGatewayFactory creates a new gateway factory
func NewGatewayFactory(cfg *config.Config, logger *zap.Logger) *GatewayFactory {
	return &GatewayFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGateway creates the gateway named by mail.provider. An SMTP gateway
// is returned unstarted.
func (f *GatewayFactory) CreateGateway(ctx context.Context) (core.MailGateway, error) {
	mailCfg := f.cfg.GetMail()
	logger := f.logger.With(zap.String("mail_provider", mailCfg.Provider))

	switch mailCfg.Provider {
	case "gmail":
		gmailCfg := f.cfg.GetGmail()
		svc, err := gmail.NewService(ctx, gmailCfg.CredentialsFile, gmailCfg.TokenFile, f.logger)
		if err != nil {
			return nil, err
		}
		return gmail.New(svc, gmail.Options{
			Query:          gmailCfg.Query,
			ProcessedLabel: gmailCfg.ProcessedLabel,
			From:           mailCfg.Address,
		}, logger), nil
	case "smtp":
		smtpCfg := f.cfg.GetSMTP()
		if mailCfg.Address == "" {
			return nil, fmt.Errorf("mail.address is required for the smtp provider")
		}
		return smtp.New(smtp.Options{
			ListenAddress:   smtpCfg.ListenAddress,
			Domain:          smtpCfg.Domain,
			QueueSize:       smtpCfg.QueueSize,
			MaxMessageBytes: smtpCfg.MaxMessageBytes,
			RelayAddress:    smtpCfg.RelayAddress,
			Username:        smtpCfg.Username,
			Password:        smtpCfg.Password,
			From:            mailCfg.Address,
			DialTimeout:     f.cfg.GetTimeouts().Mail,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", mailCfg.Provider)
	}
}
