package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/vethome-platform/internal/config"
	"github.com/wolfman30/vethome-platform/internal/notify"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// BuildNotifier picks Twilio for SMS and SendGrid, then SES, for email.
// Missing providers fall back to stubs that only log.
func BuildNotifier(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *notify.Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}

	var sms notify.SMSSender = notify.NewStubSMSSender(logger)
	smsProvider := "stub"
	if twilio := notify.NewTwilioSender(notify.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioFromNumber,
	}, logger); twilio != nil {
		sms, smsProvider = twilio, "twilio"
	}

	var email notify.EmailSender = notify.NewStubEmailSender(logger)
	emailProvider := "stub"
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		email, emailProvider = sg, "sendgrid"
	} else if awsCfg != nil && cfg.SESFromEmail != "" {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); ses != nil {
			email, emailProvider = ses, "ses"
		}
	}

	logger.Info("notification providers selected", "sms", smsProvider, "email", emailProvider)
	return notify.NewDispatcher(sms, email, logger)
}
