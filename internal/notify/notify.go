// Package notify отправляет письма через SendGrid и SMS через Twilio.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

// Config задаёт учётные данные почтового и SMS-провайдеров.
type Config struct {
	SendGridAPIKey   string
	FromEmail        string
	FromName         string
	Sandbox          bool
	BusinessEmail    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromPhone  string
}

type mailFunc func(msg *mail.SGMailV3) error

type smsFunc func(params *twilioApi.CreateMessageParams) error

// Dispatcher доставляет сообщения клиентам и владельцу бизнеса.
// Неподключённый канал превращает отправку в запись в журнал.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger
	mail   mailFunc
	sms    smsFunc
}

// NewDispatcher создаёт диспетчер с теми каналами, для которых заданы учётные данные.
func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{cfg: cfg, logger: logger}

	if cfg.SendGridAPIKey != "" {
		client := sendgrid.NewSendClient(cfg.SendGridAPIKey)
		d.mail = func(msg *mail.SGMailV3) error {
			resp, err := client.Send(msg)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
			}
			return nil
		}
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromPhone != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		})
		d.sms = func(params *twilioApi.CreateMessageParams) error {
			_, err := client.Api.CreateMessage(params)
			return err
		}
	}

	return d
}

// SendEmail отправляет письмо одному адресату.
func (d *Dispatcher) SendEmail(ctx context.Context, toName, toEmail, subject, body string) error {
	if toEmail == "" {
		return nil
	}
	if d.mail == nil {
		d.logger.Info("email channel disabled, message dropped",
			zap.String("to", toEmail), zap.String("subject", subject))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := mail.NewEmail(d.cfg.FromName, d.cfg.FromEmail)
	to := mail.NewEmail(toName, toEmail)
	msg := mail.NewSingleEmail(from, subject, to, body, renderHTML(body))

	if d.cfg.Sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}

	if err := d.mail(msg); err != nil {
		return fmt.Errorf("send email to %s: %w", toEmail, err)
	}
	return nil
}

// SendSMS отправляет SMS на указанный номер.
func (d *Dispatcher) SendSMS(ctx context.Context, phone, body string) error {
	if phone == "" {
		return nil
	}
	if d.sms == nil {
		d.logger.Info("sms channel disabled, message dropped", zap.String("to", phone))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(d.cfg.TwilioFromPhone)
	params.SetBody(body)

	if err := d.sms(params); err != nil {
		return fmt.Errorf("send sms to %s: %w", phone, err)
	}
	return nil
}

// NotifyBusiness отправляет письмо на служебный адрес бизнеса.
func (d *Dispatcher) NotifyBusiness(ctx context.Context, subject, body string) error {
	if d.cfg.BusinessEmail == "" {
		d.logger.Info("business email not set, message dropped", zap.String("subject", subject))
		return nil
	}
	return d.SendEmail(ctx, d.cfg.FromName, d.cfg.BusinessEmail, subject, body)
}

// NotifyCustomer доставляет сообщение клиенту по выбранному им каналу связи.
func (d *Dispatcher) NotifyCustomer(ctx context.Context, p *model.Profile, subject, body string) error {
	var errs []string
	if p.CommunicationPreference.WantsEmail() {
		if err := d.SendEmail(ctx, p.FullName(), p.Email, subject, body); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if p.CommunicationPreference.WantsSMS() {
		if err := d.SendSMS(ctx, p.Phone, subject+": "+body); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify customer %s: %s", p.ID, strings.Join(errs, "; "))
	}
	return nil
}

func renderHTML(body string) string {
	var b strings.Builder
	for _, para := range strings.Split(body, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
