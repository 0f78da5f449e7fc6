package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"speaktoheaven/logger"
	"speaktoheaven/models"
)

// Notifier carries best-effort side messages. Failures are logged, never
// returned to the chat caller.
type Notifier interface {
	HandoffMessage(ctx context.Context, u models.User, p models.Persona, t models.Takeover, msg models.Message)
	CreditsPurchased(ctx context.Context, u models.User, credits int)
}

type NopNotifier struct{}

func (NopNotifier) HandoffMessage(context.Context, models.User, models.Persona, models.Takeover, models.Message) {
}
func (NopNotifier) CreditsPurchased(context.Context, models.User, int) {}

type AlertConfig struct {
	SendgridAPIKey string
	FromEmail      string
	AlertEmail     string
	SlackWebhook   string
}

// AlertNotifier pages operators (Slack + email) when a user writes into a
// conversation they hold, and emails purchase receipts.
type AlertNotifier struct {
	log   *logger.Logger
	cfg   AlertConfig
	slack *SlackClient
	mail  *sendgrid.Client
}

func NewAlertNotifier(log *logger.Logger, cfg AlertConfig) *AlertNotifier {
	n := &AlertNotifier{
		log:   log.With("service", "AlertNotifier"),
		cfg:   cfg,
		slack: NewSlackClient(log, cfg.SlackWebhook),
	}
	if cfg.SendgridAPIKey != "" && cfg.FromEmail != "" {
		n.mail = sendgrid.NewSendClient(cfg.SendgridAPIKey)
	}
	return n
}

func (n *AlertNotifier) HandoffMessage(ctx context.Context, u models.User, p models.Persona, t models.Takeover, msg models.Message) {
	kind, value := models.ParseBody(msg.Body)
	if kind != models.PayloadText {
		value = "[" + string(kind) + "] " + value
	}
	text := fmt.Sprintf("Message waiting for %s\n\nPersona: %s\nUser: %s\nTime: %s\n\n%s",
		t.OperatorName,
		p.Name,
		u.ID,
		msg.CreatedAt.Format(time.RFC3339),
		value,
	)
	if err := n.slack.Post(ctx, text); err != nil {
		n.log.Warn("Slack handoff alert failed", "error", err)
	}

	if n.mail == nil || n.cfg.AlertEmail == "" {
		return
	}
	subject := fmt.Sprintf("[TAKEOVER] New message for %s", p.Name)
	n.send(n.cfg.AlertEmail, "Operators", subject, text)
}

func (n *AlertNotifier) CreditsPurchased(ctx context.Context, u models.User, credits int) {
	if n.mail == nil || u.Email == "" {
		return
	}
	subject := fmt.Sprintf("%d credits added to your account", credits)
	body := fmt.Sprintf(`Thank you for your purchase.

%d credits were added to your account. Your balance is now %d.

Each credit lets you send one message once your free messages are used up.`, credits, u.Credits)
	n.send(u.Email, "", subject, body)
}

func (n *AlertNotifier) send(toEmail, toName, subject, plain string) {
	from := mail.NewEmail("Speak to Heaven", n.cfg.FromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plain, plain)

	response, err := n.mail.Send(message)
	if err != nil {
		n.log.Warn("Email send failed", "subject", subject, "error", err)
		return
	}
	if response.StatusCode >= 400 {
		n.log.Warn("Email rejected", "subject", subject, "status", response.StatusCode)
		return
	}
	n.log.Debug("Email sent", "subject", subject, "status", response.StatusCode)
}
