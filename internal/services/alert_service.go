package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strings"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"
)

// Alert is an operational notice about a payment that needs a human.
type Alert struct {
	TransactionNumber string
	Operator          string
	Amount            string
	Reason            string
	At                time.Time
}

type AlertService interface {
	ManualReconciliation(ctx context.Context, alert Alert) error
}

// SMTPConfig holds the mail relay used for operational alerts.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Recipients []string
	UseSSL     bool // implicit TLS, usually 465
	RequireTLS bool // fail when STARTTLS is unavailable
	AppName    string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && len(c.Recipients) > 0
}

type alertData struct {
	Title   string
	AppName string
	Alert   Alert
	When    string
}

const alertHTMLTemplate = `<!doctype html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family:Helvetica,Arial,sans-serif;color:#0f172a">
  <h2>{{.Title}}</h2>
  <table cellpadding="6" style="border-collapse:collapse">
    <tr><td><b>Transaction</b></td><td>{{.Alert.TransactionNumber}}</td></tr>
    <tr><td><b>Operator</b></td><td>{{.Alert.Operator}}</td></tr>
    <tr><td><b>Amount</b></td><td>{{.Alert.Amount}}</td></tr>
    <tr><td><b>Reason</b></td><td>{{.Alert.Reason}}</td></tr>
    <tr><td><b>Flagged at</b></td><td>{{.When}}</td></tr>
  </table>
  <p>Resolve with <code>passctl reconcile retry {{.Alert.TransactionNumber}}</code>.</p>
  <p style="color:#64748b;font-size:12px">{{.AppName}}</p>
</body>
</html>`

const alertTextTemplate = `{{.Title}}

Transaction: {{.Alert.TransactionNumber}}
Operator:    {{.Alert.Operator}}
Amount:      {{.Alert.Amount}}
Reason:      {{.Alert.Reason}}
Flagged at:  {{.When}}

Resolve with: passctl reconcile retry {{.Alert.TransactionNumber}}
-- {{.AppName}}
`

type smtpAlertService struct {
	cfg     SMTPConfig
	htmlTpl *template.Template
	textTpl *texttemplate.Template
	log     *zap.Logger
}

// NewAlertService returns an SMTP-backed alerter, or a log-only one when no
// relay is configured.
func NewAlertService(cfg SMTPConfig, log *zap.Logger) AlertService {
	log = log.Named("alerts")
	if !cfg.Enabled() {
		return &logAlertService{log: log}
	}
	return &smtpAlertService{
		cfg:     cfg,
		htmlTpl: template.Must(template.New("alertHTML").Parse(alertHTMLTemplate)),
		textTpl: texttemplate.Must(texttemplate.New("alertText").Parse(alertTextTemplate)),
		log:     log,
	}
}

func (s *smtpAlertService) ManualReconciliation(ctx context.Context, alert Alert) error {
	subject := fmt.Sprintf("[%s] payment %s needs manual reconciliation", s.cfg.AppName, alert.TransactionNumber)
	data := alertData{
		Title:   "Payment needs manual reconciliation",
		AppName: s.cfg.AppName,
		Alert:   alert,
		When:    alert.At.Format(time.RFC3339),
	}
	var hb, tb bytes.Buffer
	if err := s.htmlTpl.Execute(&hb, data); err != nil {
		return err
	}
	if err := s.textTpl.Execute(&tb, data); err != nil {
		return err
	}
	if err := s.send(ctx, subject, hb.String(), tb.String()); err != nil {
		s.log.Error("alert mail failed", zap.String("transaction_number", alert.TransactionNumber), zap.Error(err))
		return err
	}
	return nil
}

func (s *smtpAlertService) buildMessage(subject, htmlBody, textBody string) []byte {
	boundary := fmt.Sprintf("alt_%d", time.Now().UnixNano())
	var msg bytes.Buffer
	write := func(format string, a ...any) { _, _ = fmt.Fprintf(&msg, format, a...) }

	write("From: %s\r\n", s.fromHeader())
	write("To: %s\r\n", strings.Join(s.cfg.Recipients, ", "))
	write("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	write("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	write("--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, textBody)
	write("--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, htmlBody)
	write("--%s--\r\n", boundary)
	return msg.Bytes()
}

func (s *smtpAlertService) fromHeader() string {
	name := strings.TrimSpace(s.cfg.FromName)
	if name == "" {
		return s.cfg.From
	}
	return fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("utf-8", name), s.cfg.From)
}

func (s *smtpAlertService) send(ctx context.Context, subject, htmlBody, textBody string) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var conn net.Conn
	var err error
	if s.cfg.UseSSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Quit()

	if !s.cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err = c.StartTLS(tlsCfg); err != nil {
				return err
			}
		} else if s.cfg.RequireTLS {
			return fmt.Errorf("smtp server %s does not support STARTTLS", s.cfg.Host)
		}
	}

	if s.cfg.Username != "" {
		if err = c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return err
		}
	}
	if err = c.Mail(s.cfg.From); err != nil {
		return err
	}
	for _, rcpt := range s.cfg.Recipients {
		if err = c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(s.buildMessage(subject, htmlBody, textBody)); err != nil {
		return err
	}
	return w.Close()
}

type logAlertService struct {
	log *zap.Logger
}

func (s *logAlertService) ManualReconciliation(_ context.Context, alert Alert) error {
	s.log.Warn("payment needs manual reconciliation",
		zap.String("transaction_number", alert.TransactionNumber),
		zap.String("operator", alert.Operator),
		zap.String("amount", alert.Amount),
		zap.String("reason", alert.Reason))
	return nil
}
