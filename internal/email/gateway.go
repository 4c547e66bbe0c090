// Package email implements the outbound mail gateway (C5) that delivers
// verification codes. Grounded on original_source/src/service/EmailService.cpp:
// same SMTP-login-then-send shape and the 465/587-implies-TLS rule, translated
// from Poco's SMTPClientSession onto net/smtp, which is what the rest of the
// corpus reaches for plain SMTP delivery (no example repo carries a richer
// mail client, so stdlib is the grounded choice here — see DESIGN.md).
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/sirupsen/logrus"
)

// Config mirrors EmailService::init's parameter list.
type Config struct {
	SMTPServer string
	Port       int
	Username   string
	Password   string
	SenderName string
	Sender     string
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.SMTPServer, c.Port)
}

// usesTLS mirrors the original's useSSL_ = (port == 465 || port == 587).
func (c Config) usesTLS() bool {
	return c.Port == 465 || c.Port == 587
}

// Gateway sends verification-code notifications over SMTP.
type Gateway interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// SMTPGateway is the production Gateway.
type SMTPGateway struct {
	cfg    Config
	logger *logrus.Logger
}

// New builds a Gateway from cfg.
func New(cfg Config, logger *logrus.Logger) *SMTPGateway {
	return &SMTPGateway{cfg: cfg, logger: logger}
}

// Send delivers a plain-text message, authenticating with AUTH PLAIN
// (smtp.PlainAuth) when credentials are configured, following the
// original's "login, then authenticate if creds present" sequence.
func (g *SMTPGateway) Send(_ context.Context, recipient, subject, body string) error {
	msg := g.buildMessage(recipient, subject, body, "text/plain")

	var auth smtp.Auth
	if g.cfg.Username != "" && g.cfg.Password != "" {
		auth = smtp.PlainAuth("", g.cfg.Username, g.cfg.Password, g.cfg.SMTPServer)
	}

	var err error
	if g.cfg.usesTLS() {
		err = g.sendTLS(auth, recipient, msg)
	} else {
		err = smtp.SendMail(g.cfg.addr(), auth, g.cfg.Sender, []string{recipient}, msg)
	}

	if err != nil {
		g.logger.WithError(err).WithField("recipient", recipient).Error("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}

	g.logger.WithFields(logrus.Fields{"recipient": recipient, "subject": subject}).Info("email sent")
	return nil
}

func (g *SMTPGateway) sendTLS(auth smtp.Auth, recipient string, msg []byte) error {
	tlsCfg := &tls.Config{ServerName: g.cfg.SMTPServer}

	conn, err := tls.Dial("tcp", g.cfg.addr(), tlsCfg)
	if err != nil {
		return fmt.Errorf("dial smtp over tls: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, g.cfg.SMTPServer)
	if err != nil {
		return fmt.Errorf("new smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(g.cfg.Sender); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (g *SMTPGateway) buildMessage(recipient, subject, body, contentType string) []byte {
	from := g.cfg.Sender
	if g.cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", g.cfg.SenderName, g.cfg.Sender)
	}
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: %s; charset=UTF-8\r\n\r\n%s\r\n",
		from, recipient, subject, contentType, body,
	))
}
