package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/brandon/mailsync/internal/config"
)

// EmailChannel mails a short summary to the configured recipients.
type EmailChannel struct {
	from string
	to   []string
	send func(m ...*gomail.Message) error
}

func NewEmailChannel(cfg config.NotifyConfig) *EmailChannel {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	return &EmailChannel{
		from: cfg.EmailFrom,
		to:   cfg.EmailTo,
		send: d.DialAndSend,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, n *Notification) error {
	m := c.message(n)

	// gomail has no context support; give up waiting when ctx ends.
	done := make(chan error, 1)
	go func() {
		done <- c.send(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("error sending email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *EmailChannel) message(n *Notification) *gomail.Message {
	doc := n.Document

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", c.to...)
	m.SetHeader("Subject", summary(doc))
	m.SetHeader("X-Delivery-ID", n.DeliveryID)

	var body strings.Builder
	fmt.Fprintf(&body, "<p><b>Account:</b> %s<br>", html.EscapeString(doc.AccountID))
	fmt.Fprintf(&body, "<b>From:</b> %s<br>", html.EscapeString(doc.From))
	fmt.Fprintf(&body, "<b>Subject:</b> %s<br>", html.EscapeString(doc.Subject))
	fmt.Fprintf(&body, "<b>Date:</b> %s</p>", doc.Date.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&body, "<pre>%s</pre>", html.EscapeString(doc.BodyText))
	m.SetBody("text/html", body.String())

	return m
}
