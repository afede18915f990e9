package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodcart/internal/domain/order"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

var _ order.Notifier = (*SMTPNotifier)(nil)

// SMTPNotifier mails notifications through a relay.
type SMTPNotifier struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send SendFunc
	now  func() time.Time
}

// NewSMTPNotifier validates cfg and returns an SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	n := &SMTPNotifier{cfg: cfg, send: smtp.SendMail, now: time.Now}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n, nil
}

func (n *SMTPNotifier) NotifyOrderCreated(ctx context.Context, o *order.Order, to order.Recipient) error {
	msg, err := OrderCreated(o, to)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *SMTPNotifier) NotifyStatusChanged(ctx context.Context, o *order.Order, to order.Recipient, status order.Status) error {
	msg, err := StatusChanged(o, to, status)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

// deliver sends msg, giving up when ctx is done. smtp.SendMail has no
// context support, so an abandoned send finishes in the background.
func (n *SMTPNotifier) deliver(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("recipient has no email")
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	raw := n.format(msg)

	done := make(chan error, 1)
	go func() {
		done <- n.send(addr, n.auth, n.cfg.From, []string{msg.To}, raw)
	}()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "send mail to %s", msg.To)
		}
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "send mail")
	}
}

func (n *SMTPNotifier) format(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.Bytes()
}
