package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hairbuy/intake/internal/store"
)

// SMTPConfig addresses the mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails staff about new applications.
type EmailNotifier struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send sendFunc
	now  func() time.Time
}

// NewEmailNotifier builds a notifier sending through cfg. Authentication is
// used only when a username is configured.
func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailNotifier{cfg: cfg, auth: auth, send: smtp.SendMail, now: time.Now}
}

func (e *EmailNotifier) Name() string { return "email" }

// Notify sends one message to every configured recipient. net/smtp has no
// context support, so a cancelled ctx abandons the wait but not the send.
func (e *EmailNotifier) Notify(ctx context.Context, ev Event) error {
	if len(e.cfg.To) == 0 {
		return fmt.Errorf("no email recipients: %w", ErrPermanent)
	}
	msg := e.message(ev)
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))

	done := make(chan error, 1)
	go func() { done <- e.send(addr, e.auth, e.cfg.From, e.cfg.To, msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *EmailNotifier) message(ev Event) []byte {
	a := ev.Application
	subject := fmt.Sprintf("Новая заявка #%d", a.ID)

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(ApplicationText(a), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

// ApplicationText is the plain-text summary used by channels without markup.
func ApplicationText(a store.Application) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Заявка #%d от %s\n\n", a.ID, a.CreatedAt.Format("02.01.2006 15:04"))
	fmt.Fprintf(&b, "Имя: %s\n", a.Name)
	fmt.Fprintf(&b, "Телефон: %s\n", a.Phone)
	if a.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", a.Email)
	}
	if a.City != "" {
		fmt.Fprintf(&b, "Город: %s\n", a.City)
	}
	fmt.Fprintf(&b, "\nДлина: %s\n", a.LengthLabel())
	fmt.Fprintf(&b, "Цвет: %s\n", a.Color.Label())
	fmt.Fprintf(&b, "Структура: %s\n", a.Structure.Label())
	fmt.Fprintf(&b, "Состояние: %s\n", a.Condition.Label())
	fmt.Fprintf(&b, "Возраст: %s\n", a.Age.Label())
	fmt.Fprintf(&b, "\nОценка: %s ₽\n", FormatAmount(a.EstimatedPrice))
	if a.Comment != "" {
		fmt.Fprintf(&b, "\nКомментарий: %s\n", a.Comment)
	}
	fmt.Fprintf(&b, "Фотографий: %d\n", len(a.Photos))
	return b.String()
}

// FormatAmount groups thousands with a space: 45000 -> "45 000".
func FormatAmount(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ' ')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
