package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"gopkg.in/gomail.v2"
)

// Config holds SMTP settings.
type Config struct {
	Enable bool
	Host   string
	Port   int
	User   string
	Pass   string
	From   string
}

// Message is a single email to send.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Sender sends emails over SMTP.
type Sender struct {
	cfg    Config
	dialer *gomail.Dialer
}

func New(cfg Config) *Sender {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &Sender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, port, cfg.User, cfg.Pass),
	}
}

// Send dispatches an email. A disabled sender drops the message silently.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Enable {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// Recorder keeps sent messages in memory.
type Recorder struct {
	mu   sync.Mutex
	Sent []Message
	Err  error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Sent = append(r.Sent, msg)
	return nil
}

// Messages returns a snapshot of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Sent...)
}

const layoutTpl = `<!DOCTYPE html>
<html lang="en">
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  <h2 style="color:#333">{{.Heading}}</h2>
  <p>Hi {{.Name}},</p>
  <p>{{.Body}}</p>
  <p style="margin-top:24px">
    <a href="{{.Link}}" style="background:#4f46e5;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">{{.Action}}</a>
  </p>
  <p style="color:#999;font-size:12px">This link expires in {{.ExpiresIn}}. If you did not request this, you can ignore this email.</p>
  <p style="color:#999;font-size:10px;text-align:center">&copy;{{year}} Future of Work</p>
</div>
</body>
</html>`

var layout = template.Must(template.New("layout").Funcs(template.FuncMap{
	"year": func() int { return time.Now().Year() },
}).Parse(layoutTpl))

// LinkData is rendered into every account email.
type LinkData struct {
	Name      string
	Link      string
	ExpiresIn string
}

type layoutData struct {
	LinkData
	Heading string
	Body    string
	Action  string
}

func render(data layoutData) (string, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Activation builds the email sent after registration.
func Activation(to string, data LinkData) (Message, error) {
	html, err := render(layoutData{
		LinkData: data,
		Heading:  "Activate your account",
		Body:     "Thanks for signing up. Confirm your email address to activate your account.",
		Action:   "Activate account",
	})
	return Message{To: to, Subject: "Activate your account", HTML: html}, err
}

// PasswordReset builds the email carrying a password reset link.
func PasswordReset(to string, data LinkData) (Message, error) {
	html, err := render(layoutData{
		LinkData: data,
		Heading:  "Reset your password",
		Body:     "We received a request to reset your password.",
		Action:   "Choose a new password",
	})
	return Message{To: to, Subject: "Reset your password", HTML: html}, err
}

// EmailChange builds the confirmation email sent to a new address.
func EmailChange(to string, data LinkData) (Message, error) {
	html, err := render(layoutData{
		LinkData: data,
		Heading:  "Confirm your new email",
		Body:     "Confirm this address to finish changing the email on your account.",
		Action:   "Confirm email",
	})
	return Message{To: to, Subject: "Confirm your new email address", HTML: html}, err
}
