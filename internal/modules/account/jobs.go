package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/modules/account/token"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/mail"
	"github.com/futureofwork/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// Mailers renders and delivers the account emails queued by Service.
type Mailers struct {
	svc         *Service
	mailer      mail.Mailer
	frontendURL string
}

func NewMailers(svc *Service, mailer mail.Mailer, frontendURL string) *Mailers {
	return &Mailers{svc: svc, mailer: mailer, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// Register binds the email task handlers to q.
func (m *Mailers) Register(q *taskqueue.Service) {
	q.Register(TaskActivationEmail, m.handle(m.activation))
	q.Register(TaskPasswordReset, m.handle(m.passwordReset))
	q.Register(TaskEmailChange, m.handle(m.emailChange))
}

func (m *Mailers) handle(fn func(context.Context, *models.UserModel, emailJob) (*mail.Message, error)) taskqueue.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var job emailJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("decode email job: %w", err)
		}
		u, err := m.svc.GetByID(ctx, job.UserID)
		if errors.Is(err, apperr.ErrNotFound) {
			m.svc.log.Info("email skipped, account gone", zap.String("user_id", job.UserID))
			return nil
		} else if err != nil {
			return err
		}
		msg, err := fn(ctx, u, job)
		if err != nil || msg == nil {
			return err
		}
		return m.mailer.Send(ctx, *msg)
	}
}

func (m *Mailers) link(path string, p token.Purpose, u *models.UserModel) (mail.LinkData, error) {
	raw, err := m.svc.tokens.Make(p, u)
	if err != nil {
		return mail.LinkData{}, err
	}
	return mail.LinkData{
		Name:      u.Name,
		Link:      fmt.Sprintf("%s/%s/%s/%s", m.frontendURL, path, token.EncodeUID(u.ID), raw),
		ExpiresIn: humanize(m.svc.tokens.TTL().Hours()),
	}, nil
}

func (m *Mailers) activation(_ context.Context, u *models.UserModel, _ emailJob) (*mail.Message, error) {
	if u.IsVerified {
		return nil, nil
	}
	data, err := m.link("verify-email", token.Activation, u)
	if err != nil {
		return nil, err
	}
	msg, err := mail.Activation(u.Email, data)
	return &msg, err
}

func (m *Mailers) passwordReset(_ context.Context, u *models.UserModel, _ emailJob) (*mail.Message, error) {
	data, err := m.link("reset-password", token.PasswordReset, u)
	if err != nil {
		return nil, err
	}
	msg, err := mail.PasswordReset(u.Email, data)
	return &msg, err
}

// emailChange drops jobs for an address that is no longer the pending one.
func (m *Mailers) emailChange(_ context.Context, u *models.UserModel, job emailJob) (*mail.Message, error) {
	if !u.EmailVerificationPending || u.PendingEmail() != job.NewEmail {
		m.svc.log.Info("email change superseded", zap.String("user_id", u.ID))
		return nil, nil
	}
	data, err := m.link("verify-email", token.EmailChange, u)
	if err != nil {
		return nil, err
	}
	msg, err := mail.EmailChange(job.NewEmail, data)
	return &msg, err
}

func humanize(hours float64) string {
	if hours >= 24 && int(hours)%24 == 0 {
		days := int(hours) / 24
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", int(hours))
}
