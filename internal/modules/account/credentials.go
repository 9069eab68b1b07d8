package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/modules/account/token"
	"github.com/futureofwork/core/internal/modules/oauth"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/jwt"
	"github.com/futureofwork/core/internal/pkg/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Login authenticates a verified account and opens a session.
func (s *Service) Login(ctx context.Context, dto *LoginDTO, client Client) (*LoginResult, error) {
	if err := s.check(dto); err != nil {
		return nil, err
	}
	u, reactivated, err := s.Authenticate(ctx, dto.Username, dto.Password)
	if err != nil {
		return nil, err
	}
	if !u.IsVerified {
		return nil, apperr.ErrUnauthorized
	}
	return s.startSession(ctx, u, client, reactivated)
}

func (s *Service) startSession(ctx context.Context, u *models.UserModel, client Client, reactivated bool) (*LoginResult, error) {
	row, err := s.ledger.Issue(s.db.WithContext(ctx), u.ID, client.IP, client.UA, s.opts.RefreshTTL)
	if err != nil {
		return nil, err
	}
	pair, err := s.signPair(u.ID, row.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", u.ID).
		UpdateColumn("last_login", now).Error; err != nil {
		s.log.Warn("update last login failed", zap.String("user_id", u.ID), zap.Error(err))
	} else {
		u.LastLogin = &now
	}
	return &LoginResult{TokenPair: *pair, User: summarize(u), Reactivated: reactivated}, nil
}

func (s *Service) signPair(userID, sessionID string) (*TokenPair, error) {
	access, err := s.signer.Sign(userID, sessionID, jwt.TypeAccess, s.opts.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signer.Sign(userID, sessionID, jwt.TypeRefresh, s.opts.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted once.
func (s *Service) Refresh(ctx context.Context, dto *RefreshDTO, client Client) (*TokenPair, error) {
	if err := s.check(dto); err != nil {
		return nil, err
	}
	claims, err := s.signer.Parse(dto.Refresh, jwt.TypeRefresh)
	if err != nil {
		return nil, apperr.ErrInvalidToken
	}
	u, err := s.GetByID(ctx, claims.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrUnauthorized
	} else if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, apperr.ErrUnauthorized
	}
	row, err := s.ledger.Rotate(u.ID, claims.SessionID, client.IP, client.UA, s.opts.RefreshTTL)
	if errors.Is(err, session.ErrRevoked) {
		return nil, apperr.ErrInvalidToken
	} else if err != nil {
		return nil, err
	}
	return s.signPair(u.ID, row.ID)
}

// Logout revokes the session behind a refresh token owned by userID.
// Revoking an already revoked session succeeds.
func (s *Service) Logout(ctx context.Context, userID string, dto *LogoutDTO) error {
	if err := s.check(dto); err != nil {
		return err
	}
	claims, err := s.signer.Parse(dto.Refresh, jwt.TypeRefresh)
	if err != nil {
		return apperr.ErrInvalidToken
	}
	if claims.UserID != userID {
		return apperr.ErrForbidden
	}
	if err := s.ledger.Revoke(userID, claims.SessionID); err != nil && !errors.Is(err, session.ErrRevoked) {
		return err
	}
	return nil
}

// LogoutAll revokes every session of userID.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.ledger.RevokeAll(s.db.WithContext(ctx), userID)
}

// Sessions lists the live refresh sessions of userID.
func (s *Service) Sessions(userID string) ([]models.RefreshTokenModel, error) {
	return s.ledger.ListActive(userID)
}

// IsSessionActive backs access-token checks in the auth middleware.
func (s *Service) IsSessionActive(userID, sessionID string) (bool, error) {
	return s.ledger.IsActive(userID, sessionID)
}

// ChangePassword replaces the password after checking the current one and
// signs the account out everywhere.
func (s *Service) ChangePassword(ctx context.Context, userID string, dto *ChangePasswordDTO) error {
	if err := s.check(dto); err != nil {
		return err
	}
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !checkHash(u, dto.OldPassword) {
		return apperr.Validation("old_password", "Current password is incorrect.")
	}
	if dto.NewPassword1 != dto.NewPassword2 {
		return apperr.Validation("new_password2", "Passwords do not match.")
	}
	if dto.NewPassword1 == dto.OldPassword {
		return apperr.Validation("new_password1", "New password must be different from the current one.")
	}
	if err := checkPassword("new_password1", dto.NewPassword1, u.Username, u.Email); err != nil {
		return err
	}
	return s.setPassword(ctx, u.ID, dto.NewPassword1, nil)
}

// setPassword stores a new hash and revokes all sessions. When guard is set
// it runs against the locked row first.
func (s *Service) setPassword(ctx context.Context, userID, raw string, guard func(*models.UserModel) error) error {
	hash, err := s.hashPassword(raw)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, "id = ?", userID).Error; err != nil {
			return err
		}
		if guard != nil {
			if err := guard(&cur); err != nil {
				return err
			}
		}
		if err := tx.Model(&cur).Update("password", hash).Error; err != nil {
			return err
		}
		_, err := s.ledger.RevokeAll(tx, userID)
		return err
	})
}

// RequestPasswordReset queues a reset email when the address belongs to an
// account. The outcome is the same either way.
func (s *Service) RequestPasswordReset(ctx context.Context, dto *EmailDTO) error {
	dto.Email = normalize(dto.Email)
	if err := s.check(dto); err != nil {
		return err
	}
	u, err := s.findByLogin(s.db.WithContext(ctx), dto.Email)
	if err != nil {
		return err
	}
	if u != nil {
		s.enqueue(ctx, TaskPasswordReset, emailJob{UserID: u.ID})
	}
	return nil
}

// ConfirmPasswordReset sets a new password from an emailed reset link.
func (s *Service) ConfirmPasswordReset(ctx context.Context, uid, raw string, dto *PasswordResetConfirmDTO) error {
	if err := s.check(dto); err != nil {
		return err
	}
	if dto.Password1 != dto.Password2 {
		return apperr.Validation("password2", "Passwords do not match.")
	}
	id, err := token.DecodeUID(uid)
	if err != nil {
		return err
	}
	u, err := s.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrInvalidToken
	} else if err != nil {
		return err
	}
	if err := s.tokens.Check(token.PasswordReset, u, raw); err != nil {
		return err
	}
	if err := checkPassword("password1", dto.Password1, u.Username, u.Email); err != nil {
		return err
	}
	if err := s.setPassword(ctx, u.ID, dto.Password1, func(cur *models.UserModel) error {
		return s.tokens.Check(token.PasswordReset, cur, raw)
	}); err != nil {
		return err
	}
	s.log.Info("password reset", zap.String("user_id", u.ID))
	return nil
}

// ResendVerification queues another activation email. Unknown addresses are
// accepted silently.
func (s *Service) ResendVerification(ctx context.Context, dto *EmailDTO) error {
	dto.Email = normalize(dto.Email)
	if err := s.check(dto); err != nil {
		return err
	}
	u, err := s.findByLogin(s.db.WithContext(ctx), dto.Email)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}
	if u.IsVerified {
		return apperr.ErrAlreadyVerified
	}
	res, err := s.limiter.Allow(ctx, resendKeyPrefix+u.ID, s.opts.ResendRate)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return apperr.RateLimited(res.RetryAfter)
	}
	s.enqueue(ctx, TaskActivationEmail, emailJob{UserID: u.ID})
	return nil
}

// OAuthLogin signs in with a verified external identity. The identity is
// linked to the account holding its email, or a new verified account is
// created for it.
func (s *Service) OAuthLogin(ctx context.Context, id oauth.Identity, client Client) (*LoginResult, error) {
	email := normalize(id.Email)
	if id.Subject == "" || email == "" {
		return nil, apperr.ErrInvalidToken
	}

	var u models.UserModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link models.OAuthAccountModel
		err := tx.Where("provider = ? AND provider_uid = ?", id.Provider, id.Subject).First(&link).Error
		switch {
		case err == nil:
			if err := tx.First(&u, "id = ?", link.UserID).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Where("email = ?", email).First(&u).Error; errors.Is(err, gorm.ErrRecordNotFound) {
				if err := s.createOAuthUser(tx, &u, id.Name, email); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
			link = models.OAuthAccountModel{UserID: u.ID, Provider: id.Provider, ProviderUID: id.Subject}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		default:
			return err
		}

		updates := map[string]interface{}{}
		if !u.IsVerified {
			updates["is_verified"] = true
			if !u.IsDeactivated {
				updates["is_active"] = true
			}
		}
		if len(updates) > 0 {
			if err := tx.Model(&u).Updates(updates).Error; err != nil {
				return err
			}
			if err := tx.First(&u, "id = ?", u.ID).Error; err != nil {
				return err
			}
		}
		return tx.Model(&link).UpdateColumn("last_used", s.now()).Error
	})
	if err != nil {
		return nil, err
	}

	reactivated := false
	if u.IsDeactivated {
		if reactivated, err = s.reactivate(ctx, &u); err != nil {
			return nil, err
		}
	}
	if !u.IsActive {
		return nil, apperr.ErrUnauthorized
	}
	return s.startSession(ctx, &u, client, reactivated)
}

func (s *Service) createOAuthUser(tx *gorm.DB, u *models.UserModel, name, email string) error {
	local, _, _ := strings.Cut(email, "@")
	base := usernameFrom(local)
	username := base
	for i := 0; ; i++ {
		taken, err := exists(tx, "username = ?", username)
		if err != nil {
			return err
		}
		if !taken {
			break
		}
		if i == 5 {
			return apperr.Validation("username", "Could not derive a free username.")
		}
		username = base + "-" + randomSuffix()
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = local
	}
	if len(name) > 80 {
		name = name[:80]
	}
	*u = models.UserModel{
		Name:       name,
		Username:   username,
		Email:      email,
		DateJoined: s.now(),
		IsActive:   true,
		IsVerified: true,
	}
	if err := s.insert(tx, u); err != nil {
		return err
	}
	s.log.Info("account created from identity provider", zap.String("user_id", u.ID))
	return nil
}

// usernameFrom keeps the characters allowed in usernames and pads or trims
// the result to a legal length.
func usernameFrom(local string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 40 {
		out = out[:40]
	}
	for len(out) < 3 {
		out += "_"
	}
	return out
}

func randomSuffix() string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
