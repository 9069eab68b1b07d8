package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/modules/account/token"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Register creates a pending account and queues its activation email.
func (s *Service) Register(ctx context.Context, dto *RegisterDTO) (*models.UserModel, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	dto.Username = normalize(dto.Username)
	dto.Email = normalize(dto.Email)
	if err := s.check(dto); err != nil {
		return nil, err
	}
	if dto.Password1 != dto.Password2 {
		return nil, apperr.Validation("password2", "Passwords do not match.")
	}
	if err := checkPassword("password1", dto.Password1, dto.Username, dto.Email); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if taken, err := exists(db, "username = ?", dto.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Validation("username", "Username already taken.")
	}
	if taken, err := exists(db, "email = ?", dto.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Validation("email", "Email already in use.")
	}

	hash, err := s.hashPassword(dto.Password1)
	if err != nil {
		return nil, err
	}
	u := &models.UserModel{
		Name:       dto.Name,
		Username:   dto.Username,
		Email:      dto.Email,
		Password:   hash,
		DateJoined: s.now(),
	}
	if err := db.Transaction(func(tx *gorm.DB) error {
		return s.insert(tx, u)
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Validation("email", "An account with this email or username already exists.")
		}
		return nil, err
	}

	s.log.Info("account registered", zap.String("user_id", u.ID))
	s.enqueue(ctx, TaskActivationEmail, emailJob{UserID: u.ID})
	return u, nil
}

// insert creates u and runs the post-create hooks in tx.
func (s *Service) insert(tx *gorm.DB, u *models.UserModel) error {
	if err := tx.Create(u).Error; err != nil {
		return err
	}
	for _, h := range s.afterCreate {
		if err := h(tx, u); err != nil {
			return fmt.Errorf("post-create hook: %w", err)
		}
	}
	return nil
}

// VerifyEmail consumes an activation or email-change link.
func (s *Service) VerifyEmail(ctx context.Context, uid, raw string) error {
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

	purpose := verifyPurpose(u)
	if purpose == token.Activation && u.IsVerified {
		return apperr.ErrAlreadyVerified
	}
	if err := s.tokens.Check(purpose, u, raw); err != nil {
		return err
	}

	swapped := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, "id = ?", u.ID).Error; err != nil {
			return err
		}
		if verifyPurpose(&cur) != purpose {
			return apperr.ErrInvalidToken
		}
		if err := s.tokens.Check(purpose, &cur, raw); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if !cur.IsVerified {
			updates["is_verified"] = true
			if !cur.IsDeactivated {
				updates["is_active"] = true
			}
		}
		if purpose == token.EmailChange {
			next := cur.PendingEmail()
			if taken, err := exists(tx, "email = ? AND id <> ?", next, cur.ID); err != nil {
				return err
			} else if taken {
				return apperr.Validation("email", "Email already in use.")
			}
			updates["email"] = next
			updates["new_email"] = nil
			updates["email_verification_pending"] = false
			swapped = true
		}
		if err := tx.Model(&cur).Updates(updates).Error; err != nil {
			return err
		}
		if swapped {
			if _, err := s.ledger.RevokeAll(tx, cur.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("email verified", zap.String("user_id", u.ID), zap.Bool("email_changed", swapped))
	return nil
}

func verifyPurpose(u *models.UserModel) token.Purpose {
	if u.EmailVerificationPending && u.PendingEmail() != "" {
		return token.EmailChange
	}
	return token.Activation
}

// Authenticate resolves login (email when it contains '@', else username)
// and checks the password. A deactivated account inside its grace period is
// reactivated; the returned flag is true only for the call that did it.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.UserModel, bool, error) {
	if strings.TrimSpace(login) == "" || password == "" {
		return nil, false, apperr.ErrUnauthorized
	}
	u, err := s.findByLogin(s.db.WithContext(ctx), login)
	if err != nil {
		return nil, false, err
	}
	if u == nil || !checkHash(u, password) {
		return nil, false, apperr.ErrUnauthorized
	}

	reactivated := false
	if u.IsDeactivated {
		if reactivated, err = s.reactivate(ctx, u); err != nil {
			return nil, false, err
		}
	}
	if !u.IsActive {
		return nil, false, apperr.ErrUnauthorized
	}
	return u, reactivated, nil
}

// reactivate clears the deactivation of u if the grace period has not
// elapsed. The row is locked and the update is conditional, so concurrent
// callers agree on a single winner. u is refreshed from the database.
func (s *Service) reactivate(ctx context.Context, u *models.UserModel) (bool, error) {
	cutoff := s.now().Add(-s.opts.GracePeriod)
	if u.DeactivatedAt == nil || u.DeactivatedAt.Before(cutoff) {
		return false, apperr.ErrUnauthorized
	}

	won := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, "id = ?", u.ID).Error; err != nil {
			return err
		}
		if !cur.IsDeactivated {
			*u = cur
			return nil
		}
		if cur.DeactivatedAt == nil || cur.DeactivatedAt.Before(cutoff) {
			return apperr.ErrUnauthorized
		}

		res := tx.Model(&models.UserModel{}).
			Where("id = ? AND is_deactivated = ? AND deactivated_at >= ?", cur.ID, true, cutoff).
			Updates(map[string]interface{}{
				"is_deactivated": false,
				"deactivated_at": nil,
				"is_active":      true,
			})
		if res.Error != nil {
			return res.Error
		}
		won = res.RowsAffected == 1
		return tx.First(u, "id = ?", cur.ID).Error
	})
	if err != nil {
		return false, err
	}
	if won {
		s.log.Info("account reactivated", zap.String("user_id", u.ID))
	}
	return won, nil
}

// Deactivate closes the account and ends its sessions. Logging in within the
// grace period undoes it.
func (s *Service) Deactivate(ctx context.Context, userID string, dto *DeactivateDTO) error {
	if !dto.Confirm {
		return apperr.Validation("confirm", "You must confirm deactivation.")
	}
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserModel{}).
			Where("id = ? AND is_deactivated = ?", userID, false).
			Updates(map[string]interface{}{
				"is_deactivated": true,
				"deactivated_at": now,
				"is_active":      false,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if ok, err := exists(tx, "id = ?", userID); err != nil {
				return err
			} else if !ok {
				return apperr.ErrNotFound
			}
			return nil
		}
		if _, err := s.ledger.RevokeAll(tx, userID); err != nil {
			return err
		}
		s.log.Info("account deactivated", zap.String("user_id", userID))
		return nil
	})
}

// DeleteExpiredDeactivated hard-deletes accounts whose grace period has
// elapsed. Each account is removed in its own transaction; a failure is
// logged and the sweep moves on.
func (s *Service) DeleteExpiredDeactivated(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.opts.GracePeriod)

	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("is_deactivated = ? AND deactivated_at <= ?", true, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		ok, err := s.deleteExpired(ctx, id, cutoff)
		if err != nil {
			s.log.Error("delete deactivated account failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if ok {
			deleted++
		}
	}
	if deleted > 0 {
		s.log.Info("deleted deactivated accounts", zap.Int("count", deleted))
	}
	return deleted, nil
}

func (s *Service) deleteExpired(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.UserModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND is_deactivated = ? AND deactivated_at <= ?", id, true, cutoff).
			First(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		for _, h := range s.beforeDelete {
			if err := h(tx, &cur); err != nil {
				return err
			}
		}
		if err := tx.Delete(&cur).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// CanUpdateAccount reports whether the account-details cooldown has passed.
func (s *Service) CanUpdateAccount(u *models.UserModel) bool {
	if u.AccountUpdatedAt == nil {
		return true
	}
	return !s.now().Before(u.AccountUpdatedAt.Add(s.opts.UpdateCooldown))
}

// UpdateAccount changes name, username or email. A new email is held as
// pending until confirmed from the new address.
func (s *Service) UpdateAccount(ctx context.Context, userID string, dto *UpdateAccountDTO) (*models.UserModel, error) {
	dto.Name = trimmed(dto.Name)
	if dto.Username != nil {
		v := normalize(*dto.Username)
		dto.Username = &v
	}
	if dto.Email != nil {
		v := normalize(*dto.Email)
		dto.Email = &v
	}
	if err := s.check(dto); err != nil {
		return nil, err
	}

	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !s.CanUpdateAccount(u) {
		days := int(s.opts.UpdateCooldown.Hours() / 24)
		return nil, apperr.Validation("", fmt.Sprintf("You can only update your account details once every %d days.", days))
	}

	db := s.db.WithContext(ctx)
	updates := map[string]interface{}{}
	if dto.Name != nil && *dto.Name != u.Name {
		updates["name"] = *dto.Name
	}
	if dto.Username != nil && *dto.Username != u.Username {
		if taken, err := exists(db, "username = ? AND id <> ?", *dto.Username, u.ID); err != nil {
			return nil, err
		} else if taken {
			return nil, apperr.Validation("username", "Username already taken.")
		}
		updates["username"] = *dto.Username
	}
	newEmail := ""
	if dto.Email != nil && *dto.Email != u.Email {
		if taken, err := exists(db, "email = ? AND id <> ?", *dto.Email, u.ID); err != nil {
			return nil, err
		} else if taken {
			return nil, apperr.Validation("email", "Email already in use.")
		}
		newEmail = *dto.Email
		updates["new_email"] = newEmail
		updates["email_verification_pending"] = true
	}
	if len(updates) == 0 {
		return u, nil
	}
	updates["account_updated_at"] = s.now()

	if err := db.Model(u).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Validation("username", "Username already taken.")
		}
		return nil, err
	}
	if err := db.First(u, "id = ?", u.ID).Error; err != nil {
		return nil, err
	}

	if newEmail != "" {
		s.enqueue(ctx, TaskEmailChange, emailJob{UserID: u.ID, NewEmail: newEmail})
	}
	return u, nil
}

// SetSuspended toggles the administrative suspension of an account.
// Deactivated accounts are left alone.
func (s *Service) SetSuspended(ctx context.Context, userID string, suspended bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.UserModel{}).Where("id = ? AND is_deactivated = ?", userID, false)
		if !suspended {
			q = q.Where("is_verified = ?", true)
		}
		res := q.Update("is_active", !suspended)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if ok, err := exists(tx, "id = ?", userID); err != nil {
				return err
			} else if !ok {
				return apperr.ErrNotFound
			}
			return apperr.Validation("", "Account is deactivated or not verified.")
		}
		if suspended {
			if _, err := s.ledger.RevokeAll(tx, userID); err != nil {
				return err
			}
		}
		s.log.Info("account suspension changed", zap.String("user_id", userID), zap.Bool("suspended", suspended))
		return nil
	})
}

func exists(tx *gorm.DB, query string, args ...interface{}) (bool, error) {
	var n int64
	err := tx.Model(&models.UserModel{}).Where(query, args...).Limit(1).Count(&n).Error
	return n > 0, err
}
