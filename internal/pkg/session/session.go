// Package session keeps the ledger of issued refresh tokens. Every access
// token carries the id of the ledger row it belongs to, so revoking a row
// ends the whole session.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/futureofwork/core/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrRevoked = errors.New("session revoked or expired")

type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedger(db *gorm.DB, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{db: db, now: now}
}

// Issue records a new refresh token and returns its row. The row id is the
// token's jti.
func (l *Ledger) Issue(tx *gorm.DB, userID, ip, ua string, ttl time.Duration) (*models.RefreshTokenModel, error) {
	if tx == nil {
		tx = l.db
	}
	s := &models.RefreshTokenModel{
		UserID:    userID,
		IP:        strings.TrimSpace(ip),
		UA:        strings.TrimSpace(ua),
		ExpiresAt: l.now().UTC().Add(ttl),
	}
	s.ID = uuid.NewString()
	if err := tx.Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (l *Ledger) IsActive(userID, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}
	var count int64
	err := l.db.Model(&models.RefreshTokenModel{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, userID, l.now().UTC()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (l *Ledger) ListActive(userID string) ([]models.RefreshTokenModel, error) {
	var rows []models.RefreshTokenModel
	err := l.db.Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, l.now().UTC()).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// Revoke marks one session revoked. It returns ErrRevoked when the session
// was not active.
func (l *Ledger) Revoke(userID, sessionID string) error {
	now := l.now().UTC()
	res := l.db.Model(&models.RefreshTokenModel{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("revoked_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRevoked
	}
	return nil
}

// Rotate revokes the presented session and issues its replacement in one
// transaction. A second presentation of the same token fails with ErrRevoked.
func (l *Ledger) Rotate(userID, sessionID, ip, ua string, ttl time.Duration) (*models.RefreshTokenModel, error) {
	var next *models.RefreshTokenModel
	err := l.db.Transaction(func(tx *gorm.DB) error {
		now := l.now().UTC()
		res := tx.Model(&models.RefreshTokenModel{}).
			Where("id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, userID, now).
			Update("revoked_at", &now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRevoked
		}
		var err error
		next, err = l.Issue(tx, userID, ip, ua, ttl)
		return err
	})
	return next, err
}

// RevokeAll revokes every live session of a user and returns how many were
// revoked.
func (l *Ledger) RevokeAll(tx *gorm.DB, userID string) (int64, error) {
	if tx == nil {
		tx = l.db
	}
	now := l.now().UTC()
	res := tx.Model(&models.RefreshTokenModel{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", &now)
	return res.RowsAffected, res.Error
}

// PurgeExpired removes rows that expired or were revoked before cutoff.
func (l *Ledger) PurgeExpired(cutoff time.Time) (int64, error) {
	res := l.db.Where("expires_at < ? OR revoked_at < ?", cutoff.UTC(), cutoff.UTC()).
		Delete(&models.RefreshTokenModel{})
	return res.RowsAffected, res.Error
}
