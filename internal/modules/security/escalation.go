package security

import (
	"context"
	"errors"

	"github.com/futureofwork/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SweepResult counts what one escalation pass changed.
type SweepResult struct {
	Suspicious  int64
	Blacklisted int
}

// Sweep runs both escalation stages in one transaction.
//
// Stage one flags rows seen within SuspiciousWindow with at least
// SuspiciousRequests requests. Stage two blacklists the IP of any row seen
// within BlacklistWindow with at least BlacklistRequests requests, whether
// or not stage one flagged it. Existing entries are left as they are, so a
// whitelisted address stays whitelisted. A failure on one address is logged
// and rolled back to its savepoint without stopping the others.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var out SweepResult
	var blocked []string
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.IPActivityModel{}).
			Where("last_seen >= ? AND request_count >= ? AND is_suspicious = ?",
				now.Add(-s.opts.SuspiciousWindow), s.opts.SuspiciousRequests, false).
			Updates(map[string]interface{}{"is_suspicious": true, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		out.Suspicious = res.RowsAffected

		var ips []string
		if err := tx.Model(&models.IPActivityModel{}).
			Where("last_seen >= ? AND request_count >= ?", now.Add(-s.opts.BlacklistWindow), s.opts.BlacklistRequests).
			Distinct("ip_address").
			Pluck("ip_address", &ips).Error; err != nil {
			return err
		}
		for _, ip := range ips {
			created, err := s.blacklistOnce(tx, ip)
			if err != nil {
				s.log.Error("blacklist ip failed", zap.String("ip", ip), zap.Error(err))
				continue
			}
			if created {
				blocked = append(blocked, ip)
				s.log.Warn("ip blacklisted", zap.String("ip", ip))
			}
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	out.Blacklisted = len(blocked)
	if s.opts.Alerter != nil {
		for _, ip := range blocked {
			s.opts.Alerter.Blacklisted(ctx, ip)
		}
	}

	if s.metrics != nil {
		s.metrics.Escalations.WithLabelValues("suspicious").Add(float64(out.Suspicious))
		s.metrics.Escalations.WithLabelValues("blacklisted").Add(float64(out.Blacklisted))
	}
	if out.Suspicious > 0 || out.Blacklisted > 0 {
		s.log.Info("escalation sweep", zap.Int64("suspicious", out.Suspicious), zap.Int("blacklisted", out.Blacklisted))
	}
	return out, nil
}

// blacklistOnce creates an active entry for ip unless one exists.
func (s *Service) blacklistOnce(tx *gorm.DB, ip string) (bool, error) {
	created := false
	err := tx.Transaction(func(sp *gorm.DB) error {
		var entry models.BlacklistedIPModel
		err := sp.Where("ip_address = ?", ip).First(&entry).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := sp.Create(&models.BlacklistedIPModel{
			IPAddress: ip,
			Reason:    BlacklistReason,
			IsActive:  true,
		}).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
