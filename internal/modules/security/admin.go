package security

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/pagination"
	"github.com/futureofwork/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type BlacklistDTO struct {
	IPAddress string `json:"ip_address" binding:"required"`
	Reason    string `json:"reason"     binding:"max=255"`
}

// ListActivity pages through activity rows, busiest first.
func (s *Service) ListActivity(ctx context.Context, q pagination.Query, suspiciousOnly bool, ip string) ([]models.IPActivityModel, response.Pagination, error) {
	db := s.db.WithContext(ctx).Model(&models.IPActivityModel{})
	if suspiciousOnly {
		db = db.Where("is_suspicious = ?", true)
	}
	if ip != "" {
		db = db.Where("ip_address = ?", ip)
	}
	var rows []models.IPActivityModel
	p, err := pagination.Paginate(db.Order("request_count DESC"), q, &rows)
	return rows, p, err
}

func (s *Service) ListBlacklist(ctx context.Context, q pagination.Query, activeOnly bool) ([]models.BlacklistedIPModel, response.Pagination, error) {
	db := s.db.WithContext(ctx).Model(&models.BlacklistedIPModel{})
	if activeOnly {
		db = db.Where("is_active = ?", true)
	}
	var rows []models.BlacklistedIPModel
	p, err := pagination.Paginate(db.Order("created_at DESC"), q, &rows)
	return rows, p, err
}

// Blacklist adds or re-enables a manual entry for an address.
func (s *Service) Blacklist(ctx context.Context, dto *BlacklistDTO) (*models.BlacklistedIPModel, error) {
	ip := strings.TrimSpace(dto.IPAddress)
	if net.ParseIP(ip) == nil {
		return nil, apperr.Validation("ip_address", "Enter a valid IPv4 or IPv6 address.")
	}
	reason := strings.TrimSpace(dto.Reason)
	if reason == "" {
		reason = "Manually blacklisted"
	}

	var entry models.BlacklistedIPModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("ip_address = ?", ip).First(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = models.BlacklistedIPModel{IPAddress: ip, Reason: reason, IsActive: true}
			return tx.Create(&entry).Error
		case err != nil:
			return err
		}
		return tx.Model(&entry).Updates(map[string]interface{}{"reason": reason, "is_active": true}).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("ip blacklisted manually", zap.String("ip", ip))
	return &entry, nil
}

// Whitelist deactivates the entry for ip. The row is kept, so the sweep
// will not blacklist the address again.
func (s *Service) Whitelist(ctx context.Context, ip string) error {
	res := s.db.WithContext(ctx).Model(&models.BlacklistedIPModel{}).
		Where("ip_address = ?", strings.TrimSpace(ip)).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	s.log.Info("ip whitelisted", zap.String("ip", ip))
	return nil
}
