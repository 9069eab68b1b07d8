package security

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/futureofwork/core/internal/middleware"
	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/clientip"
	"github.com/futureofwork/core/internal/pkg/useragent"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

const maxUserAgentLen = 1024

func uaHash(ua string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(ua))
}

// TouchDevice upserts the session row for (user, ip, user agent).
func (s *Service) TouchDevice(ctx context.Context, userID, ip, ua string) error {
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}
	info := useragent.Parse(ua)
	now := s.now()
	row := &models.DeviceSessionModel{
		UserID:       userID,
		IPAddress:    ip,
		UAHash:       uaHash(ua),
		UserAgent:    ua,
		DeviceType:   info.Device,
		OS:           info.OS,
		Browser:      info.Browser,
		IsActive:     true,
		LastActivity: now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "ip_address"}, {Name: "ua_hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"device_type":   info.Device,
			"os":            info.OS,
			"browser":       info.Browser,
			"is_active":     true,
			"last_activity": now,
			"updated_at":    now,
		}),
	}).Create(row).Error
}

// Tracker records the device of every authenticated request. It reads the
// caller after the route's auth middleware has run.
func (s *Service) Tracker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		uid := middleware.CurrentUserID(c)
		if uid == "" {
			return
		}
		ip := clientip.FromRequest(c.Request)
		if err := s.TouchDevice(c.Request.Context(), uid, ip, c.Request.UserAgent()); err != nil {
			s.log.Error("track device failed", zap.String("user_id", uid), zap.Error(err))
		}
	}
}

// Devices lists the device sessions of userID, most recent first.
func (s *Service) Devices(ctx context.Context, userID string) ([]models.DeviceSessionModel, error) {
	var rows []models.DeviceSessionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_activity DESC").
		Find(&rows).Error
	return rows, err
}
