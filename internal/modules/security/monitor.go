package security

import (
	"context"
	"net/http"

	"github.com/futureofwork/core/internal/middleware"
	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/clientip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxEndpointLen = 255

// Hit is one observed request.
type Hit struct {
	IP       string
	Endpoint string
	Method   string
	UserID   string
	Failed   bool
}

// Record counts a request against its (ip, endpoint, method) row. The
// increment happens in the database so concurrent requests never lose one.
func (s *Service) Record(ctx context.Context, h Hit) error {
	if h.IP == "" {
		return nil
	}
	if len(h.Endpoint) > maxEndpointLen {
		h.Endpoint = h.Endpoint[:maxEndpointLen]
	}
	var failed int64
	if h.Failed {
		failed = 1
	}
	now := s.now()

	row := &models.IPActivityModel{
		IPAddress:      h.IP,
		Endpoint:       h.Endpoint,
		Method:         h.Method,
		RequestCount:   1,
		FailedAttempts: failed,
		FirstSeen:      now,
		LastSeen:       now,
	}
	updates := map[string]interface{}{
		"request_count":   gorm.Expr("ip_activities.request_count + 1"),
		"failed_attempts": gorm.Expr("ip_activities.failed_attempts + ?", failed),
		"last_seen":       now,
		"updated_at":      now,
	}
	if h.UserID != "" {
		uid := h.UserID
		row.UserID = &uid
		updates["user_id"] = uid
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip_address"}, {Name: "endpoint"}, {Name: "method"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(row).Error
}

// Monitor counts every request that got past the gate, after the handler
// has run so the outcome and the caller are known. A panicking handler is
// still counted on the way out to the recovery middleware.
func (s *Service) Monitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer s.observe(c)
		c.Next()
	}
}

func (s *Service) observe(c *gin.Context) {
	status := c.Writer.Status()
	h := Hit{
		IP:       clientip.FromRequest(c.Request),
		Endpoint: c.Request.URL.Path,
		Method:   c.Request.Method,
		UserID:   middleware.CurrentUserID(c),
		Failed:   status == http.StatusUnauthorized || status == http.StatusForbidden,
	}
	if err := s.Record(c.Request.Context(), h); err != nil {
		s.log.Error("record ip activity failed", zap.String("ip", h.IP), zap.Error(err))
	}
}

// PruneActivity deletes rows not seen within the retention period.
func (s *Service) PruneActivity(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.opts.ActivityRetention)
	res := s.db.WithContext(ctx).
		Where("last_seen < ?", cutoff).
		Delete(&models.IPActivityModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("pruned ip activity", zap.Int64("rows", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
