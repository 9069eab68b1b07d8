// Package feed implements posts, comments and the social graph around them,
// keeping per-user and per-post-day counters in step with every write.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger, now func() time.Time) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, log: log.Named("FeedService"), now: now}
}

func (s *Service) findPost(tx *gorm.DB, id string) (*models.PostModel, error) {
	var p models.PostModel
	if err := tx.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ownPost loads a post written by userID. Someone else's post reads as missing.
func (s *Service) ownPost(tx *gorm.DB, userID, id string) (*models.PostModel, error) {
	var p models.PostModel
	if err := tx.First(&p, "id = ? AND author_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UserStats returns the counters of an account, zeroed if it never had activity.
func (s *Service) UserStats(ctx context.Context, userID string) (*models.UserStatModel, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.UserModel{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.ErrNotFound
	}
	stat := models.UserStatModel{UserID: userID}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).FirstOrCreate(&stat).Error; err != nil {
		return nil, err
	}
	return &stat, nil
}

// PostDailyStats returns the last days of activity on a post, newest first.
func (s *Service) PostDailyStats(ctx context.Context, postID string, days int) ([]models.PostDailyStatModel, error) {
	if _, err := s.findPost(s.db.WithContext(ctx), postID); err != nil {
		return nil, err
	}
	if days <= 0 || days > 366 {
		days = 30
	}
	var rows []models.PostDailyStatModel
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("day DESC").
		Limit(days).
		Find(&rows).Error
	return rows, err
}
