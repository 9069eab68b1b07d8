package feed

import (
	"context"
	"errors"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/pagination"
	"github.com/futureofwork/core/internal/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Service) AddComment(ctx context.Context, userID, postID string, dto *CommentDTO) (*CommentView, error) {
	body, err := content(dto.Content, maxCommentLength)
	if err != nil {
		return nil, err
	}
	cm := &models.CommentModel{PostID: postID, AuthorID: userID, Content: body}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.findPost(tx, postID)
		if err != nil {
			return err
		}
		if err := tx.Create(cm).Error; err != nil {
			return err
		}
		if p.AuthorID != userID {
			if err := bumpUser(tx, p.AuthorID, statComments, 1); err != nil {
				return err
			}
		}
		return bumpDaily(tx, p.ID, dailyComments, s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.commentView(ctx, cm)
}

func (s *Service) ownComment(tx *gorm.DB, userID, id string) (*models.CommentModel, error) {
	var cm models.CommentModel
	if err := tx.First(&cm, "id = ? AND author_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &cm, nil
}

func (s *Service) EditComment(ctx context.Context, userID, commentID string, dto *CommentDTO) (*CommentView, error) {
	body, err := content(dto.Content, maxCommentLength)
	if err != nil {
		return nil, err
	}
	cm, err := s.ownComment(s.db.WithContext(ctx), userID, commentID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(cm).Update("content", body).Error; err != nil {
		return nil, err
	}
	return s.commentView(ctx, cm)
}

func (s *Service) DeleteComment(ctx context.Context, userID, commentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cm, err := s.ownComment(tx, userID, commentID)
		if err != nil {
			return err
		}
		if err := tx.Delete(cm).Error; err != nil {
			return err
		}
		var p models.PostModel
		if err := tx.Select("author_id").First(&p, "id = ?", cm.PostID).Error; err != nil {
			return err
		}
		if p.AuthorID == userID {
			return nil
		}
		return bumpUser(tx, p.AuthorID, statComments, -1)
	})
}

// Comments pages through the comments of a post, oldest first.
func (s *Service) Comments(ctx context.Context, postID string, q pagination.Query) ([]CommentView, response.Pagination, error) {
	if _, err := s.findPost(s.db.WithContext(ctx), postID); err != nil {
		return nil, response.Pagination{}, err
	}
	var rows []models.CommentModel
	p, err := pagination.Paginate(s.db.WithContext(ctx).Model(&models.CommentModel{}).
		Where("post_id = ?", postID).Order("created_at").Order("id"), q, &rows)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.AuthorID
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	out := make([]CommentView, len(rows))
	for i, r := range rows {
		out[i] = toCommentView(&r, authors[r.AuthorID])
	}
	return out, p, nil
}

func (s *Service) commentView(ctx context.Context, cm *models.CommentModel) (*CommentView, error) {
	authors, err := s.authors(ctx, []string{cm.AuthorID})
	if err != nil {
		return nil, err
	}
	v := toCommentView(cm, authors[cm.AuthorID])
	return &v, nil
}

func toCommentView(cm *models.CommentModel, author *AuthorView) CommentView {
	return CommentView{
		ID:       cm.ID,
		PostID:   cm.PostID,
		Author:   author,
		Content:  cm.Content,
		Created:  cm.CreatedAt,
		Modified: cm.UpdatedAt,
	}
}

// insertOnce inserts row unless its unique key already exists and reports
// whether a row was written.
func insertOnce(tx *gorm.DB, row interface{}) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	return res.RowsAffected == 1, res.Error
}

// Like records userID liking a post. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, userID, postID string) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.findPost(tx, postID)
		if err != nil {
			return err
		}
		if created, err = insertOnce(tx, &models.LikeModel{UserID: userID, PostID: postID}); err != nil || !created {
			return err
		}
		if p.AuthorID != userID {
			if err := bumpUser(tx, p.AuthorID, statLikes, 1); err != nil {
				return err
			}
		}
		return bumpDaily(tx, p.ID, dailyLikes, s.now())
	})
	return created, err
}

// Unlike removes a like. Removing a missing like is a no-op.
func (s *Service) Unlike(ctx context.Context, userID, postID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.findPost(tx, postID)
		if err != nil {
			return err
		}
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.LikeModel{})
		if res.Error != nil || res.RowsAffected == 0 || p.AuthorID == userID {
			return res.Error
		}
		return bumpUser(tx, p.AuthorID, statLikes, -1)
	})
}

func (s *Service) Bookmark(ctx context.Context, userID, postID string) (bool, error) {
	if _, err := s.findPost(s.db.WithContext(ctx), postID); err != nil {
		return false, err
	}
	return insertOnce(s.db.WithContext(ctx), &models.BookmarkModel{UserID: userID, PostID: postID})
}

func (s *Service) Unbookmark(ctx context.Context, userID, postID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Delete(&models.BookmarkModel{}).Error
}

// Share records userID sharing a post, at most once per pair.
func (s *Service) Share(ctx context.Context, userID, postID string) (*ShareView, bool, error) {
	var created bool
	row := &models.ShareModel{PostID: postID, SharedByID: userID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.findPost(tx, postID)
		if err != nil {
			return err
		}
		if created, err = insertOnce(tx, row); err != nil {
			return err
		}
		if !created {
			// row carries the id minted for the skipped insert.
			var existing models.ShareModel
			if err := tx.First(&existing, "post_id = ? AND shared_by_id = ?", postID, userID).Error; err != nil {
				return err
			}
			*row = existing
			return nil
		}
		if p.AuthorID != userID {
			if err := bumpUser(tx, p.AuthorID, statShares, 1); err != nil {
				return err
			}
		}
		return bumpDaily(tx, p.ID, dailyShares, s.now())
	})
	if err != nil {
		return nil, false, err
	}
	authors, err := s.authors(ctx, []string{userID})
	if err != nil {
		return nil, false, err
	}
	return &ShareView{ID: row.ID, PostID: row.PostID, SharedBy: authors[userID], Created: row.CreatedAt}, created, nil
}

// PostShares lists who shared a post, newest first.
func (s *Service) PostShares(ctx context.Context, postID string) ([]ShareView, error) {
	if _, err := s.findPost(s.db.WithContext(ctx), postID); err != nil {
		return nil, err
	}
	var rows []models.ShareModel
	if err := s.db.WithContext(ctx).Where("post_id = ?", postID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.SharedByID
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ShareView, len(rows))
	for i, r := range rows {
		out[i] = ShareView{ID: r.ID, PostID: r.PostID, SharedBy: authors[r.SharedByID], Created: r.CreatedAt}
	}
	return out, nil
}

// Follow makes userID follow targetID. Following twice is a no-op.
func (s *Service) Follow(ctx context.Context, userID, targetID string) (bool, error) {
	if userID == targetID {
		return false, apperr.Validation("user", "You cannot follow yourself.")
	}
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.UserModel{}).Where("id = ?", targetID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.ErrNotFound
		}
		var err error
		if created, err = insertOnce(tx, &models.FollowModel{FollowerID: userID, FollowingID: targetID}); err != nil || !created {
			return err
		}
		if err := bumpUser(tx, userID, statFollowing, 1); err != nil {
			return err
		}
		return bumpUser(tx, targetID, statFollowers, 1)
	})
	return created, err
}

func (s *Service) Unfollow(ctx context.Context, userID, targetID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND following_id = ?", userID, targetID).Delete(&models.FollowModel{})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		if err := bumpUser(tx, userID, statFollowing, -1); err != nil {
			return err
		}
		return bumpUser(tx, targetID, statFollowers, -1)
	})
}
