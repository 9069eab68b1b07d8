package feed

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/pagination"
	"github.com/futureofwork/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func content(raw string, limit int) (string, error) {
	c := strings.TrimSpace(raw)
	if c == "" {
		return "", apperr.Validation("content", "Content cannot be empty.")
	}
	if utf8.RuneCountInString(c) > limit {
		return "", apperr.Validation("content", fmt.Sprintf("Content cannot exceed %d characters.", limit))
	}
	return c, nil
}

func (s *Service) CreatePost(ctx context.Context, userID string, dto *PostDTO) (*PostView, error) {
	body, err := content(dto.Content, maxPostLength)
	if err != nil {
		return nil, err
	}
	p := &models.PostModel{AuthorID: userID, Content: body}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		return bumpUser(tx, userID, statPosts, 1)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("post created", zap.String("post_id", p.ID), zap.String("user_id", userID))
	return s.view(ctx, p)
}

// EditPost rewrites a post. Only the author may edit.
func (s *Service) EditPost(ctx context.Context, userID, postID string, dto *PostDTO) (*PostView, error) {
	body, err := content(dto.Content, maxPostLength)
	if err != nil {
		return nil, err
	}
	p, err := s.ownPost(s.db.WithContext(ctx), userID, postID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(p).Update("content", body).Error; err != nil {
		return nil, err
	}
	return s.view(ctx, p)
}

// DeletePost removes a post with everything hanging off it and takes the
// post's interactions off the author's counters.
func (s *Service) DeletePost(ctx context.Context, userID, postID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.ownPost(tx, userID, postID)
		if err != nil {
			return err
		}
		for _, c := range []struct {
			model      interface{}
			userColumn string
			stat       string
		}{
			{&models.LikeModel{}, "user_id", statLikes},
			{&models.CommentModel{}, "author_id", statComments},
			{&models.ShareModel{}, "shared_by_id", statShares},
		} {
			var n int64
			if err := tx.Model(c.model).Where("post_id = ? AND "+c.userColumn+" <> ?", p.ID, p.AuthorID).Count(&n).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id = ?", p.ID).Delete(c.model).Error; err != nil {
				return err
			}
			if err := bumpUser(tx, p.AuthorID, c.stat, -n); err != nil {
				return err
			}
		}
		for _, m := range []interface{}{&models.BookmarkModel{}, &models.PostDailyStatModel{}} {
			if err := tx.Where("post_id = ?", p.ID).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(p).Error; err != nil {
			return err
		}
		return bumpUser(tx, p.AuthorID, statPosts, -1)
	})
}

func (s *Service) GetPost(ctx context.Context, postID string) (*PostView, error) {
	p, err := s.findPost(s.db.WithContext(ctx), postID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p)
}

// ListPosts pages through every post, newest first.
func (s *Service) ListPosts(ctx context.Context, q pagination.Query) ([]PostView, response.Pagination, error) {
	return s.page(ctx, s.db.WithContext(ctx).Model(&models.PostModel{}), q)
}

// Feed pages through posts written by accounts userID follows.
func (s *Service) Feed(ctx context.Context, userID string, q pagination.Query) ([]PostView, response.Pagination, error) {
	following := s.db.Model(&models.FollowModel{}).Select("following_id").Where("follower_id = ?", userID)
	return s.page(ctx, s.db.WithContext(ctx).Model(&models.PostModel{}).Where("author_id IN (?)", following), q)
}

// Bookmarks pages through posts userID bookmarked.
func (s *Service) Bookmarks(ctx context.Context, userID string, q pagination.Query) ([]PostView, response.Pagination, error) {
	marked := s.db.Model(&models.BookmarkModel{}).Select("post_id").Where("user_id = ?", userID)
	return s.page(ctx, s.db.WithContext(ctx).Model(&models.PostModel{}).Where("id IN (?)", marked), q)
}

// UserPosts pages through the posts of one author.
func (s *Service) UserPosts(ctx context.Context, authorID string, q pagination.Query) ([]PostView, response.Pagination, error) {
	return s.page(ctx, s.db.WithContext(ctx).Model(&models.PostModel{}).Where("author_id = ?", authorID), q)
}

func (s *Service) page(ctx context.Context, db *gorm.DB, q pagination.Query) ([]PostView, response.Pagination, error) {
	var posts []models.PostModel
	p, err := pagination.Paginate(db.Order("created_at DESC").Order("id"), q, &posts)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	views, err := s.decorate(ctx, posts)
	return views, p, err
}

func (s *Service) view(ctx context.Context, p *models.PostModel) (*PostView, error) {
	views, err := s.decorate(ctx, []models.PostModel{*p})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

type postCount struct {
	PostID string
	N      int64
}

// decorate attaches authors and interaction counts with one query per relation.
func (s *Service) decorate(ctx context.Context, posts []models.PostModel) ([]PostView, error) {
	views := make([]PostView, len(posts))
	if len(posts) == 0 {
		return views, nil
	}
	ids := make([]string, len(posts))
	authorIDs := make([]string, 0, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
		authorIDs = append(authorIDs, p.AuthorID)
	}

	counts := make(map[string]map[string]int64, 3)
	for _, table := range []string{"likes", "comments", "shares"} {
		var rows []postCount
		if err := s.db.WithContext(ctx).Table(table).
			Select("post_id, COUNT(*) AS n").
			Where("post_id IN ?", ids).
			Group("post_id").
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		m := make(map[string]int64, len(rows))
		for _, r := range rows {
			m[r.PostID] = r.N
		}
		counts[table] = m
	}

	authors, err := s.authors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	for i, p := range posts {
		views[i] = PostView{
			ID:            p.ID,
			Author:        authors[p.AuthorID],
			Content:       p.Content,
			Created:       p.CreatedAt,
			Modified:      p.UpdatedAt,
			LikesCount:    counts["likes"][p.ID],
			CommentsCount: counts["comments"][p.ID],
			SharesCount:   counts["shares"][p.ID],
		}
	}
	return views, nil
}

func (s *Service) authors(ctx context.Context, ids []string) (map[string]*AuthorView, error) {
	out := make(map[string]*AuthorView, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.UserModel
	if err := s.db.WithContext(ctx).Select("id", "name", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = &AuthorView{ID: u.ID, Name: u.Name, Username: u.Username}
	}
	return out, nil
}
