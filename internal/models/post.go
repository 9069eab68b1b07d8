package models

import "time"

// PostModel is a feed post.
type PostModel struct {
	Base
	AuthorID string     `json:"author_id" gorm:"type:char(36);not null;index;index:idx_post_author_created,priority:1"`
	Author   *UserModel `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Content  string     `json:"content"   gorm:"type:text;not null"`
	// CreatedAt shadows Base.CreatedAt to carry the composite index.
	CreatedAt time.Time `json:"created" gorm:"index;index:idx_post_author_created,priority:2"`
}

func (PostModel) TableName() string { return "posts" }

// CommentModel is a comment on a post.
type CommentModel struct {
	Base
	PostID    string     `json:"post_id"   gorm:"type:char(36);not null;index;index:idx_comment_post_created,priority:1"`
	AuthorID  string     `json:"author_id" gorm:"type:char(36);not null;index"`
	Author    *UserModel `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Content   string     `json:"content"   gorm:"type:text;not null"`
	CreatedAt time.Time  `json:"created"   gorm:"index:idx_comment_post_created,priority:2"`
}

func (CommentModel) TableName() string { return "comments" }

// LikeModel is unique per (user, post).
type LikeModel struct {
	Base
	UserID string `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_like_user_post,priority:1"`
	PostID string `json:"post_id" gorm:"type:char(36);not null;index;uniqueIndex:idx_like_user_post,priority:2"`
}

func (LikeModel) TableName() string { return "likes" }

// BookmarkModel is unique per (user, post).
type BookmarkModel struct {
	Base
	UserID string `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:idx_bookmark_user_post,priority:1"`
	PostID string `json:"post_id" gorm:"type:char(36);not null;index;uniqueIndex:idx_bookmark_user_post,priority:2"`
}

func (BookmarkModel) TableName() string { return "bookmarks" }

// FollowModel is unique per (follower, following).
type FollowModel struct {
	Base
	FollowerID  string `json:"follower_id"  gorm:"type:char(36);not null;uniqueIndex:idx_follow_pair,priority:1"`
	FollowingID string `json:"following_id" gorm:"type:char(36);not null;index;uniqueIndex:idx_follow_pair,priority:2"`
}

func (FollowModel) TableName() string { return "follows" }

// ShareModel records a user sharing a post, once per (post, user).
type ShareModel struct {
	Base
	PostID     string     `json:"post_id"     gorm:"type:char(36);not null;uniqueIndex:idx_share_post_user,priority:1"`
	SharedByID string     `json:"shared_by_id" gorm:"type:char(36);not null;index;uniqueIndex:idx_share_post_user,priority:2"`
	SharedBy   *UserModel `json:"shared_by,omitempty" gorm:"foreignKey:SharedByID"`
}

func (ShareModel) TableName() string { return "shares" }
