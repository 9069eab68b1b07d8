package feed

import "time"

const (
	maxPostLength    = 5000
	maxCommentLength = 2000
)

type PostDTO struct {
	Content string `json:"content"`
}

type CommentDTO struct {
	Content string `json:"content"`
}

type AuthorView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// PostView is a post with its author and interaction counts.
type PostView struct {
	ID            string      `json:"id"`
	Author        *AuthorView `json:"author"`
	Content       string      `json:"content"`
	Created       time.Time   `json:"created"`
	Modified      time.Time   `json:"modified"`
	LikesCount    int64       `json:"likes_count"`
	CommentsCount int64       `json:"comments_count"`
	SharesCount   int64       `json:"shares_count"`
}

type CommentView struct {
	ID       string      `json:"id"`
	PostID   string      `json:"post_id"`
	Author   *AuthorView `json:"author"`
	Content  string      `json:"content"`
	Created  time.Time   `json:"created"`
	Modified time.Time   `json:"modified"`
}

type ShareView struct {
	ID       string      `json:"id"`
	PostID   string      `json:"post_id"`
	SharedBy *AuthorView `json:"shared_by"`
	Created  time.Time   `json:"created"`
}
