package models

// UserStatModel holds denormalized counters for one account. Likes, comments and shares
// count activity received on the account's posts.
type UserStatModel struct {
	Base
	UserID         string `json:"user_id"         gorm:"type:char(36);uniqueIndex;not null"`
	PostsCount     int64  `json:"posts_count"     gorm:"not null"`
	LikesCount     int64  `json:"likes_count"     gorm:"not null"`
	CommentsCount  int64  `json:"comments_count"  gorm:"not null"`
	SharesCount    int64  `json:"shares_count"    gorm:"not null"`
	FollowersCount int64  `json:"followers_count" gorm:"not null"`
	FollowingCount int64  `json:"following_count" gorm:"not null"`
}

func (UserStatModel) TableName() string { return "user_stats" }

// PostDailyStatModel counts interactions a post received on one UTC day (YYYY-MM-DD).
type PostDailyStatModel struct {
	Base
	PostID   string `json:"post_id"  gorm:"type:char(36);not null;uniqueIndex:idx_post_day,priority:1"`
	Day      string `json:"day"      gorm:"size:10;not null;uniqueIndex:idx_post_day,priority:2"`
	Likes    int64  `json:"likes"    gorm:"not null"`
	Comments int64  `json:"comments" gorm:"not null"`
	Shares   int64  `json:"shares"   gorm:"not null"`
}

func (PostDailyStatModel) TableName() string { return "post_daily_stats" }
