package feed

import (
	"time"

	"github.com/futureofwork/core/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// user_stats columns.
const (
	statPosts     = "posts_count"
	statLikes     = "likes_count"
	statComments  = "comments_count"
	statShares    = "shares_count"
	statFollowers = "followers_count"
	statFollowing = "following_count"
)

// post_daily_stats columns.
const (
	dailyLikes    = "likes"
	dailyComments = "comments"
	dailyShares   = "shares"
)

// bumpUser adds delta to one counter of userID in the database. A missing
// stats row is created first.
func bumpUser(tx *gorm.DB, userID, column string, delta int64) error {
	if delta == 0 || userID == "" {
		return nil
	}
	res := incr(tx, userID, column, delta)
	if res.Error != nil || res.RowsAffected > 0 {
		return res.Error
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserStatModel{UserID: userID}).Error; err != nil {
		return err
	}
	return incr(tx, userID, column, delta).Error
}

func incr(tx *gorm.DB, userID, column string, delta int64) *gorm.DB {
	return tx.Model(&models.UserStatModel{}).
		Where("user_id = ?", userID).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta))
}

// bumpDaily counts one interaction on postID for the UTC day of now.
func bumpDaily(tx *gorm.DB, postID, column string, now time.Time) error {
	row := &models.PostDailyStatModel{PostID: postID, Day: now.UTC().Format("2006-01-02")}
	switch column {
	case dailyLikes:
		row.Likes = 1
	case dailyComments:
		row.Comments = 1
	case dailyShares:
		row.Shares = 1
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "post_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			column:       gorm.Expr("post_daily_stats." + column + " + 1"),
			"updated_at": now,
		}),
	}).Create(row).Error
}

type authorCount struct {
	AuthorID string
	N        int64
}

// releaseInteractions removes every row userID owns in table and takes the
// matching counts off the authors of the posts involved.
func releaseInteractions(tx *gorm.DB, table, userColumn, statColumn, userID string) error {
	var counts []authorCount
	if err := tx.Table(table).
		Select("posts.author_id AS author_id, COUNT(*) AS n").
		Joins("JOIN posts ON posts.id = "+table+".post_id").
		Where(table+"."+userColumn+" = ? AND posts.author_id <> ?", userID, userID).
		Group("posts.author_id").
		Scan(&counts).Error; err != nil {
		return err
	}
	for _, c := range counts {
		if err := bumpUser(tx, c.AuthorID, statColumn, -c.N); err != nil {
			return err
		}
	}
	return tx.Exec("DELETE FROM "+table+" WHERE "+userColumn+" = ?", userID).Error
}
