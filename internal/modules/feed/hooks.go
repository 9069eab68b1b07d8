package feed

import (
	"github.com/futureofwork/core/internal/models"
	"gorm.io/gorm"
)

// CreateStats gives a new account its zeroed counters.
func CreateStats(tx *gorm.DB, u *models.UserModel) error {
	return tx.Create(&models.UserStatModel{UserID: u.ID}).Error
}

// PurgeUser removes everything an account contributed to the feed and
// corrects the counters of the accounts it interacted with.
func PurgeUser(tx *gorm.DB, u *models.UserModel) error {
	for _, r := range []struct{ table, userColumn, stat string }{
		{"likes", "user_id", statLikes},
		{"comments", "author_id", statComments},
		{"shares", "shared_by_id", statShares},
	} {
		if err := releaseInteractions(tx, r.table, r.userColumn, r.stat, u.ID); err != nil {
			return err
		}
	}
	if err := tx.Where("user_id = ?", u.ID).Delete(&models.BookmarkModel{}).Error; err != nil {
		return err
	}

	if err := releaseFollows(tx, "follower_id", "following_id", statFollowers, u.ID); err != nil {
		return err
	}
	if err := releaseFollows(tx, "following_id", "follower_id", statFollowing, u.ID); err != nil {
		return err
	}

	owned := tx.Model(&models.PostModel{}).Select("id").Where("author_id = ?", u.ID)
	for _, m := range []interface{}{
		&models.LikeModel{},
		&models.CommentModel{},
		&models.ShareModel{},
		&models.BookmarkModel{},
		&models.PostDailyStatModel{},
	} {
		if err := tx.Where("post_id IN (?)", owned).Delete(m).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("author_id = ?", u.ID).Delete(&models.PostModel{}).Error; err != nil {
		return err
	}
	return tx.Where("user_id = ?", u.ID).Delete(&models.UserStatModel{}).Error
}

// releaseFollows drops follow rows where self sits in selfColumn and takes
// one off statColumn of each account on the other side.
func releaseFollows(tx *gorm.DB, selfColumn, otherColumn, statColumn, userID string) error {
	var others []string
	if err := tx.Model(&models.FollowModel{}).Where(selfColumn+" = ?", userID).Pluck(otherColumn, &others).Error; err != nil {
		return err
	}
	for _, id := range others {
		if err := bumpUser(tx, id, statColumn, -1); err != nil {
			return err
		}
	}
	return tx.Where(selfColumn+" = ?", userID).Delete(&models.FollowModel{}).Error
}
