package models

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&UserModel{},
		&ProfileModel{},
		&OAuthAccountModel{},
		&RefreshTokenModel{},
		&DeviceSessionModel{},
		&IPActivityModel{},
		&BlacklistedIPModel{},
		&PostModel{},
		&CommentModel{},
		&LikeModel{},
		&BookmarkModel{},
		&FollowModel{},
		&ShareModel{},
		&UserStatModel{},
		&PostDailyStatModel{},
	}
}
