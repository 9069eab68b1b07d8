package account

import (
	"context"
	"errors"
	"strings"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"gorm.io/gorm"
)

// GetProfile returns the profile of userID, creating an empty one for
// accounts that predate profiles.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.ProfileModel, error) {
	if _, err := s.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	var p models.ProfileModel
	err := s.db.WithContext(ctx).
		Where(models.ProfileModel{UserID: userID}).
		FirstOrCreate(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, dto *UpdateProfileDTO) (*models.ProfileModel, error) {
	dto.Bio = trimmed(dto.Bio)
	dto.Avatar = trimmed(dto.Avatar)
	if dto.Country != nil {
		v := strings.ToUpper(strings.TrimSpace(*dto.Country))
		dto.Country = &v
	}
	dto.PhoneNumber = trimmed(dto.PhoneNumber)
	// An empty string clears a field, so only non-empty values are validated.
	checked := *dto
	checked.Avatar = nonEmpty(dto.Avatar)
	checked.Country = nonEmpty(dto.Country)
	checked.PhoneNumber = nonEmpty(dto.PhoneNumber)
	if err := s.check(&checked); err != nil {
		return nil, err
	}

	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if dto.Bio != nil {
		updates["bio"] = *dto.Bio
	}
	if dto.Avatar != nil {
		updates["avatar"] = *dto.Avatar
	}
	if dto.Country != nil {
		updates["country"] = *dto.Country
	}
	if dto.Gender != nil {
		updates["gender"] = *dto.Gender
	}
	if dto.PhoneNumber != nil {
		if *dto.PhoneNumber == "" {
			updates["phone_number"] = nil
		} else {
			var n int64
			if err := s.db.WithContext(ctx).Model(&models.ProfileModel{}).
				Where("phone_number = ? AND user_id <> ?", *dto.PhoneNumber, userID).
				Count(&n).Error; err != nil {
				return nil, err
			}
			if n > 0 {
				return nil, phoneTaken()
			}
			updates["phone_number"] = *dto.PhoneNumber
		}
	}
	if len(updates) == 0 {
		return p, nil
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(p).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, phoneTaken()
		}
		return nil, err
	}
	var out models.ProfileModel
	if err := db.First(&out, "id = ?", p.ID).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func phoneTaken() error {
	return apperr.Validation("phone_number", "Phone number already in use.")
}
