package service

import (
	"context"
	"errors"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"
	"intellearn_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserService struct {
	UserRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{UserRepo: userRepo}
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}

type UpdateProfileInput struct {
	Name *string `json:"name" binding:"omitempty,min=1,max=150"`
	Bio  *string `json:"bio"`
}

func (s *UserService) UpdateProfile(ctx context.Context, id uint, in UpdateProfileInput) (*model.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Bio != nil {
		user.Bio = *in.Bio
	}
	if err := s.UserRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// ChangePassword replaces the password after checking the current one.
// Issued tokens stay valid until they expire.
func (s *UserService) ChangePassword(ctx context.Context, id uint, in ChangePasswordInput) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	v := util.NewValidationError()
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.OldPassword)); err != nil {
		v.Add("oldPassword", "is incorrect")
	}
	if len(in.NewPassword) < 8 {
		v.Add("newPassword", "must be at least 8 characters")
	} else if in.NewPassword == in.OldPassword {
		v.Add("newPassword", "must differ from the current password")
	}
	if err := v.OrNil(); err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashed)
	if err := s.UserRepo.Update(ctx, user); err != nil {
		return err
	}
	logger.Log.Info("Password changed", zap.Uint("user_id", id))
	return nil
}
