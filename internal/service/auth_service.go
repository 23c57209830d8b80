package service

import (
	"context"
	"errors"
	"fmt"
	"intellearn_backend/internal/config"
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"
	"intellearn_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

type RegisterInput struct {
	Name     string         `json:"name" binding:"required,max=150"`
	Email    string         `json:"email" binding:"required,email"`
	Password string         `json:"password" binding:"required,min=8"`
	Role     model.UserRole `json:"role" binding:"omitempty,user_role"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if in.Role == "" {
		in.Role = model.Student
	}
	if !in.Role.Valid() {
		v := util.NewValidationError()
		v.Add("role", "must be student or instructor")
		return nil, v
	}

	_, err := s.UserRepo.FindByEmail(ctx, in.Email)
	if err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: string(hashedPassword),
		Role:     in.Role,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrEmailRegistered
		}
		return nil, err
	}
	return user, nil
}

// Login returns a signed token and the user it was issued for.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, util.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// SeedSuperuser creates the configured superuser once. Existing accounts are promoted,
// never overwritten.
func (s *AuthService) SeedSuperuser(ctx context.Context) error {
	su := s.Cfg.Superuser
	if su.Email == "" || su.Password == "" {
		return nil
	}

	user, err := s.UserRepo.FindByEmail(ctx, su.Email)
	switch {
	case err == nil:
		if user.IsSuperuser && user.IsStaff {
			return nil
		}
		user.IsSuperuser = true
		user.IsStaff = true
		return s.UserRepo.Update(ctx, user)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("look up superuser: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	name := su.Name
	if name == "" {
		name = "Administrator"
	}
	user = &model.User{
		Name:        name,
		Email:       su.Email,
		Password:    string(hashedPassword),
		Role:        model.Instructor,
		IsStaff:     true,
		IsSuperuser: true,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("create superuser: %w", err)
	}
	logger.Log.Info("Superuser created", zap.String("email", user.Email))
	return nil
}
