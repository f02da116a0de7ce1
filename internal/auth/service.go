package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hugh/funnel-builder/internal/allocation"
	"github.com/hugh/funnel-builder/internal/database"
	"github.com/hugh/funnel-builder/internal/database/models"
	"github.com/hugh/funnel-builder/pkg/util"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
)

type Service struct {
	db  *gorm.DB
	jwt *JWTService
}

func NewService(db *gorm.DB, jwt *JWTService) *Service {
	return &Service{db: db, jwt: jwt}
}

type RegisterInput struct {
	Email         string
	Password      string
	Name          string
	WorkspaceName string // defaults to "<Name>'s Workspace"
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token     string            `json:"token"`
	User      *models.User      `json:"user"`
	Workspace *models.Workspace `json:"workspace,omitempty"`
}

// Register creates the user together with a FREE workspace they own, so a
// new account can start building immediately.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(input.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	wsName := strings.TrimSpace(input.WorkspaceName)
	if wsName == "" {
		wsName = input.Name + "'s Workspace"
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         input.Name,
		IsActive:     true,
	}
	var ws models.Workspace

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		ws = models.Workspace{
			Name:    wsName,
			Slug:    util.UniqueSlug(wsName),
			OwnerID: user.ID,
			Plan:    allocation.PlanFree,
		}
		return tx.Create(&ws).Error
	})
	if database.IsDuplicate(err) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: &user, Workspace: &ws}, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(input.Email)).
		First(&user).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: &user}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
