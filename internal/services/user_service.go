package services

import (
	"errors"
	"time"

	"persona_chat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserService resolves authenticated identities to user rows and manages the
// personalization profile. It implements ProfileStore.
type UserService struct {
	db *gorm.DB
}

var _ ProfileStore = (*UserService)(nil)

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// GetOrCreateUser looks the user up by the email carried in the token claims,
// creating the row on first sight. Last login is touched on every call.
func (s *UserService) GetOrCreateUser(email, name, nickname string) (*models.User, error) {
	user := models.User{
		Email:    email,
		Name:     name,
		Nickname: nickname,
	}
	if err := s.db.Where(models.User{Email: email}).FirstOrCreate(&user).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.db.Model(&user).Update("last_login_at", &now).Error; err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	return &user, nil
}

func (s *UserService) GetUserByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetProfile returns the user's profile, or nil when none has been saved yet.
func (s *UserService) GetProfile(userID uuid.UUID) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.db.Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile writes the profile, replacing any previous one for the user.
func (s *UserService) UpsertProfile(profile *models.UserProfile) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"interests", "skills", "goals", "updated_at"}),
	}).Create(profile).Error
}
