package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mjbphoto/gallery/models"
	"gorm.io/gorm"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormUserRepository) Create(user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	return r.db.Create(user).Error
}

func (r *GormUserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *GormUserRepository) EnsureAdmin(email, password string) (*models.User, error) {
	if normalizeEmail(email) == "" || password == "" {
		return nil, fmt.Errorf("admin email and password are required")
	}

	user, err := r.GetByEmail(email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to query admin account %s: %w", email, err)
		}
		newUser := &models.User{Email: email}
		if err := newUser.SetPassword(password); err != nil {
			return nil, fmt.Errorf("failed to hash admin password: %w", err)
		}
		if err := r.Create(newUser); err != nil {
			return nil, fmt.Errorf("failed to create admin account %s: %w", email, err)
		}
		return newUser, nil
	}

	if user.CheckPassword(password) {
		return user, nil
	}
	if err := user.SetPassword(password); err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	if err := r.Update(user); err != nil {
		return nil, fmt.Errorf("failed to update admin account %s: %w", email, err)
	}
	return user, nil
}
