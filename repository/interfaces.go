package repository

import (
	"github.com/mjbphoto/gallery/models"
)

// UserRepository defines the methods for admin account data operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	// EnsureAdmin creates the account when missing and resets its password
	// when it differs from the configured one.
	EnsureAdmin(email, password string) (*models.User, error)
}
