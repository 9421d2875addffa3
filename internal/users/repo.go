// Package users reads the user directory maintained by the auth service.
package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
)

// ErrNotFound is returned when no directory entry exists for the id.
var ErrNotFound = errors.New("user not found")

// Repository exposes directory lookups.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a user by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Contact returns the email address and display name used by the mail sink.
func (r *Repository) Contact(ctx context.Context, id uuid.UUID) (email, name string, err error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	return user.Email, user.FullName, nil
}
