package user

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/database"
	"github.com/kinexbt/coin-yaps/internal/models"
)

// Identity is the profile asserted by a session token
type Identity struct {
	ProviderID string
	Email      string
	Name       string
	Username   string
	Image      string
}

// UserRepository interface defines user database operations
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertFromIdentity(ctx context.Context, identity Identity) (*models.User, error)
}

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if id == 0 {
		return nil, nil
	}

	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, database.Translate(err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, database.Translate(err)
	}
	return &user, nil
}

// UpsertFromIdentity returns the user for identity, creating it on first
// sign-in and refreshing changed profile fields afterwards
func (r *userRepository) UpsertFromIdentity(ctx context.Context, identity Identity) (*models.User, error) {
	identity.Email = normalizeEmail(identity.Email)
	if identity.Email == "" {
		return nil, apperrors.InvalidArgument("identity has no email")
	}

	existing, err := r.GetByEmail(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		created := &models.User{
			ProviderID: identity.ProviderID,
			Email:      identity.Email,
			Name:       identity.Name,
			Username:   identity.Username,
			Image:      identity.Image,
		}
		err := r.db.WithContext(ctx).Create(created).Error
		if err == nil {
			return created, nil
		}
		if !database.IsDuplicateKey(err) {
			return nil, database.Translate(err)
		}
		// first sign-in raced with another request for the same account
		existing, err = r.GetByEmail(ctx, identity.Email)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, apperrors.Storage(errors.New("user vanished after duplicate insert"))
		}
	}

	updates := profileUpdates(existing, identity)
	if len(updates) == 0 {
		return existing, nil
	}
	if err := r.db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
		return nil, database.Translate(err)
	}
	applyIdentity(existing, identity)
	return existing, nil
}

func applyIdentity(u *models.User, identity Identity) {
	if identity.Name != "" {
		u.Name = identity.Name
	}
	if identity.Username != "" {
		u.Username = identity.Username
	}
	if identity.Image != "" {
		u.Image = identity.Image
	}
	if identity.ProviderID != "" {
		u.ProviderID = identity.ProviderID
	}
}

// profileUpdates lists the non-empty identity fields that differ from u
func profileUpdates(u *models.User, identity Identity) map[string]interface{} {
	updates := map[string]interface{}{}
	if identity.Name != "" && identity.Name != u.Name {
		updates["name"] = identity.Name
	}
	if identity.Username != "" && identity.Username != u.Username {
		updates["username"] = identity.Username
	}
	if identity.Image != "" && identity.Image != u.Image {
		updates["image"] = identity.Image
	}
	if identity.ProviderID != "" && identity.ProviderID != u.ProviderID {
		updates["provider_id"] = identity.ProviderID
	}
	return updates
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
