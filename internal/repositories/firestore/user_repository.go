package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
	pfirestore "github.com/Sushant736/propscholar-monorepo-sub000/internal/platform/firestore"
)

// UserRepository reads account profiles from users/{uid}.
type UserRepository struct {
	users *pfirestore.Collection[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{users: pfirestore.NewCollection[userDocument](provider, usersCollection)}, nil
}

// FindProfile loads the profile by UID.
func (r *UserRepository) FindProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{
		ID:    doc.ID,
		Name:  strings.TrimSpace(doc.Data.DisplayName),
		Email: strings.TrimSpace(doc.Data.Email),
		Phone: strings.TrimSpace(doc.Data.Phone),
	}, nil
}
