package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/adunni-couture/api/internal/domain"
	pfirestore "github.com/adunni-couture/api/internal/platform/firestore"
	"github.com/adunni-couture/api/internal/repositories"
)

const userCollection = "users"

// UserRepository stores the Firestore projection of Firebase Auth users. The
// document ID is the Firebase UID.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection)
	return &UserRepository{base: base}, nil
}

// Upsert writes the profile document keyed by the user ID.
func (r *UserRepository) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(profile.ID)
	if id == "" {
		return domain.UserProfile{}, errors.New("user repository: profile id is required")
	}
	if _, err := r.base.Set(ctx, id, fromDomainUserProfile(profile)); err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}

// FindByID loads a single profile.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.UserProfile{}, err
	}
	return toDomainUserProfile(doc.ID, doc.Data), nil
}

type userDocument struct {
	DisplayName     string    `firestore:"displayName,omitempty"`
	Email           string    `firestore:"email,omitempty"`
	PhoneNumber     string    `firestore:"phoneNumber,omitempty"`
	Roles           []string  `firestore:"roles"`
	PreferredLocale string    `firestore:"preferredLocale,omitempty"`
	IsActive        bool      `firestore:"isActive"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func fromDomainUserProfile(profile domain.UserProfile) userDocument {
	doc := userDocument{
		DisplayName:     strings.TrimSpace(profile.DisplayName),
		Email:           strings.ToLower(strings.TrimSpace(profile.Email)),
		PhoneNumber:     strings.TrimSpace(profile.PhoneNumber),
		Roles:           profile.Roles,
		PreferredLocale: strings.TrimSpace(profile.PreferredLocale),
		IsActive:        profile.IsActive,
		CreatedAt:       profile.CreatedAt.UTC(),
		UpdatedAt:       profile.UpdatedAt.UTC(),
	}
	if doc.Roles == nil {
		doc.Roles = []string{}
	}
	return doc
}

func toDomainUserProfile(docID string, doc userDocument) domain.UserProfile {
	return domain.UserProfile{
		ID:              docID,
		DisplayName:     doc.DisplayName,
		Email:           doc.Email,
		PhoneNumber:     doc.PhoneNumber,
		Roles:           doc.Roles,
		PreferredLocale: doc.PreferredLocale,
		IsActive:        doc.IsActive,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
