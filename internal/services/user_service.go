package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/repositories"
	"golang.org/x/text/language"
)

var (
	// ErrUserInvalidInput signals the caller provided invalid data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the profile could not be located.
	ErrUserNotFound = errors.New("user: not found")
)

// UserServiceDeps bundles collaborators for the profile projection.
type UserServiceDeps struct {
	Users repositories.UserRepository
	Clock func() time.Time
}

type userService struct {
	users repositories.UserRepository
	clock func() time.Time
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &userService{
		users: deps.Users,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return UserProfile{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return UserProfile{}, err
	}
	return profile, nil
}

// SyncProfile projects the authenticated identity into Firestore. The first
// call creates the row; later calls refresh the mutable fields.
func (s *userService) SyncProfile(ctx context.Context, cmd SyncProfileCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	now := s.clock()
	profile := domain.UserProfile{
		ID:              userID,
		DisplayName:     strings.TrimSpace(cmd.DisplayName),
		Email:           strings.TrimSpace(cmd.Email),
		PhoneNumber:     strings.TrimSpace(cmd.PhoneNumber),
		Roles:           normalizeRoles(cmd.Roles),
		PreferredLocale: canonicalLocale(cmd.AcceptLanguage),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if existing, err := s.users.FindByID(ctx, userID); err == nil {
		profile.CreatedAt = existing.CreatedAt
		profile.IsActive = existing.IsActive
		if profile.DisplayName == "" {
			profile.DisplayName = existing.DisplayName
		}
		if profile.PhoneNumber == "" {
			profile.PhoneNumber = existing.PhoneNumber
		}
		if len(profile.Roles) == 0 {
			profile.Roles = existing.Roles
		}
		if profile.PreferredLocale == "" {
			profile.PreferredLocale = existing.PreferredLocale
		}
	} else if !isNotFound(err) {
		return UserProfile{}, err
	}

	stored, err := s.users.Upsert(ctx, profile)
	if err != nil {
		return UserProfile{}, err
	}
	return stored, nil
}

// canonicalLocale picks the highest-ranked tag from an Accept-Language header
// and normalises it to BCP 47 form. Malformed headers are ignored rather than
// failing the sync, since the value comes straight off the wire.
func canonicalLocale(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}

func normalizeRoles(roles []string) []string {
	var out []string
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" || slices.Contains(out, role) {
			continue
		}
		out = append(out, role)
	}
	slices.Sort(out)
	return out
}
