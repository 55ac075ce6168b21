package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	apperrors "github.com/tiffinlabs/tiffin-auth/internal/errors"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

// ProfileServiceOptions groups dependencies for ProfileService.
type ProfileServiceOptions struct {
	Profiles ports.ProfileStore
	Clock    ports.Clock
	Logger   *slog.Logger
}

// ProfileService completes and updates principal profiles. Phone sign-ins
// start with a synthesized minimal profile; this is the explicit step that
// fills in the name and optional email before full functionality.
type ProfileService struct {
	profiles ports.ProfileStore
	clock    ports.Clock
	logger   *slog.Logger
}

// NewProfileService constructs a new ProfileService.
func NewProfileService(opts ProfileServiceOptions) *ProfileService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &ProfileService{profiles: opts.Profiles, clock: clock, logger: logger}
}

// Complete fills in the display name and optional email for the principal and
// returns the updated profile.
func (s *ProfileService) Complete(ctx context.Context, uid, displayName, email string) (domainauth.Profile, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domainauth.Profile{}, apperrors.ValidationField("displayName", "display name is required")
	}

	profile, err := s.profiles.GetByUID(ctx, uid)
	if err != nil {
		if !errors.Is(err, domainauth.ErrProfileNotFound) {
			return domainauth.Profile{}, errors.Join(domainauth.ErrProfileFetchFailed, err)
		}
		profile = domainauth.Profile{
			UID:       uid,
			UserType:  domainauth.RoleUser,
			CreatedAt: s.clock.Now(),
		}
	}

	profile.DisplayName = displayName
	if email = strings.TrimSpace(email); email != "" {
		profile.Email = email
	}
	profile.UpdatedAt = s.clock.Now()

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return domainauth.Profile{}, errors.Join(domainauth.ErrStoreWrite, err)
	}

	s.logger.Info("profile completed", "uid", uid)
	return profile, nil
}
