package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	mocks "github.com/tiffinlabs/tiffin-auth/internal/mocks/auth"
)

func TestComplete_FillsSynthesizedProfile(t *testing.T) {
	ctx := context.Background()
	profiles := mocks.NewMemoryProfileStore()
	clock := mocks.NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewProfileService(ProfileServiceOptions{Profiles: profiles, Clock: clock})

	uid := domainauth.PhonePrincipalID("919876543210")
	require.NoError(t, profiles.Upsert(ctx, domainauth.Profile{
		UID:         uid,
		PhoneNumber: "919876543210",
		UserType:    domainauth.RoleUser,
	}))

	got, err := svc.Complete(ctx, uid, "  Asha Rao ", "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.DisplayName)
	assert.Equal(t, "asha@example.com", got.Email)
	assert.True(t, got.Complete())
	assert.Equal(t, clock.Now(), got.UpdatedAt)

	stored, err := profiles.GetByUID(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", stored.DisplayName)
}

func TestComplete_RequiresDisplayName(t *testing.T) {
	svc := NewProfileService(ProfileServiceOptions{Profiles: mocks.NewMemoryProfileStore()})

	_, err := svc.Complete(context.Background(), "uid-1", "   ", "")
	assert.Error(t, err)
}

func TestComplete_CreatesProfileWhenMissing(t *testing.T) {
	ctx := context.Background()
	profiles := mocks.NewMemoryProfileStore()
	svc := NewProfileService(ProfileServiceOptions{Profiles: profiles})

	got, err := svc.Complete(ctx, "uid-new", "Ravi", "")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, got.UserType)
	assert.Empty(t, got.Email)
}
