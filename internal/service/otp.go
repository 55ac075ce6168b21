package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

const (
	issuanceWindow    = 10 * time.Minute
	maxIssuesInWindow = 3
)

// OTPServiceOptions groups dependencies for OTPService.
type OTPServiceOptions struct {
	Challenges ports.ChallengeStore
	Profiles   ports.ProfileStore
	Sender     ports.MessageSender
	Clock      ports.Clock
	Logger     *slog.Logger
}

// OTPService issues and verifies one-time-password challenges for phone
// sign-in. Issuance overwrites any prior challenge for the number; verification
// is strictly single-use and attempt-capped.
type OTPService struct {
	challenges ports.ChallengeStore
	profiles   ports.ProfileStore
	sender     ports.MessageSender
	clock      ports.Clock
	logger     *slog.Logger
}

// NewOTPService constructs a new OTPService.
func NewOTPService(opts OTPServiceOptions) *OTPService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &OTPService{
		challenges: opts.Challenges,
		profiles:   opts.Profiles,
		sender:     opts.Sender,
		clock:      clock,
		logger:     logger,
	}
}

// Issue generates a challenge for the number and dispatches the code by SMS.
// The plaintext code is never logged or returned to the caller.
func (s *OTPService) Issue(ctx context.Context, rawPhone string) error {
	phone, err := domainauth.NormalizePhone(rawPhone)
	if err != nil {
		return err
	}

	issued, err := s.challenges.CountIssued(ctx, phone, issuanceWindow)
	if err != nil {
		return errors.Join(domainauth.ErrStoreRead, err)
	}
	if issued >= maxIssuesInWindow {
		s.logger.Warn("otp issuance rate limited", "phone", phone.String())
		return domainauth.ErrIssuanceRateLimited
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	now := s.clock.Now()
	ch := domainauth.Challenge{
		PhoneNumber: phone.String(),
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domainauth.ChallengeTTL),
		Attempts:    0,
		Verified:    false,
	}
	if err := s.challenges.Put(ctx, ch); err != nil {
		return errors.Join(domainauth.ErrStoreWrite, err)
	}

	delivered, err := s.sender.Send(ctx, ports.Message{
		To:         phone,
		TemplateID: ports.TemplateOTP,
		Vars: map[string]string{
			"name": s.recipientName(ctx, phone),
			"otp":  code,
		},
	})
	if err != nil {
		return errors.Join(domainauth.ErrDeliveryFailed, err)
	}
	if !delivered {
		return domainauth.ErrDeliveryFailed
	}

	// Only delivered codes count against the window; a failed dispatch must
	// not rate-limit a caller who never received one.
	if _, ierr := s.challenges.IncrementIssued(ctx, phone, issuanceWindow); ierr != nil {
		s.logger.Error("record issuance", "phone", phone.String(), "error", ierr)
	}

	s.logger.Info("otp issued", "phone", phone.String(), "expires_at", ch.ExpiresAt)
	return nil
}

// recipientName resolves a display name for the message template. Best effort;
// numbers without a profile get an empty name and the template copes.
func (s *OTPService) recipientName(ctx context.Context, phone domainauth.CanonicalPhone) string {
	profile, err := s.profiles.GetByPhone(ctx, phone)
	if err != nil {
		return ""
	}
	return profile.DisplayName
}

// Verify checks a submitted code against the stored challenge and resolves the
// principal on success.
//
// The checks run in a fixed order: missing, already used, attempts exhausted,
// expired, then code mismatch. Already-used and attempt-exhaustion come before
// expiry so a stale-but-exhausted challenge reports the more actionable error.
func (s *OTPService) Verify(ctx context.Context, rawPhone, code string) (domainauth.Principal, domainauth.Profile, error) {
	var none domainauth.Principal
	var noProfile domainauth.Profile

	phone, err := domainauth.NormalizePhone(rawPhone)
	if err != nil {
		return none, noProfile, err
	}

	ch, err := s.challenges.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, domainauth.ErrChallengeNotFound) {
			return none, noProfile, domainauth.ErrChallengeNotFound
		}
		return none, noProfile, errors.Join(domainauth.ErrStoreRead, err)
	}

	if ch.Verified {
		return none, noProfile, domainauth.ErrAlreadyUsed
	}
	if ch.Attempts >= domainauth.MaxVerifyAttempts {
		return none, noProfile, domainauth.ErrTooManyAttempts
	}
	if ch.Expired(s.clock.Now()) {
		return none, noProfile, domainauth.ErrChallengeExpired
	}
	if ch.Code != code {
		if _, ierr := s.challenges.IncrementAttempts(ctx, phone); ierr != nil {
			s.logger.Error("record failed attempt", "phone", phone.String(), "error", ierr)
		}
		return none, noProfile, domainauth.ErrInvalidCode
	}

	if err := s.challenges.MarkVerified(ctx, phone, s.clock.Now()); err != nil {
		return none, noProfile, errors.Join(domainauth.ErrStoreWrite, err)
	}

	principal, profile := s.resolvePrincipal(ctx, phone)
	s.logger.Info("otp verified", "phone", phone.String(), "principal", principal.ID)
	return principal, profile, nil
}

// resolvePrincipal returns the existing profile for the number, or synthesizes
// a minimal user principal that still needs profile completion. A profile
// store failure degrades to the synthesized principal rather than failing the
// verification: the code was correct, so the caller is authenticated.
func (s *OTPService) resolvePrincipal(ctx context.Context, phone domainauth.CanonicalPhone) (domainauth.Principal, domainauth.Profile) {
	profile, err := s.profiles.GetByPhone(ctx, phone)
	if err == nil {
		return profile.Principal(), profile
	}
	if !errors.Is(err, domainauth.ErrProfileNotFound) {
		s.logger.Error("profile lookup failed, synthesizing principal",
			"phone", phone.String(), "error", errors.Join(domainauth.ErrProfileFetchFailed, err))
	}

	now := s.clock.Now()
	minimal := domainauth.Profile{
		UID:         domainauth.PhonePrincipalID(phone),
		PhoneNumber: phone.String(),
		UserType:    domainauth.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if uerr := s.profiles.Upsert(ctx, minimal); uerr != nil {
		s.logger.Error("persist minimal profile failed", "uid", minimal.UID, "error", uerr)
	}
	return minimal.Principal(), minimal
}

// generateCode returns a uniformly random 6-digit code in 100000..999999.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
