package auth

import "errors"

// Sentinel errors for the OTP and session flows. Messages are user-facing and
// deliberately distinct: the remediation for a malformed number, an exhausted
// challenge, and an expired challenge are all different.
var (
	// ErrInvalidPhoneFormat means the input did not reduce to a 10-digit
	// national number or a 12-digit number with the country prefix.
	ErrInvalidPhoneFormat = errors.New("phone number must be a 10-digit mobile number, with or without the 91 country prefix")

	// ErrChallengeNotFound means no challenge exists for the phone number.
	ErrChallengeNotFound = errors.New("no verification code was requested for this number")

	// ErrAlreadyUsed means the challenge was already redeemed. A verified
	// challenge can never be consumed again, even with the correct code.
	ErrAlreadyUsed = errors.New("this verification code has already been used")

	// ErrTooManyAttempts means the per-challenge attempt cap was reached.
	ErrTooManyAttempts = errors.New("too many incorrect attempts; request a new verification code")

	// ErrChallengeExpired means the challenge outlived its TTL.
	ErrChallengeExpired = errors.New("this verification code has expired; request a new one")

	// ErrInvalidCode means the submitted code did not match.
	ErrInvalidCode = errors.New("incorrect verification code")

	// ErrIssuanceRateLimited means too many codes were requested for the
	// number inside the issuance window.
	ErrIssuanceRateLimited = errors.New("too many verification codes requested; wait a few minutes and try again")

	// ErrDeliveryFailed means the outbound SMS was not delivered.
	ErrDeliveryFailed = errors.New("could not deliver the verification code")

	// ErrStoreRead and ErrStoreWrite classify persistence failures; the
	// underlying cause is attached with errors.Join.
	ErrStoreRead  = errors.New("reading authentication state failed")
	ErrStoreWrite = errors.New("writing authentication state failed")

	// ErrProfileFetchFailed marks a failed profile or role fetch. It never
	// invalidates an authenticated session; the principal stays signed in
	// with a degraded profile.
	ErrProfileFetchFailed = errors.New("fetching the user profile failed")

	// ErrProviderSignOutFailed marks a failed provider-side sign-out. Local
	// sign-out proceeds regardless.
	ErrProviderSignOutFailed = errors.New("identity provider sign-out failed")

	// ErrProfileNotFound means no profile record exists for the lookup key.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrNoSessionRecord means no persisted phone-session blob exists.
	ErrNoSessionRecord = errors.New("no persisted session")
)
