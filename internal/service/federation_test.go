package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/federation"
	"github.com/utafrali/bullseye/internal/repository/memory"
)

func TestGoogleAuth_CreatesUserOnFirstSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.identity.On("Verify", mock.Anything, "id-token").Return(&federation.Claims{
		UID: "g-1", Email: "G@Gmail.com", EmailVerified: true, Name: "Gina", Picture: "https://pic/1",
	}, nil).Once()

	res, err := f.svc.GoogleAuth(ctx, "id-token", "")
	require.NoError(t, err)

	assert.Equal(t, "g@gmail.com", res.User.Email)
	assert.Equal(t, "Gina", res.User.Username)
	assert.Equal(t, domain.SignupGoogle, res.User.SignupMethod)
	assert.True(t, res.User.IsEmailVerified)
	require.NotNil(t, res.User.ProfilePicture)
	assert.Equal(t, "https://pic/1", *res.User.ProfilePicture)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	f.identity.AssertExpectations(t)

	_, err = f.svc.Login(ctx, "g@gmail.com", "")
	assertAppError(t, err, http.StatusUnauthorized, "invalid email or password")
}

func TestGoogleAuth_ExistingGoogleUserSyncsProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.identity.On("Verify", mock.Anything, "first").Return(&federation.Claims{
		Email: "g@gmail.com", EmailVerified: false, Name: "Gina",
	}, nil).Once()
	f.identity.On("Verify", mock.Anything, "second").Return(&federation.Claims{
		Email: "g@gmail.com", EmailVerified: true, Picture: "https://pic/2",
	}, nil).Once()

	first, err := f.svc.GoogleAuth(ctx, "first", "")
	require.NoError(t, err)
	assert.False(t, first.User.IsEmailVerified)

	second, err := f.svc.GoogleAuth(ctx, "second", "gina_g")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "gina_g", second.User.Username)
	assert.True(t, second.User.IsEmailVerified)
	require.NotNil(t, second.User.ProfilePicture)
	assert.Equal(t, "https://pic/2", *second.User.ProfilePicture)

	_, err = f.svc.RefreshToken(ctx, first.Tokens.RefreshToken)
	assertAppError(t, err, http.StatusUnauthorized, "")
}

func TestGoogleAuth_EmailRegisteredWithPasswordConflicts(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@x.com")
	f.identity.On("Verify", mock.Anything, "tok").Return(&federation.Claims{Email: "a@x.com", EmailVerified: true}, nil)

	_, err := f.svc.GoogleAuth(context.Background(), "tok", "")
	assertAppError(t, err, http.StatusConflict, "")
}

func TestGoogleAuth_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.identity.On("Verify", mock.Anything, "bad").Return(nil, federation.ErrVerificationFailed)
	f.identity.On("Verify", mock.Anything, "no-email").Return(&federation.Claims{UID: "g-2"}, nil)

	_, err := f.svc.GoogleAuth(ctx, "bad", "")
	assertAppError(t, err, http.StatusUnauthorized, "invalid google token")

	_, err = f.svc.GoogleAuth(ctx, "no-email", "")
	assertAppError(t, err, http.StatusBadRequest, "google account has no email address")
}

func TestGoogleAuth_DeactivatedUserIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.identity.On("Verify", mock.Anything, "tok").Return(&federation.Claims{Email: "g@gmail.com", EmailVerified: true}, nil)

	res, err := f.svc.GoogleAuth(ctx, "tok", "")
	require.NoError(t, err)
	stored, err := f.users.GetByID(ctx, res.User.ID)
	require.NoError(t, err)
	stored.IsActive = false
	require.NoError(t, f.users.Update(ctx, stored))

	_, err = f.svc.GoogleAuth(ctx, "tok", "")
	assertAppError(t, err, http.StatusForbidden, "account is deactivated")
}

func TestGoogleAuth_NoProvider(t *testing.T) {
	f := newFixture(t)
	f.svc.identity = nil

	_, err := f.svc.GoogleAuth(context.Background(), "tok", "")
	assertAppError(t, err, http.StatusUnauthorized, "")
}

// --- Guests ---

func TestGuestLogin_IsVerifiedAndSignedIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.GuestLogin(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, domain.UserTypeGuest, res.User.UserType)
	assert.True(t, res.User.IsEmailVerified)
	assert.True(t, strings.HasPrefix(res.User.Email, "guest_"))
	assert.True(t, strings.HasSuffix(res.User.Email, "@guest.local"))
	assert.True(t, strings.HasPrefix(res.User.Username, "guest_"))
	require.NotNil(t, res.Tokens)
	assert.Zero(t, f.notifier.count())

	au, err := f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.UserTypeGuest, au.UserType)

	named, err := f.svc.GuestLogin(ctx, "visitor")
	require.NoError(t, err)
	assert.Equal(t, "visitor", named.User.Username)
	assert.NotEqual(t, res.User.Email, named.User.Email)
}

func TestConvertGuest_BecomesUnverifiedRegisteredUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest, err := f.svc.GuestLogin(ctx, "")
	require.NoError(t, err)

	res, err := f.svc.ConvertGuestToRegistered(ctx, guest.User.ID, ConvertGuestInput{
		Email: "New@x.com", Password: testPassword, Username: "newbie",
	})
	require.NoError(t, err)

	assert.Equal(t, guest.User.ID, res.User.ID)
	assert.Equal(t, "new@x.com", res.User.Email)
	assert.Equal(t, "newbie", res.User.Username)
	assert.Equal(t, domain.UserTypeRegistered, res.User.UserType)
	assert.False(t, res.User.IsEmailVerified)
	require.NotNil(t, res.Tokens)

	sent := f.notifier.last(t)
	assert.Equal(t, "new@x.com", sent.email)
	assert.Equal(t, domain.OTPEmailVerification, sent.typ)

	_, err = f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	assertAppError(t, err, http.StatusForbidden, "please verify your email")

	_, err = f.svc.VerifyOTP(ctx, "new@x.com", sent.code, domain.OTPEmailVerification)
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "new@x.com", testPassword)
	require.NoError(t, err)
}

func TestConvertGuest_NonGuestFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	session := f.verifiedUser(t, "a@x.com")
	ctx := context.Background()
	before, err := f.users.GetByID(ctx, session.User.ID)
	require.NoError(t, err)

	_, err = f.svc.ConvertGuestToRegistered(ctx, session.User.ID, ConvertGuestInput{
		Email: "other@x.com", Password: "Other1234",
	})
	assertAppError(t, err, http.StatusBadRequest, "user is already registered")

	after, err := f.users.GetByID(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConvertGuest_EmailTakenConflicts(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "taken@x.com")
	ctx := context.Background()
	guest, err := f.svc.GuestLogin(ctx, "")
	require.NoError(t, err)

	_, err = f.svc.ConvertGuestToRegistered(ctx, guest.User.ID, ConvertGuestInput{
		Email: "taken@x.com", Password: testPassword,
	})
	assertAppError(t, err, http.StatusConflict, "email already exists")

	stored, err := f.users.GetByID(ctx, guest.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsGuest())
}

func TestConvertGuest_SendFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest, err := f.svc.GuestLogin(ctx, "")
	require.NoError(t, err)
	f.notifier.err = assert.AnError

	res, err := f.svc.ConvertGuestToRegistered(ctx, guest.User.ID, ConvertGuestInput{
		Email: "n@x.com", Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UserTypeRegistered, res.User.UserType)

	// the durable OTP still allows verification
	stored, err := f.users.GetByID(ctx, guest.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.OTPCode)
	assert.True(t, stored.OTPExpiresAt.After(time.Now()))
}

type failingPasswordRepo struct{ *memory.UserRepository }

func (failingPasswordRepo) UpdatePassword(context.Context, string, string) error {
	return assert.AnError
}

func TestConvertGuest_PasswordFailureLeavesGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest, err := f.svc.GuestLogin(ctx, "")
	require.NoError(t, err)
	f.svc.users = failingPasswordRepo{f.users}

	_, err = f.svc.ConvertGuestToRegistered(ctx, guest.User.ID, ConvertGuestInput{
		Email: "n@x.com", Password: testPassword,
	})
	require.ErrorIs(t, err, assert.AnError)

	stored, err := f.users.GetByID(ctx, guest.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsGuest(), "a registered account must never be left without a password")
	assert.NotEqual(t, "n@x.com", stored.Email)
}
