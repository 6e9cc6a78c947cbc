package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/bullseye/internal/domain"
)

func TestVerifyOTP_ConsumesCodeOnce(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com")
	code := f.notifier.last(t).code
	ctx := context.Background()

	_, err := f.svc.VerifyOTP(ctx, "a@x.com", code, domain.OTPEmailVerification)
	require.NoError(t, err)

	_, err = f.svc.VerifyOTP(ctx, "a@x.com", code, domain.OTPEmailVerification)
	assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")

	_, err = f.otps.Get(ctx, domain.OTPEmailVerification, "a@x.com")
	assert.Error(t, err)
}

// wrongCode returns a six digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com")
	code := f.notifier.last(t).code

	_, err := f.svc.VerifyOTP(context.Background(), "a@x.com", wrongCode(code), domain.OTPEmailVerification)
	assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")
}

func TestVerifyOTP_CodeOfOtherTypeIsRejected(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com")
	signupCode := f.notifier.last(t).code
	ctx := context.Background()

	res, err := f.svc.VerifyOTP(ctx, "a@x.com", signupCode, domain.OTPForgotPassword)
	assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")
	assert.Nil(t, res, "no reset ticket may be minted")

	// with the staged copy gone only the durable row is consulted
	require.NoError(t, f.otps.Delete(ctx, domain.OTPEmailVerification, "a@x.com"))
	_, err = f.svc.VerifyOTP(ctx, "a@x.com", signupCode, domain.OTPForgotPassword)
	assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")

	_, err = f.svc.VerifyOTP(ctx, "a@x.com", signupCode, domain.OTPEmailVerification)
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	resetCode := f.notifier.last(t).code
	require.NoError(t, f.otps.Delete(ctx, domain.OTPForgotPassword, "a@x.com"))

	_, err = f.svc.VerifyOTP(ctx, "a@x.com", resetCode, domain.OTPEmailVerification)
	assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")

	res, err = f.svc.VerifyOTP(ctx, "a@x.com", resetCode, domain.OTPForgotPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ResetToken)
}

func TestVerifyOTP_BurnsCodeAfterRepeatedFailures(t *testing.T) {
	f := newFixtureWithOptions(t, Options{OTPTTL: 10 * time.Minute, MaxOTPAttempts: 3, RequireResetTicket: true})
	session := f.verifiedUser(t, "a@x.com")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	code := f.notifier.last(t).code
	wrong := wrongCode(code)

	for i := 0; i < 2; i++ {
		_, err := f.svc.VerifyOTP(ctx, "a@x.com", wrong, domain.OTPForgotPassword)
		assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")
	}
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", wrong, domain.OTPForgotPassword)
	assertAppError(t, err, http.StatusBadRequest, "too many failed attempts, request a new OTP")

	stored, err := f.users.GetByID(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.OTPCode)

	_, err = f.svc.VerifyOTP(ctx, "a@x.com", code, domain.OTPForgotPassword)
	require.Error(t, err, "the correct code no longer works once burned")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	fresh := f.notifier.last(t).code
	if fresh != wrong {
		_, err = f.svc.VerifyOTP(ctx, "a@x.com", wrong, domain.OTPForgotPassword)
		assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")
	}
	res, err := f.svc.VerifyOTP(ctx, "a@x.com", fresh, domain.OTPForgotPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ResetToken)
}

func TestVerifyOTP_ConcurrentVerificationSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@x.com")
	ctx := context.Background()
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	code := f.notifier.last(t).code

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		tickets []string
		start   = make(chan struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := f.svc.VerifyOTP(ctx, "a@x.com", code, domain.OTPForgotPassword)
			if err == nil {
				mu.Lock()
				tickets = append(tickets, res.ResetToken)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Len(t, tickets, 1)
}

func TestVerifyOTP_InProgressConflicts(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com")
	code := f.notifier.last(t).code
	ctx := context.Background()

	release, err := f.otps.Lock(ctx, domain.OTPEmailVerification, "a@x.com", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.VerifyOTP(ctx, "a@x.com", code, domain.OTPEmailVerification)
	assertAppError(t, err, http.StatusConflict, "OTP verification already in progress")

	release(ctx)
	_, err = f.svc.VerifyOTP(ctx, "a@x.com", code, domain.OTPEmailVerification)
	require.NoError(t, err)
}

func TestVerifyOTP_FallsBackToStoredCode(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com")
	code := f.notifier.last(t).code
	ctx := context.Background()
	require.NoError(t, f.otps.Delete(ctx, domain.OTPEmailVerification, "a@x.com"))

	res, err := f.svc.VerifyOTP(ctx, "a@x.com", code, domain.OTPEmailVerification)
	require.NoError(t, err)
	assert.True(t, res.User.IsEmailVerified)
}

func TestVerifyOTP_ExpiredStoredCode(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com")
	code := f.notifier.last(t).code
	ctx := context.Background()
	require.NoError(t, f.otps.Delete(ctx, domain.OTPEmailVerification, "a@x.com"))

	f.now = f.now.Add(11 * time.Minute)
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", code, domain.OTPEmailVerification)
	assertAppError(t, err, http.StatusBadRequest, "OTP expired")
}

func TestVerifyOTP_UnknownEmailAndType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyOTP(ctx, "nobody@x.com", "123456", domain.OTPEmailVerification)
	assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")

	_, err = f.svc.VerifyOTP(ctx, "nobody@x.com", "123456", domain.OTPType("login"))
	assertAppError(t, err, http.StatusBadRequest, "invalid OTP type")
}

func TestResendOTP_ReplacesPreviousCode(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com")
	first := f.notifier.last(t).code
	ctx := context.Background()

	require.NoError(t, f.svc.ResendOTP(ctx, "a@x.com", domain.OTPEmailVerification))
	second := f.notifier.last(t).code
	assert.Equal(t, 2, f.notifier.count())

	if first != second {
		_, err := f.svc.VerifyOTP(ctx, "a@x.com", first, domain.OTPEmailVerification)
		assertAppError(t, err, http.StatusBadRequest, "invalid or expired OTP")
	}
	_, err := f.svc.VerifyOTP(ctx, "a@x.com", second, domain.OTPEmailVerification)
	require.NoError(t, err)
}

func TestResendOTP_Failures(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com")
	ctx := context.Background()

	err := f.svc.ResendOTP(ctx, "nobody@x.com", domain.OTPEmailVerification)
	assertAppError(t, err, http.StatusNotFound, "")

	f.notifier.err = errors.New("smtp down")
	err = f.svc.ResendOTP(ctx, "a@x.com", domain.OTPEmailVerification)
	assertAppError(t, err, http.StatusBadRequest, "failed to send OTP email")

	err = f.svc.ForgotPassword(ctx, "a@x.com")
	assertAppError(t, err, http.StatusBadRequest, "failed to send OTP email")
}

func TestPasswordRecovery_WithResetTicket(t *testing.T) {
	f := newFixture(t)
	session := f.verifiedUser(t, "a@x.com")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	sent := f.notifier.last(t)
	assert.Equal(t, domain.OTPForgotPassword, sent.typ)

	res, err := f.svc.VerifyOTP(ctx, "a@x.com", sent.code, domain.OTPForgotPassword)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Nil(t, res.Tokens)
	require.NotEmpty(t, res.ResetToken)

	err = f.svc.ResetPassword(ctx, "a@x.com", "NewSecret456", "wrong-ticket")
	assertAppError(t, err, http.StatusBadRequest, "invalid or expired reset token")

	require.NoError(t, f.svc.ResetPassword(ctx, "a@x.com", "NewSecret456", res.ResetToken))

	err = f.svc.ResetPassword(ctx, "a@x.com", "Another789x", res.ResetToken)
	assertAppError(t, err, http.StatusBadRequest, "invalid or expired reset token")

	_, err = f.svc.Login(ctx, "a@x.com", testPassword)
	assertAppError(t, err, http.StatusUnauthorized, "invalid email or password")
	_, err = f.svc.Login(ctx, "a@x.com", "NewSecret456")
	require.NoError(t, err)

	_, err = f.svc.RefreshToken(ctx, session.Tokens.RefreshToken)
	assertAppError(t, err, http.StatusUnauthorized, "")
}

func TestResetPassword_RequiresTicket(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser(t, "a@x.com")

	err := f.svc.ResetPassword(context.Background(), "a@x.com", "NewSecret456", "")
	assertAppError(t, err, http.StatusBadRequest, "reset token is required")
}

func TestResetPassword_WithoutTicketWhenDisabled(t *testing.T) {
	f := newFixtureWithOptions(t, Options{OTPTTL: 10 * time.Minute})
	f.verifiedUser(t, "a@x.com")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	res, err := f.svc.VerifyOTP(ctx, "a@x.com", f.notifier.last(t).code, domain.OTPForgotPassword)
	require.NoError(t, err)
	assert.Empty(t, res.ResetToken)

	require.NoError(t, f.svc.ResetPassword(ctx, "a@x.com", "NewSecret456", ""))
	_, err = f.svc.Login(ctx, "a@x.com", "NewSecret456")
	require.NoError(t, err)

	_, err = f.otps.Get(ctx, domain.OTPForgotPassword, "a@x.com")
	assert.Error(t, err)
}

func TestResetPassword_UnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ResetPassword(context.Background(), "nobody@x.com", "NewSecret456", "t")
	assertAppError(t, err, http.StatusNotFound, "")
}
