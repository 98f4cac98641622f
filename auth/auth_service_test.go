package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/acadnet/acadnet/auth"
	"github.com/acadnet/acadnet/federation"
	"github.com/acadnet/acadnet/mail"
	"github.com/acadnet/acadnet/otp"
	fakeotprepo "github.com/acadnet/acadnet/otp/repofake"
	"github.com/acadnet/acadnet/token"
	"github.com/acadnet/acadnet/token/refresh"
	fakesessionrepo "github.com/acadnet/acadnet/token/refresh/repofake"
	"github.com/acadnet/acadnet/users"
	fakeaccountrepo "github.com/acadnet/acadnet/users/repofake"
)

const (
	accessSecret  = "access-secret-1234"
	refreshSecret = "refresh-secret-1234"

	testEmail    = "john.doe@example.com"
	testUsername = "johndoe"
	testPassword = "Password123"
)

// fakeClock provides a controllable now for cooldown and expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureSender records delivered codes per recipient. Set fail to simulate a
// provider outage.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	fail  bool
}

func (c *captureSender) SendOTP(_ context.Context, recipientEmail, _, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return mail.DeliveryFailedErr
	}
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[recipientEmail] = code
	return nil
}

func (c *captureSender) lastCode(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

// testFixture holds all test dependencies
type testFixture struct {
	accounts *fakeaccountrepo.FakeAccountRepo
	sessions *fakesessionrepo.FakeSessionRepo
	otps     *fakeotprepo.FakeOTPRepo
	mailer   *captureSender
	clock    *fakeClock
	service  *auth.Service
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	accounts := fakeaccountrepo.NewFakeAccountRepo()
	sessions := fakesessionrepo.NewFakeSessionRepo()
	otps := fakeotprepo.NewFakeOTPRepo()
	clock := &fakeClock{now: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
	mailer := &captureSender{}

	codec := token.NewCodec(accessSecret, refreshSecret)
	manager := refresh.NewManager(sessions, codec)
	ledger := otp.NewLedger(otps, accounts, otp.WithNowFunc(clock.Now))
	resolver := federation.NewResolver(accounts)

	service, err := auth.NewService(
		auth.Repos{Users: accounts, Sessions: sessions, OTPs: otps},
		codec,
		manager,
		ledger,
		mailer,
		resolver,
		zerolog.Nop(),
	)
	require.NoError(t, err)

	return &testFixture{
		accounts: accounts,
		sessions: sessions,
		otps:     otps,
		mailer:   mailer,
		clock:    clock,
		service:  service,
	}
}

// signupVerified walks an account through signup and OTP verification.
func signupVerified(t *testing.T, fx *testFixture, email, username, password string) *users.Account {
	t.Helper()
	ctx := context.Background()

	account, err := fx.service.Signup(ctx, email, username, password)
	require.NoError(t, err)

	require.NoError(t, fx.service.RequestVerificationOTP(ctx, account.Username))
	code := fx.mailer.lastCode(account.Email)
	require.Len(t, code, 6)
	require.NoError(t, fx.service.VerifyOTP(ctx, account.Username, code))

	fx.clock.Advance(2 * time.Minute) // clear the cooldown for the next issue
	return account
}

func TestSignupCreatesPendingAccount(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	account, err := fx.service.Signup(ctx, "John.Doe@Example.com", "JohnDoe", testPassword)
	require.NoError(t, err)
	require.Equal(t, "john.doe@example.com", account.Email)
	require.Equal(t, "johndoe", account.Username)
	require.False(t, account.Verified)
	require.Equal(t, users.ProviderLocal, account.Provider)
	require.Equal(t, users.RoleUser, account.Role)

	stored, err := fx.accounts.GetByEmail(ctx, "john.doe@example.com")
	require.NoError(t, err)
	require.False(t, stored.Verified)
	require.NotEqual(t, testPassword, stored.PasswordHash)
}

func TestSignupRejectsWeakInput(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	_, err := fx.service.Signup(ctx, "not-an-email", testUsername, testPassword)
	require.Equal(t, auth.KindValidation, auth.KindOf(err))

	_, err = fx.service.Signup(ctx, testEmail, "ab", testPassword)
	require.Equal(t, auth.KindValidation, auth.KindOf(err))

	_, err = fx.service.Signup(ctx, testEmail, testUsername, "alllowercase")
	require.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestSignupDuplicateEmailIsConflict(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	_, err := fx.service.Signup(ctx, testEmail, testUsername, testPassword)
	require.NoError(t, err)

	_, err = fx.service.Signup(ctx, testEmail, "othername", testPassword)
	require.ErrorIs(t, err, auth.EmailInUseErr)
	require.Equal(t, auth.KindConflict, auth.KindOf(err))
}

func TestSignupSuffixesTakenUsername(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	first, err := fx.service.Signup(ctx, "a@example.com", "bob", testPassword)
	require.NoError(t, err)
	require.Equal(t, "bob", first.Username)

	second, err := fx.service.Signup(ctx, "b@example.com", "bob", testPassword)
	require.NoError(t, err)
	require.Equal(t, "bob_1", second.Username)

	third, err := fx.service.Signup(ctx, "c@example.com", "bob", testPassword)
	require.NoError(t, err)
	require.Equal(t, "bob_2", third.Username)
}

func TestSignupConcurrentSameUsername(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	// Both signups race the availability check; the store's uniqueness backstop
	// forces the loser through the one-retry suffix path.
	start := make(chan struct{})
	accounts := make([]*users.Account, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	emails := []string{"a@example.com", "b@example.com"}
	for i := range emails {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			accounts[i], errs[i] = fx.service.Signup(ctx, emails[i], "bob", testPassword)
		}(i)
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	claimed := []string{accounts[0].Username, accounts[1].Username}
	require.ElementsMatch(t, []string{"bob", "bob_1"}, claimed)
}

func TestVerifyOTPWrongThenRight(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	account, err := fx.service.Signup(ctx, testEmail, testUsername, testPassword)
	require.NoError(t, err)
	require.NoError(t, fx.service.RequestVerificationOTP(ctx, account.Username))

	err = fx.service.VerifyOTP(ctx, account.Username, "000000")
	require.Equal(t, auth.KindUnauthorized, auth.KindOf(err))

	stored, err := fx.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.False(t, stored.Verified)

	code := fx.mailer.lastCode(account.Email)
	require.NoError(t, fx.service.VerifyOTP(ctx, account.Username, code))

	stored, err = fx.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, stored.Verified)
}

func TestRequestVerificationOTPCooldown(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	account, err := fx.service.Signup(ctx, testEmail, testUsername, testPassword)
	require.NoError(t, err)

	require.NoError(t, fx.service.RequestVerificationOTP(ctx, account.Username))

	err = fx.service.RequestVerificationOTP(ctx, account.Username)
	require.Equal(t, auth.KindRateLimited, auth.KindOf(err))
	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	require.Greater(t, authErr.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, authErr.RetryAfter, time.Minute)

	fx.clock.Advance(61 * time.Second)
	require.NoError(t, fx.service.RequestVerificationOTP(ctx, account.Username))
}

func TestRequestVerificationOTPAlreadyVerified(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)

	err := fx.service.RequestVerificationOTP(context.Background(), account.Username)
	require.ErrorIs(t, err, auth.AlreadyVerifiedErr)
	require.Equal(t, auth.KindConflict, auth.KindOf(err))
}

func TestOTPDeliveryFailureKeepsRecord(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	account, err := fx.service.Signup(ctx, testEmail, testUsername, testPassword)
	require.NoError(t, err)

	fx.mailer.fail = true
	err = fx.service.RequestVerificationOTP(ctx, account.Username)
	require.ErrorIs(t, err, mail.DeliveryFailedErr)
	require.Equal(t, auth.KindUnavailable, auth.KindOf(err))

	// The issued code survived the failed send and still verifies.
	record, err := fx.otps.Get(ctx, account.ID)
	require.NoError(t, err)
	require.NoError(t, fx.service.VerifyOTP(ctx, account.Username, record.Code))
}

func TestLoginHappyPath(t *testing.T) {
	fx := setupTestFixture(t)
	signupVerified(t, fx, testEmail, testUsername, testPassword)

	triad, err := fx.service.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, triad.AccessToken)
	require.NotEmpty(t, triad.RefreshToken)
	require.Len(t, triad.CSRFToken, 40) // 20 random bytes, hex encoded

	claims, err := fx.service.VerifyAccess(triad.AccessToken)
	require.NoError(t, err)
	require.Equal(t, users.RoleUser, claims.Role)
}

func TestLoginFailures(t *testing.T) {
	fx := setupTestFixture(t)
	signupVerified(t, fx, testEmail, testUsername, testPassword)

	_, err := fx.service.Login(context.Background(), "nobody@example.com", testPassword)
	require.ErrorIs(t, err, auth.UserNotFoundErr)
	require.Equal(t, auth.KindNotFound, auth.KindOf(err))

	_, err = fx.service.Login(context.Background(), testEmail, "WrongPassword1")
	require.ErrorIs(t, err, auth.WrongCredentialsErr)
	require.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
}

func TestLoginUnverifiedIssuesOTPAndRedirectSignal(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	_, err := fx.service.Signup(ctx, testEmail, testUsername, testPassword)
	require.NoError(t, err)

	_, err = fx.service.Login(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, auth.VerificationRequiredErr)
	require.Len(t, fx.mailer.lastCode(testEmail), 6)

	// A retry inside the cooldown still signals verification, not rate limit.
	_, err = fx.service.Login(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, auth.VerificationRequiredErr)
}

func TestLoginFederatedAccountRefused(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	_, err := fx.service.FederatedLogin(ctx, federation.Identity{
		Provider:      users.ProviderGithub,
		Email:         testEmail,
		EmailVerified: true,
		Handle:        testUsername,
	})
	require.NoError(t, err)

	_, err = fx.service.Login(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, auth.UseFederatedLoginErr)
	require.Equal(t, auth.KindForbidden, auth.KindOf(err))
}

func TestLoginBannedAccountRefused(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)

	require.NoError(t, fx.accounts.SetBanned(context.Background(), account.ID, true))

	_, err := fx.service.Login(context.Background(), testEmail, testPassword)
	require.ErrorIs(t, err, auth.UserBannedErr)
	require.Equal(t, auth.KindForbidden, auth.KindOf(err))
}

func TestFederatedLoginRepeatReturnsSameAccount(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	identity := federation.Identity{
		Provider:      users.ProviderGithub,
		Email:         testEmail,
		EmailVerified: true,
		Handle:        testUsername,
	}

	first, err := fx.service.FederatedLogin(ctx, identity)
	require.NoError(t, err)

	second, err := fx.service.FederatedLogin(ctx, identity)
	require.NoError(t, err)

	a, err := fx.service.VerifyAccess(first.AccessToken)
	require.NoError(t, err)
	b, err := fx.service.VerifyAccess(second.AccessToken)
	require.NoError(t, err)
	require.Equal(t, a.UserID, b.UserID)
}

func TestFederatedLoginProviderMismatch(t *testing.T) {
	fx := setupTestFixture(t)
	signupVerified(t, fx, testEmail, testUsername, testPassword)

	_, err := fx.service.FederatedLogin(context.Background(), federation.Identity{
		Provider:      users.ProviderGithub,
		Email:         testEmail,
		EmailVerified: true,
		Handle:        testUsername,
	})
	require.ErrorIs(t, err, federation.ErrProviderMismatch)
	require.Equal(t, auth.KindForbidden, auth.KindOf(err))
}

func TestRefreshRotatesAndRevokesOld(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)
	ctx := context.Background()

	triad, err := fx.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	rotated, err := fx.service.Refresh(ctx, triad.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, triad.RefreshToken, rotated.RefreshToken)
	require.Equal(t, 1, fx.sessions.Count(account.ID))

	// The consumed token is dead on every later use.
	_, err = fx.service.Refresh(ctx, triad.RefreshToken)
	require.ErrorIs(t, err, refresh.ErrRevoked)
	require.Equal(t, auth.KindUnauthorized, auth.KindOf(err))

	_, err = fx.service.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshMalformedToken(t *testing.T) {
	fx := setupTestFixture(t)

	_, err := fx.service.Refresh(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, refresh.ErrInvalidToken)
	require.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	fx := setupTestFixture(t)
	signupVerified(t, fx, testEmail, testUsername, testPassword)
	ctx := context.Background()

	triad, err := fx.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	const attempts = 8
	results := make(chan error, attempts)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := fx.service.Refresh(ctx, triad.RefreshToken)
			results <- err
		}()
	}
	start.Done()

	var succeeded int
	for i := 0; i < attempts; i++ {
		if err := <-results; err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, refresh.ErrRevoked)
		}
	}
	require.Equal(t, 1, succeeded)
}

func TestSessionHeartbeatDoesNotRotate(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)
	ctx := context.Background()

	triad, err := fx.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		accessToken, err := fx.service.Session(ctx, triad.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, accessToken)
	}
	require.Equal(t, 1, fx.sessions.Count(account.ID))

	// The token was never consumed, so rotation still works.
	_, err = fx.service.Refresh(ctx, triad.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutIsIdempotent(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)
	ctx := context.Background()

	triad, err := fx.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, fx.service.Logout(ctx, triad.RefreshToken))
	require.Equal(t, 0, fx.sessions.Count(account.ID))
	require.NoError(t, fx.service.Logout(ctx, triad.RefreshToken))
	require.NoError(t, fx.service.Logout(ctx, ""))

	_, err = fx.service.Refresh(ctx, triad.RefreshToken)
	require.ErrorIs(t, err, refresh.ErrRevoked)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)
	ctx := context.Background()

	triads := make([]*auth.SessionTriad, 3)
	for i := range triads {
		triad, err := fx.service.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)
		triads[i] = triad
	}
	require.Equal(t, 3, fx.sessions.Count(account.ID))

	require.NoError(t, fx.service.LogoutAll(ctx, account.ID))

	for _, triad := range triads {
		_, err := fx.service.Refresh(ctx, triad.RefreshToken)
		require.ErrorIs(t, err, refresh.ErrRevoked)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)
	ctx := context.Background()

	triad, err := fx.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	_, err = fx.service.RequestPasswordReset(ctx, testEmail)
	require.NoError(t, err)

	code := fx.mailer.lastCode(testEmail)
	gated, err := fx.service.CheckResetOTP(ctx, testEmail, code)
	require.NoError(t, err)
	require.Equal(t, account.ID, gated.ID)

	// The code is consumed by the successful check.
	_, err = fx.service.CheckResetOTP(ctx, testEmail, code)
	require.Equal(t, auth.KindUnauthorized, auth.KindOf(err))

	const newPassword = "NewPassword456"
	require.NoError(t, fx.service.ChangePassword(ctx, account.ID, newPassword))

	// Every prior session is gone and only the new password works.
	_, err = fx.service.Refresh(ctx, triad.RefreshToken)
	require.ErrorIs(t, err, refresh.ErrRevoked)
	_, err = fx.service.Login(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, auth.WrongCredentialsErr)
	_, err = fx.service.Login(ctx, testEmail, newPassword)
	require.NoError(t, err)
}

func TestChangePasswordRevokesConcurrentSessions(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)
	ctx := context.Background()

	triads := make([]*auth.SessionTriad, 3)
	for i := range triads {
		triad, err := fx.service.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)
		triads[i] = triad
	}

	require.NoError(t, fx.service.ChangePassword(ctx, account.ID, "NewPassword456"))

	for _, triad := range triads {
		_, err := fx.service.Refresh(ctx, triad.RefreshToken)
		require.ErrorIs(t, err, refresh.ErrRevoked)
	}
}

func TestRequestPasswordResetFederatedRefused(t *testing.T) {
	fx := setupTestFixture(t)
	ctx := context.Background()

	_, err := fx.service.FederatedLogin(ctx, federation.Identity{
		Provider:      users.ProviderGithub,
		Email:         testEmail,
		EmailVerified: true,
		Handle:        testUsername,
	})
	require.NoError(t, err)

	_, err = fx.service.RequestPasswordReset(ctx, testEmail)
	require.ErrorIs(t, err, auth.FederatedAccountErr)
	require.Equal(t, auth.KindForbidden, auth.KindOf(err))
}

func TestTerminateDeletesAccountAndSessions(t *testing.T) {
	fx := setupTestFixture(t)
	account := signupVerified(t, fx, testEmail, testUsername, testPassword)
	ctx := context.Background()

	triad, err := fx.service.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, fx.service.Terminate(ctx, account.ID))

	_, err = fx.accounts.GetByEmail(ctx, testEmail)
	require.ErrorIs(t, err, users.ErrNotFound)
	require.Equal(t, 0, fx.sessions.Count(account.ID))
	_, err = fx.service.Refresh(ctx, triad.RefreshToken)
	require.ErrorIs(t, err, refresh.ErrRevoked)

	err = fx.service.Terminate(ctx, account.ID)
	require.Equal(t, auth.KindNotFound, auth.KindOf(err))
}
