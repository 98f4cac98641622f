// Package auth orchestrates the account credential and session lifecycle:
// signup with deferred OTP verification, password and federated login, the
// rotating access/refresh/CSRF token triad, password reset, and account
// termination.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/acadnet/acadnet/federation"
	"github.com/acadnet/acadnet/mail"
	"github.com/acadnet/acadnet/otp"
	"github.com/acadnet/acadnet/token"
	"github.com/acadnet/acadnet/token/refresh"
	"github.com/acadnet/acadnet/users"
)

const (
	csrfTokenBytes = 20

	verificationOTPTTL = 7 * time.Minute
	resetOTPTTL        = 5 * time.Minute
)

// SessionTriad is the transient result of a successful authentication event.
// The CSRF token is random and independent of the signed pair; it is matched
// against a caller-supplied header on state-changing calls.
type SessionTriad struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
}

// Repos holds the repository dependencies for the Service.
type Repos struct {
	Users    users.Repo
	Sessions refresh.Repo
	OTPs     otp.Repo
}

// Service composes the credential store, token codec, refresh session store,
// OTP ledger, mail delivery and identity federation into the account state
// machine: Unregistered -> PendingVerification -> Verified.
type Service struct {
	repos    Repos
	codec    *token.Codec
	sessions *refresh.Manager
	otps     *otp.Ledger
	mailer   mail.Sender
	resolver *federation.Resolver
	logger   zerolog.Logger
	nowTime  func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes a Service with required dependencies. Optional
// configuration can be provided via options (e.g. WithNowTime for testing).
func NewService(
	repos Repos,
	codec *token.Codec,
	sessions *refresh.Manager,
	otps *otp.Ledger,
	mailer mail.Sender,
	resolver *federation.Resolver,
	logger zerolog.Logger,
	options ...ServiceOption,
) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions repo is required")
	}
	if repos.OTPs == nil {
		return nil, errors.New("[NewService] OTPs repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewService] codec is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewService] sessions manager is required")
	}
	if otps == nil {
		return nil, errors.New("[NewService] otp ledger is required")
	}
	if mailer == nil {
		return nil, errors.New("[NewService] mail sender is required")
	}
	if resolver == nil {
		return nil, errors.New("[NewService] federation resolver is required")
	}

	service := &Service{
		repos:    repos,
		codec:    codec,
		sessions: sessions,
		otps:     otps,
		mailer:   mailer,
		resolver: resolver,
		logger:   logger,
		nowTime:  time.Now,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// Signup creates an account in PendingVerification. A taken email is a hard
// Conflict; a taken username is disambiguated with an incrementing numeric
// suffix, same as federated first logins. Returns the account with the
// username actually claimed.
func (s *Service) Signup(ctx context.Context, email, username, password string) (*users.Account, error) {
	if err := ValidateSignup(email, username, password); err != nil {
		return nil, E(KindValidation, err)
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[Signup] hash password")
	}

	email = users.NormalizeEmail(email)
	base := users.NormalizeUsername(username)

	account, err := s.createLocalAccount(ctx, email, base, hash)
	if errors.Is(err, users.ErrDuplicateUsername) {
		// Lost the suffix race to a concurrent signup with the same handle.
		account, err = s.createLocalAccount(ctx, email, base, hash)
	}
	switch {
	case errors.Is(err, users.ErrDuplicateEmail):
		return nil, E(KindConflict, EmailInUseErr)
	case err != nil:
		return nil, s.storeErr(errors.Wrap(err, "[Signup] create account"))
	}

	s.logger.Info().Int64("account_id", account.ID).Str("username", account.Username).Msg("account created, verification pending")
	return account, nil
}

func (s *Service) createLocalAccount(ctx context.Context, email, base, hash string) (*users.Account, error) {
	username, err := s.availableUsername(ctx, base)
	if err != nil {
		return nil, err
	}
	account := &users.Account{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Provider:     users.ProviderLocal,
		Role:         users.RoleUser,
		Verified:     false,
		LastOTPAt:    users.LastOTPEpoch,
	}
	return s.repos.Users.Create(ctx, account)
}

func (s *Service) availableUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for suffix := 1; ; suffix++ {
		_, err := s.repos.Users.GetByUsername(ctx, candidate)
		if errors.Is(err, users.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", errors.Wrap(err, "[availableUsername] lookup")
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}

// RequestVerificationOTP issues and delivers a fresh verification code for a
// PendingVerification account. Delivery failure does not roll back the issued
// code; it stays valid for a resend within its expiry window.
func (s *Service) RequestVerificationOTP(ctx context.Context, username string) error {
	account, err := s.repos.Users.GetByUsername(ctx, users.NormalizeUsername(username))
	if errors.Is(err, users.ErrNotFound) {
		return E(KindNotFound, UserNotFoundErr)
	}
	if err != nil {
		return s.storeErr(errors.Wrap(err, "[RequestVerificationOTP] GetByUsername"))
	}
	if account.Verified {
		return E(KindConflict, AlreadyVerifiedErr)
	}
	return s.issueAndSendOTP(ctx, account, verificationOTPTTL)
}

func (s *Service) issueAndSendOTP(ctx context.Context, account *users.Account, ttl time.Duration) error {
	record, err := s.otps.Issue(ctx, account.ID, ttl)
	if err != nil {
		var rateLimited *otp.RateLimitError
		if errors.As(err, &rateLimited) {
			return &Error{Kind: KindRateLimited, RetryAfter: rateLimited.RetryAfter, Err: rateLimited}
		}
		return s.storeErr(errors.Wrap(err, "[issueAndSendOTP] issue"))
	}

	if err := s.mailer.SendOTP(ctx, account.Email, account.Username, record.Code); err != nil {
		s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("otp delivery failed")
		return E(KindUnavailable, mail.DeliveryFailedErr)
	}

	s.logger.Info().Int64("account_id", account.ID).Msg("otp issued")
	return nil
}

// VerifyOTP consumes the pending code and transitions the account to
// Verified.
func (s *Service) VerifyOTP(ctx context.Context, username, code string) error {
	account, err := s.repos.Users.GetByUsername(ctx, users.NormalizeUsername(username))
	if errors.Is(err, users.ErrNotFound) {
		return E(KindNotFound, UserNotFoundErr)
	}
	if err != nil {
		return s.storeErr(errors.Wrap(err, "[VerifyOTP] GetByUsername"))
	}

	if err := s.otps.Check(ctx, account.ID, code); err != nil {
		if errors.Is(err, otp.ErrWrongOTP) || errors.Is(err, otp.ErrNoPendingCode) {
			return E(KindUnauthorized, otp.ErrWrongOTP)
		}
		return s.storeErr(errors.Wrap(err, "[VerifyOTP] check"))
	}

	if err := s.repos.Users.SetVerified(ctx, account.ID, true); err != nil {
		return s.storeErr(errors.Wrap(err, "[VerifyOTP] SetVerified"))
	}

	s.logger.Info().Int64("account_id", account.ID).Msg("account verified")
	return nil
}

// Login authenticates a local account by password. An unverified account
// receives a fresh OTP and a VerificationRequired outcome so the caller can
// redirect into the verification flow; this is a distinct signal, not a
// credentials failure.
func (s *Service) Login(ctx context.Context, email, password string) (*SessionTriad, error) {
	account, err := s.repos.Users.GetByEmail(ctx, users.NormalizeEmail(email))
	if errors.Is(err, users.ErrNotFound) {
		return nil, E(KindNotFound, UserNotFoundErr)
	}
	if err != nil {
		return nil, s.storeErr(errors.Wrap(err, "[Login] GetByEmail"))
	}

	if account.Banned {
		return nil, E(KindForbidden, UserBannedErr)
	}

	if !account.Verified {
		// Best effort: inside the cooldown the caller still lands on the
		// verification page, where a resend can be requested.
		if err := s.issueAndSendOTP(ctx, account, verificationOTPTTL); err != nil && KindOf(err) != KindRateLimited {
			return nil, err
		}
		return nil, E(KindForbidden, VerificationRequiredErr)
	}

	if account.Federated() {
		return nil, E(KindForbidden, UseFederatedLoginErr)
	}

	if !users.CheckPasswordHash(password, account.PasswordHash) {
		return nil, E(KindUnauthorized, WrongCredentialsErr)
	}

	return s.issueTriad(ctx, account)
}

// FederatedLogin resolves a provider identity to an account and issues a
// triad. First logins create the account, verified, with the provider tag.
func (s *Service) FederatedLogin(ctx context.Context, identity federation.Identity) (*SessionTriad, error) {
	account, err := s.resolver.Resolve(ctx, identity)
	switch {
	case errors.Is(err, federation.ErrMissingVerifiedEmail):
		return nil, E(KindValidation, err)
	case errors.Is(err, federation.ErrProviderMismatch):
		return nil, E(KindForbidden, err)
	case err != nil:
		return nil, s.storeErr(errors.Wrap(err, "[FederatedLogin] resolve"))
	}

	if account.Banned {
		return nil, E(KindForbidden, UserBannedErr)
	}

	return s.issueTriad(ctx, account)
}

// Refresh rotates the refresh token: the old token is consumed and a full new
// triad is issued. A revoked or replayed token fails; exactly one of two
// concurrent rotations off the same token can succeed.
func (s *Service) Refresh(ctx context.Context, oldRefreshToken string) (*SessionTriad, error) {
	claims, newToken, err := s.sessions.Rotate(ctx, oldRefreshToken)
	if err != nil {
		return nil, s.sessionErr(err, "[Refresh] rotate")
	}

	accessToken, err := s.codec.IssueAccess(claims.UserID, claims.Role)
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] issue access")
	}
	csrfToken, err := newCSRFToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] csrf")
	}

	return &SessionTriad{AccessToken: accessToken, RefreshToken: newToken, CSRFToken: csrfToken}, nil
}

// Session is the heartbeat: it confirms the refresh token is both
// structurally valid and still present in the store, then re-issues an access
// token without rotating. The asymmetry with Refresh is intentional.
func (s *Service) Session(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.sessions.Check(ctx, refreshToken)
	if err != nil {
		return "", s.sessionErr(err, "[Session] check")
	}

	accessToken, err := s.codec.IssueAccess(claims.UserID, claims.Role)
	if err != nil {
		return "", errors.Wrap(err, "[Session] issue access")
	}
	return accessToken, nil
}

// Logout revokes exactly one refresh session. Unknown tokens are not an
// error; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		return s.storeErr(errors.Wrap(err, "[Logout] revoke"))
	}
	return nil
}

// LogoutAll revokes every refresh session owned by the account.
func (s *Service) LogoutAll(ctx context.Context, accountID int64) error {
	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		return s.storeErr(errors.Wrap(err, "[LogoutAll] revoke all"))
	}
	s.logger.Info().Int64("account_id", accountID).Msg("all sessions revoked")
	return nil
}

// RequestPasswordReset issues and delivers a reset code. The HTTP layer
// answers unknown emails with a generic acknowledgement; the typed NotFound
// returned here never reaches the caller's body.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*users.Account, error) {
	account, err := s.repos.Users.GetByEmail(ctx, users.NormalizeEmail(email))
	if errors.Is(err, users.ErrNotFound) {
		return nil, E(KindNotFound, UserNotFoundErr)
	}
	if err != nil {
		return nil, s.storeErr(errors.Wrap(err, "[RequestPasswordReset] GetByEmail"))
	}

	if account.Federated() {
		return nil, E(KindForbidden, FederatedAccountErr)
	}

	if err := s.issueAndSendOTP(ctx, account, resetOTPTTL); err != nil {
		return nil, err
	}
	return account, nil
}

// CheckResetOTP consumes the reset code, gating entry to ChangePassword.
func (s *Service) CheckResetOTP(ctx context.Context, email, code string) (*users.Account, error) {
	account, err := s.repos.Users.GetByEmail(ctx, users.NormalizeEmail(email))
	if errors.Is(err, users.ErrNotFound) {
		return nil, E(KindNotFound, UserNotFoundErr)
	}
	if err != nil {
		return nil, s.storeErr(errors.Wrap(err, "[CheckResetOTP] GetByEmail"))
	}

	if err := s.otps.Check(ctx, account.ID, code); err != nil {
		if errors.Is(err, otp.ErrWrongOTP) || errors.Is(err, otp.ErrNoPendingCode) {
			return nil, E(KindUnauthorized, otp.ErrWrongOTP)
		}
		return nil, s.storeErr(errors.Wrap(err, "[CheckResetOTP] check"))
	}
	return account, nil
}

// ChangePassword overwrites the password hash and unconditionally revokes
// every refresh session. Only reachable after a successful CheckResetOTP.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, newPassword string) error {
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return E(KindValidation, err)
	}

	account, err := s.repos.Users.GetByID(ctx, accountID)
	if errors.Is(err, users.ErrNotFound) {
		return E(KindNotFound, UserNotFoundErr)
	}
	if err != nil {
		return s.storeErr(errors.Wrap(err, "[ChangePassword] GetByID"))
	}

	if account.Federated() {
		return E(KindForbidden, FederatedAccountErr)
	}

	hash, err := users.HashPassword(newPassword)
	if err != nil {
		return errors.Wrap(err, "[ChangePassword] hash password")
	}
	if err := s.repos.Users.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return s.storeErr(errors.Wrap(err, "[ChangePassword] update hash"))
	}

	if err := s.LogoutAll(ctx, accountID); err != nil {
		return errors.Wrap(err, "[ChangePassword] logout all")
	}

	s.logger.Info().Int64("account_id", accountID).Msg("password changed, all sessions revoked")
	return nil
}

// Terminate irreversibly deletes the account, its refresh sessions and any
// pending OTP. Cascade deletion of owned content belongs to the surrounding
// data layer.
func (s *Service) Terminate(ctx context.Context, accountID int64) error {
	if _, err := s.repos.Users.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return E(KindNotFound, UserNotFoundErr)
		}
		return s.storeErr(errors.Wrap(err, "[Terminate] GetByID"))
	}

	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		return s.storeErr(errors.Wrap(err, "[Terminate] revoke sessions"))
	}
	if err := s.otps.Clear(ctx, accountID); err != nil {
		return s.storeErr(errors.Wrap(err, "[Terminate] clear otp"))
	}
	if err := s.repos.Users.Delete(ctx, accountID); err != nil {
		return s.storeErr(errors.Wrap(err, "[Terminate] delete account"))
	}

	s.logger.Info().Int64("account_id", accountID).Msg("account terminated")
	return nil
}

// VerifyAccess validates a bearer access token and returns its claims.
func (s *Service) VerifyAccess(raw string) (*token.Claims, error) {
	claims, err := s.codec.VerifyAccess(raw)
	if err != nil {
		return nil, E(KindUnauthorized, err)
	}
	return claims, nil
}

func (s *Service) issueTriad(ctx context.Context, account *users.Account) (*SessionTriad, error) {
	accessToken, err := s.codec.IssueAccess(account.ID, account.Role)
	if err != nil {
		return nil, errors.Wrap(err, "[issueTriad] issue access")
	}
	refreshToken, err := s.sessions.Issue(ctx, account.ID, account.Role)
	if err != nil {
		return nil, s.storeErr(errors.Wrap(err, "[issueTriad] issue refresh"))
	}
	csrfToken, err := newCSRFToken()
	if err != nil {
		return nil, errors.Wrap(err, "[issueTriad] csrf")
	}

	s.logger.Info().Int64("account_id", account.ID).Msg("session issued")
	return &SessionTriad{AccessToken: accessToken, RefreshToken: refreshToken, CSRFToken: csrfToken}, nil
}

// sessionErr maps refresh-path failures: a bad signature or a revoked row
// both force a full re-login, but stay distinguishable in the chain.
func (s *Service) sessionErr(err error, context string) error {
	switch {
	case errors.Is(err, refresh.ErrInvalidToken), errors.Is(err, refresh.ErrRevoked):
		return E(KindUnauthorized, err)
	default:
		return s.storeErr(errors.Wrap(err, context))
	}
}

// storeErr tags untyped failures from the stores as Unavailable.
func (s *Service) storeErr(err error) error {
	if errors.Is(err, users.ErrUnavailable) || errors.Is(err, refresh.ErrUnavailable) || errors.Is(err, otp.ErrUnavailable) {
		return E(KindUnavailable, err)
	}
	return err
}

func newCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
