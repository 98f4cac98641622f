package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Signup & Login
	RouteSignup = "/api/v1/auth/signup"
	RouteLogin  = "/api/v1/auth/login"

	// Auth Routes - Session Management
	RouteRefresh        = "/api/v1/auth/refresh"
	RouteCheckSession   = "/api/v1/auth/checkSession"
	RouteAuthorizedPage = "/api/v1/auth/authorizedPage"
	RouteLogout         = "/api/v1/auth/logout"
	RouteLogoutAll      = "/api/v1/auth/logout-all"

	// Auth Routes - OTP Verification
	RouteOTPRequest = "/api/v1/auth/otp-auth"
	RouteOTPVerify  = "/api/v1/auth/otp-verify"

	// Auth Routes - Password Reset
	RoutePasswordReset  = "/api/v1/auth/password-reset"
	RoutePasswordVerify = "/api/v1/auth/password-verify"
	RouteChangePassword = "/api/v1/auth/change-password"

	// Auth Routes - Account Termination
	RouteTerminate = "/api/v1/auth/terminate"

	// Federated Login Routes
	RouteGithub         = "/api/v1/auth/github"
	RouteGithubCallback = "/api/v1/auth/github/callback"
	RouteGoogle         = "/api/v1/auth/google"
	RouteGoogleCallback = "/api/v1/auth/google/callback"

	// Admin Routes
	RouteAdminUsers    = "/api/v1/sysadmin/users"
	RouteAdminUser     = "/api/v1/sysadmin/user/{userID}"
	RouteAdminUserBan  = "/api/v1/sysadmin/user/{userID}/ban"
	RouteAdminUserRole = "/api/v1/sysadmin/user/{userID}/role"

	// Operational Routes
	RouteHealth = "/healthz"
)

// Cookie names shared with the browser frontend.
const (
	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
	CookieCSRFToken    = "csrfToken"
	CookieOTPToken     = "otpToken"
	CookieResetToken   = "resetToken"
)

// CSRFHeader is matched against the csrfToken cookie on state-changing calls.
const CSRFHeader = "X-CSRF-Token"
