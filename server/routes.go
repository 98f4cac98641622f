package server

func (s *Server) initRoutes() {
	// Signup & login
	s.RegisterRouteFunc("POST "+RouteSignup, ChainMiddleware(s.SignupHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))

	// Session management. Refresh rotates the session, so it carries the CSRF
	// check, but not the access-token check: it must work with an expired
	// access token.
	s.RegisterRouteFunc("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), s.CSRFMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteCheckSession, ChainMiddleware(s.CheckSessionHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthorizedPage, ChainMiddleware(s.AuthorizedPageHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogoutAll, ChainMiddleware(s.LogoutAllHandler(), s.ProtectedMiddleware()...))

	// OTP verification
	s.RegisterRouteFunc("POST "+RouteOTPRequest, ChainMiddleware(s.OTPRequestHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteOTPVerify, ChainMiddleware(s.OTPVerifyHandler(), s.APIMiddleware()...))

	// Password reset
	s.RegisterRouteFunc("POST "+RoutePasswordReset, ChainMiddleware(s.PasswordResetHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RoutePasswordVerify, ChainMiddleware(s.PasswordVerifyHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware()...))

	// Account termination
	s.RegisterRouteFunc("POST "+RouteTerminate, ChainMiddleware(s.TerminateHandler(), s.ProtectedMiddleware()...))

	// Federated login
	s.RegisterRouteFunc("GET "+RouteGithub, ChainMiddleware(s.OAuthRedirectHandler("github"), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteGithubCallback, ChainMiddleware(s.OAuthCallbackHandler("github"), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteGoogle, ChainMiddleware(s.OAuthRedirectHandler("google"), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteGoogleCallback, ChainMiddleware(s.OAuthCallbackHandler("google"), s.APIMiddleware()...))

	// Admin (requires admin role on top of the protected chain)
	s.RegisterRouteFunc("GET "+RouteAdminUsers, ChainMiddleware(s.AdminListUsersHandler(), s.AdminMiddleware()...))
	s.RegisterRouteFunc("DELETE "+RouteAdminUser, ChainMiddleware(s.AdminDeleteUserHandler(), s.AdminMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAdminUserBan, ChainMiddleware(s.AdminBanUserHandler(), s.AdminMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAdminUserRole, ChainMiddleware(s.AdminRoleHandler(), s.AdminMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}
