package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/acadnet/acadnet/auth"
	"github.com/acadnet/acadnet/mail"
	"github.com/acadnet/acadnet/server/flowsession"
	"github.com/acadnet/acadnet/users"
)

const (
	verifyFlowTTL = time.Hour
	resetFlowTTL  = 5 * time.Minute
)

// startVerifyFlow stores the verification context server-side and hands the
// browser an opaque cookie pointing at it.
func (s *Server) startVerifyFlow(w http.ResponseWriter, account *users.Account) error {
	id := uuid.New().String()
	now := time.Now()
	err := s.flowSessions.Upsert(id, flowsession.Session{
		AccountID: account.ID,
		Email:     account.Email,
		Username:  account.Username,
		Purpose:   flowsession.PurposeVerify,
		CreatedAt: now,
		ExpiresAt: now.Add(verifyFlowTTL),
	})
	if err != nil {
		return err
	}
	s.setCookie(w, CookieOTPToken, id, verifyFlowTTL, true)
	return nil
}

func (s *Server) flowFromCookie(r *http.Request, cookieName, purpose string) (string, *flowsession.Session, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", nil, false
	}
	session, err := s.flowSessions.Get(cookie.Value)
	if err != nil || session.Purpose != purpose {
		return "", nil, false
	}
	return cookie.Value, &session, true
}

func (s *Server) SignupHandler() http.HandlerFunc {
	type request struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			jsonRes(w, http.StatusBadRequest, false, "Invalid request body")
			return
		}

		account, err := s.service.Signup(r.Context(), req.Email, req.Username, req.Password)
		if err != nil {
			s.writeAuthError(w, err)
			return
		}

		if err := s.startVerifyFlow(w, account); err != nil {
			s.writeAuthError(w, err)
			return
		}

		// The claimed username may carry a suffix the caller did not ask for.
		jsonData(w, http.StatusOK, "Success", map[string]string{"username": account.Username})
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			jsonRes(w, http.StatusBadRequest, false, "Invalid request body")
			return
		}

		triad, err := s.service.Login(r.Context(), req.Email, req.Password)
		if errors.Is(err, auth.VerificationRequiredErr) {
			// The redirect is useless without the flow cookie, so a failed
			// lookup here is an error, not a silent downgrade.
			account, lookupErr := s.repos.Users.GetByEmail(r.Context(), users.NormalizeEmail(req.Email))
			if lookupErr != nil {
				s.writeAuthError(w, lookupErr)
				return
			}
			if flowErr := s.startVerifyFlow(w, account); flowErr != nil {
				s.writeAuthError(w, flowErr)
				return
			}
			jsonRes(w, http.StatusSeeOther, false, "Redirecting to /otp-auth")
			return
		}
		if err != nil {
			// An unknown email reads the same as a wrong password upstream.
			if auth.KindOf(err) == auth.KindNotFound {
				jsonRes(w, http.StatusUnauthorized, false, auth.WrongCredentialsErr.Error())
				return
			}
			s.writeAuthError(w, err)
			return
		}

		s.setTriadCookies(w, triad)
		jsonRes(w, http.StatusOK, true, "Login Success")
	}
}

func (s *Server) OTPRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, session, ok := s.flowFromCookie(r, CookieOTPToken, flowsession.PurposeVerify)
		if !ok {
			jsonRes(w, http.StatusUnauthorized, false, "Credential Error")
			return
		}

		if err := s.service.RequestVerificationOTP(r.Context(), session.Username); err != nil {
			if errors.Is(err, mail.DeliveryFailedErr) {
				// The code was persisted; the client may retry the send.
				jsonRes(w, http.StatusServiceUnavailable, false, "OTP delivery failed, try again")
				return
			}
			s.writeAuthError(w, err)
			return
		}

		jsonRes(w, http.StatusOK, true, "OTP Sent")
	}
}

func (s *Server) OTPVerifyHandler() http.HandlerFunc {
	type request struct {
		OTP string `json:"otp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, session, ok := s.flowFromCookie(r, CookieOTPToken, flowsession.PurposeVerify)
		if !ok {
			jsonRes(w, http.StatusUnauthorized, false, "Credential Error")
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil || req.OTP == "" {
			jsonRes(w, http.StatusBadRequest, false, "OTP is required")
			return
		}

		if err := s.service.VerifyOTP(r.Context(), session.Username, req.OTP); err != nil {
			s.writeAuthError(w, err)
			return
		}

		_ = s.flowSessions.Delete(id)
		s.clearCookie(w, CookieOTPToken)
		jsonRes(w, http.StatusOK, true, "Verified")
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieRefreshToken)
		if err != nil || cookie.Value == "" {
			jsonRes(w, http.StatusUnauthorized, false, "No refresh token provided")
			return
		}

		triad, err := s.service.Refresh(r.Context(), cookie.Value)
		if err != nil {
			s.clearTriadCookies(w)
			s.writeAuthError(w, err)
			return
		}

		s.setTriadCookies(w, triad)
		jsonRes(w, http.StatusOK, true, "Token refreshed")
	}
}

func (s *Server) CheckSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieRefreshToken)
		if err != nil || cookie.Value == "" {
			jsonRes(w, http.StatusUnauthorized, false, "No refresh token provided")
			return
		}

		accessToken, err := s.service.Session(r.Context(), cookie.Value)
		if err != nil {
			jsonRes(w, http.StatusUnauthorized, false, "Session is invalid or expired")
			return
		}

		s.setCookie(w, CookieAccessToken, accessToken, s.config.Tokens.AccessTTL, true)
		jsonRes(w, http.StatusOK, true, "Ref Token is Valid")
	}
}

func (s *Server) AuthorizedPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jsonRes(w, http.StatusOK, true, "Logged In")
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieRefreshToken)
		if err != nil || cookie.Value == "" {
			jsonRes(w, http.StatusBadRequest, false, "No refresh token provided")
			return
		}

		if err := s.service.Logout(r.Context(), cookie.Value); err != nil {
			s.writeAuthError(w, err)
			return
		}

		s.clearTriadCookies(w)
		jsonRes(w, http.StatusOK, true, "Logged out successfully")
	}
}

func (s *Server) LogoutAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())

		if err := s.service.LogoutAll(r.Context(), claims.UserID); err != nil {
			s.writeAuthError(w, err)
			return
		}

		s.clearTriadCookies(w)
		jsonRes(w, http.StatusOK, true, "Logged out from all sessions")
	}
}

func (s *Server) PasswordResetHandler() http.HandlerFunc {
	type request struct {
		Email string `json:"email"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil || req.Email == "" {
			jsonRes(w, http.StatusBadRequest, false, "Email is required")
			return
		}

		account, err := s.service.RequestPasswordReset(r.Context(), req.Email)
		if err != nil {
			// Unknown emails get the same acknowledgement as known ones so the
			// endpoint cannot be used to enumerate accounts.
			if auth.KindOf(err) == auth.KindNotFound {
				jsonRes(w, http.StatusOK, true, "OTP Sent")
				return
			}
			s.writeAuthError(w, err)
			return
		}

		id := uuid.New().String()
		now := time.Now()
		if err := s.flowSessions.Upsert(id, flowsession.Session{
			AccountID: account.ID,
			Email:     account.Email,
			Username:  account.Username,
			Purpose:   flowsession.PurposeReset,
			CreatedAt: now,
			ExpiresAt: now.Add(resetFlowTTL),
		}); err != nil {
			s.writeAuthError(w, err)
			return
		}
		s.setCookie(w, CookieResetToken, id, resetFlowTTL, true)

		jsonRes(w, http.StatusOK, true, "OTP Sent")
	}
}

func (s *Server) PasswordVerifyHandler() http.HandlerFunc {
	type request struct {
		OTP string `json:"otp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, session, ok := s.flowFromCookie(r, CookieResetToken, flowsession.PurposeReset)
		if !ok {
			jsonRes(w, http.StatusUnauthorized, false, "Credential Error")
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil || req.OTP == "" {
			jsonRes(w, http.StatusBadRequest, false, "OTP is required")
			return
		}

		if _, err := s.service.CheckResetOTP(r.Context(), session.Email, req.OTP); err != nil {
			s.writeAuthError(w, err)
			return
		}

		// The code is consumed; record the passed gate for ChangePassword.
		session.OTPChecked = true
		if err := s.flowSessions.Upsert(id, *session); err != nil {
			s.writeAuthError(w, err)
			return
		}

		jsonRes(w, http.StatusOK, true, "Verified")
	}
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	type request struct {
		NewPassword string `json:"newPassword"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, session, ok := s.flowFromCookie(r, CookieResetToken, flowsession.PurposeReset)
		if !ok {
			jsonRes(w, http.StatusUnauthorized, false, "Invalid request. Please start the password reset process again.")
			return
		}
		if !session.OTPChecked {
			jsonRes(w, http.StatusUnauthorized, false, "OTP verification required")
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil || req.NewPassword == "" {
			jsonRes(w, http.StatusBadRequest, false, "New password is required.")
			return
		}

		if err := s.service.ChangePassword(r.Context(), session.AccountID, req.NewPassword); err != nil {
			s.writeAuthError(w, err)
			return
		}

		_ = s.flowSessions.Delete(id)
		s.clearCookie(w, CookieResetToken)
		s.clearTriadCookies(w)
		jsonRes(w, http.StatusOK, true, "Password has been reset successfully.")
	}
}

func (s *Server) TerminateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())

		if err := s.service.Terminate(r.Context(), claims.UserID); err != nil {
			s.writeAuthError(w, err)
			return
		}

		s.clearTriadCookies(w)
		jsonRes(w, http.StatusOK, true, "Account deleted successfully")
	}
}
