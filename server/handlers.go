package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/acadnet/acadnet/auth"
)

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func jsonRes(w http.ResponseWriter, status int, success bool, message string) {
	writeJSON(w, status, apiResponse{Success: success, Message: message})
}

func jsonData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, apiResponse{Success: true, Message: message, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, into any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(into)
}

// writeAuthError translates the service error taxonomy to HTTP. The error
// message is safe to echo; wrapped store context never reaches the client.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	kind := auth.KindOf(err)
	status := http.StatusInternalServerError
	message := "Server Error"

	switch kind {
	case auth.KindValidation:
		status, message = http.StatusBadRequest, unwrapMessage(err)
	case auth.KindNotFound:
		status, message = http.StatusNotFound, unwrapMessage(err)
	case auth.KindConflict:
		status, message = http.StatusConflict, unwrapMessage(err)
	case auth.KindUnauthorized:
		status, message = http.StatusUnauthorized, unwrapMessage(err)
	case auth.KindRateLimited:
		status, message = http.StatusTooManyRequests, unwrapMessage(err)
		var authErr *auth.Error
		if errors.As(err, &authErr) && authErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int((authErr.RetryAfter+time.Second-1)/time.Second)))
		}
	case auth.KindForbidden:
		status, message = http.StatusForbidden, unwrapMessage(err)
	case auth.KindUnavailable:
		status, message = http.StatusServiceUnavailable, "Service Unavailable"
	default:
		s.logger.Error().Err(err).Msg("unhandled service error")
	}

	jsonRes(w, status, false, message)
}

func unwrapMessage(err error) string {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return authErr.Err.Error()
	}
	return err.Error()
}

func (s *Server) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: httpOnly,
		Secure:   s.config.HTTP.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   s.config.HTTP.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// setTriadCookies installs the three-cookie session contract: the signed pair
// is httpOnly, the CSRF token is readable so the frontend can echo it in the
// request header.
func (s *Server) setTriadCookies(w http.ResponseWriter, triad *auth.SessionTriad) {
	s.setCookie(w, CookieAccessToken, triad.AccessToken, s.config.Tokens.AccessTTL, true)
	s.setCookie(w, CookieRefreshToken, triad.RefreshToken, s.config.Tokens.RefreshTTL, true)
	s.setCookie(w, CookieCSRFToken, triad.CSRFToken, s.config.Tokens.RefreshTTL, false)
}

func (s *Server) clearTriadCookies(w http.ResponseWriter) {
	s.clearCookie(w, CookieAccessToken)
	s.clearCookie(w, CookieRefreshToken)
	s.clearCookie(w, CookieCSRFToken)
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jsonRes(w, http.StatusOK, true, "ok")
	}
}
