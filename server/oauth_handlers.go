package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/acadnet/acadnet/server/oauthstate"
)

// OAuthRedirectHandler kicks off the provider handshake with a fresh
// single-use state value.
func (s *Server) OAuthRedirectHandler(providerName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := s.providers[providerName]
		if !ok {
			jsonRes(w, http.StatusNotFound, false, "Unknown provider")
			return
		}

		state := uuid.New().String()
		err := s.oauthFlows.Upsert(state, &oauthstate.Flow{
			Provider:  providerName,
			ReturnURL: r.URL.Query().Get("returnUrl"),
			CreatedAt: time.Now(),
		})
		if err != nil {
			jsonRes(w, http.StatusInternalServerError, false, "Server Error")
			return
		}

		http.Redirect(w, r, provider.AuthURL(state), http.StatusFound)
	}
}

// OAuthCallbackHandler completes the handshake. Any failure sends the browser
// back to the frontend rather than surfacing a JSON error page.
func (s *Server) OAuthCallbackHandler(providerName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failURL := s.config.HTTP.FrontendURL

		if r.FormValue("error") != "" {
			http.Redirect(w, r, failURL, http.StatusFound)
			return
		}

		state := r.FormValue("state")
		code := r.FormValue("code")
		if state == "" || code == "" {
			http.Redirect(w, r, failURL, http.StatusFound)
			return
		}

		flow, err := s.oauthFlows.Get(state)
		if err != nil {
			http.Redirect(w, r, failURL, http.StatusFound)
			return
		}
		_ = s.oauthFlows.Delete(state)

		provider, ok := s.providers[providerName]
		if !ok || flow.Provider != providerName {
			http.Redirect(w, r, failURL, http.StatusFound)
			return
		}

		identity, err := provider.ResolveIdentity(r.Context(), code)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", providerName).Msg("federated identity resolution failed")
			http.Redirect(w, r, failURL, http.StatusFound)
			return
		}

		triad, err := s.service.FederatedLogin(r.Context(), identity)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", providerName).Msg("federated login refused")
			http.Redirect(w, r, failURL, http.StatusFound)
			return
		}

		s.setTriadCookies(w, triad)

		target := s.config.HTTP.DashboardURL
		if flow.ReturnURL != "" {
			target = flow.ReturnURL
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}
