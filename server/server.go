// Package server is the HTTP surface over the auth service: JSON endpoints
// for the credential and session lifecycle, the federated login redirects,
// and the cookie triad contract with the browser.
package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/acadnet/acadnet/auth"
	"github.com/acadnet/acadnet/federation"
	"github.com/acadnet/acadnet/internal/config"
	"github.com/acadnet/acadnet/server/flowsession"
	"github.com/acadnet/acadnet/server/oauthstate"
)

type Server struct {
	env          string
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	service      *auth.Service
	repos        auth.Repos
	providers    map[string]federation.Provider
	oauthFlows   oauthstate.Repo
	flowSessions flowsession.Repo
	logger       zerolog.Logger
}

func New(
	cfg config.Config,
	service *auth.Service,
	repos auth.Repos,
	providers []federation.Provider,
	oauthFlows oauthstate.Repo,
	flowSessions flowsession.Repo,
	logger zerolog.Logger,
) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("[Server New] auth service is required")
	}
	if oauthFlows == nil {
		return nil, fmt.Errorf("[Server New] oauth flow repo is required")
	}
	if flowSessions == nil {
		return nil, fmt.Errorf("[Server New] flow session repo is required")
	}

	providerMap := make(map[string]federation.Provider, len(providers))
	for _, p := range providers {
		providerMap[string(p.Name())] = p
	}

	s := &Server{
		env:          cfg.Env,
		mux:          http.NewServeMux(),
		config:       cfg,
		service:      service,
		repos:        repos,
		providers:    providerMap,
		oauthFlows:   oauthFlows,
		flowSessions: flowSessions,
		logger:       logger,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
