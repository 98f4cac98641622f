package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/acadnet/acadnet/users"
)

const defaultAdminPageSize = 50

func (s *Server) AdminListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 500 {
			limit = defaultAdminPageSize
		}

		accounts, err := s.repos.Users.List(r.Context(), offset, limit)
		if err != nil {
			s.writeAuthError(w, err)
			return
		}

		jsonData(w, http.StatusOK, "Success", map[string]any{"users": accounts})
	}
}

func (s *Server) AdminDeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
		if err != nil {
			jsonRes(w, http.StatusBadRequest, false, "Invalid user id")
			return
		}

		if err := s.service.Terminate(r.Context(), userID); err != nil {
			s.writeAuthError(w, err)
			return
		}

		jsonRes(w, http.StatusOK, true, "User deleted")
	}
}

func (s *Server) AdminBanUserHandler() http.HandlerFunc {
	type request struct {
		Banned bool `json:"banned"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
		if err != nil {
			jsonRes(w, http.StatusBadRequest, false, "Invalid user id")
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			jsonRes(w, http.StatusBadRequest, false, "Invalid request body")
			return
		}

		if err := s.repos.Users.SetBanned(r.Context(), userID, req.Banned); err != nil {
			if errors.Is(err, users.ErrNotFound) {
				jsonRes(w, http.StatusNotFound, false, "User not found")
				return
			}
			s.writeAuthError(w, err)
			return
		}

		// A ban takes effect immediately, not at access-token expiry.
		if req.Banned {
			if err := s.service.LogoutAll(r.Context(), userID); err != nil {
				s.writeAuthError(w, err)
				return
			}
		}

		jsonRes(w, http.StatusOK, true, "User updated")
	}
}

func (s *Server) AdminRoleHandler() http.HandlerFunc {
	type request struct {
		Role string `json:"role"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
		if err != nil {
			jsonRes(w, http.StatusBadRequest, false, "Invalid user id")
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			jsonRes(w, http.StatusBadRequest, false, "Invalid request body")
			return
		}

		role := users.RoleType(req.Role)
		switch role {
		case users.RoleUser, users.RoleGroupAdmin, users.RoleAdmin:
		default:
			jsonRes(w, http.StatusBadRequest, false, "Invalid role")
			return
		}

		if err := s.repos.Users.SetRole(r.Context(), userID, role); err != nil {
			if errors.Is(err, users.ErrNotFound) {
				jsonRes(w, http.StatusNotFound, false, "User not found")
				return
			}
			s.writeAuthError(w, err)
			return
		}

		jsonRes(w, http.StatusOK, true, "User updated")
	}
}
