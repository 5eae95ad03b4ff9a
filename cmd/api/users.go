package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"dreamkeys/auth"
	"dreamkeys/policy"
	"dreamkeys/property"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	PhotoURL  string `json:"photoURL,omitempty"`
	Role      string `json:"role"`
	IsFraud   bool   `json:"isFraud"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		PhotoURL:  u.PhotoURL,
		Role:      string(u.Role),
		IsFraud:   u.IsFraud,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.users.Login(r.Context(), auth.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUserResponse(res.User),
	})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	PhotoURL string `json:"photoURL"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
		Role:     auth.Role(req.Role),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{
		Message:    "user registered",
		InsertedID: u.ID,
		Data:       toUserResponse(u),
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authz.Check(r.Context(), subject(r), policy.AdminOnly()...); err != nil {
		writeError(w, r, err)
		return
	}
	users, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserRole(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "email is required"})
		return
	}
	role, err := s.users.RoleOf(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": string(role)})
}

func (s *Server) handleUserByEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authz.Check(r.Context(), subject(r), policy.Authenticated()); err != nil {
		writeError(w, r, err)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "email is required"})
		return
	}
	u, err := s.users.GetByEmail(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authz.Check(r.Context(), subject(r), policy.AdminOnly()...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.SetRole(r.Context(), claims.Email, chi.URLParam(r, "id"), role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMutation(w, "role updated", toUserResponse(u))
}

type userRemovalResponse struct {
	Message           string       `json:"message"`
	User              userResponse `json:"user"`
	DeletedProperties int64        `json:"deletedProperties"`
}

func (s *Server) handleMarkFraud(w http.ResponseWriter, r *http.Request) {
	req := subject(r)
	claims, err := s.authz.Check(r.Context(), req, policy.AdminOnly()...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.MarkFraud(r.Context(), claims.Email, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.purgeAgent(r.Context(), req, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userRemovalResponse{Message: "user flagged as fraud", User: toUserResponse(u), DeletedProperties: n})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	req := subject(r)
	claims, err := s.authz.Check(r.Context(), req, policy.AdminOnly()...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.Delete(r.Context(), claims.Email, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.purgeAgent(r.Context(), req, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userRemovalResponse{Message: "user deleted", User: toUserResponse(u), DeletedProperties: n})
}

// purgeAgent removes the listings of an agent that was just flagged or
// deleted. Agents without listings are not an error here.
func (s *Server) purgeAgent(ctx context.Context, req *policy.Request, u auth.User) (int64, error) {
	if u.Role != auth.RoleAgent {
		return 0, nil
	}
	n, err := s.properties.DeleteAllByAgent(ctx, req, u.Email)
	if errors.Is(err, property.ErrNoAgentProperties) {
		return 0, nil
	}
	if err != nil {
		zlog.Error().Err(err).Str("user_id", u.ID).Msg("agent property cascade failed")
		return 0, err
	}
	return n, nil
}
