package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tamarabolmanac/hajki-quiz/internal/auth"
	"github.com/tamarabolmanac/hajki-quiz/internal/presence"
	"github.com/tamarabolmanac/hajki-quiz/internal/store"
)

type API struct {
	Users    store.Users
	Auth     *auth.Service
	Presence *presence.Tracker
	Log      *zap.Logger
}

type credentials struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatar_url"`
}

type sessionResponse struct {
	Token string     `json:"token"`
	User  publicUser `json:"user"`
}

type publicUser struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if creds.Name == "" || creds.Email == "" || len(creds.Password) < 8 {
		http.Error(w, "name, email and a password of at least 8 characters are required", http.StatusUnprocessableEntity)
		return
	}

	digest, err := auth.HashPassword(creds.Password)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	user := store.User{
		Name:           creds.Name,
		Email:          creds.Email,
		AvatarURL:      creds.AvatarURL,
		PasswordDigest: digest,
	}
	if err := a.Users.CreateUser(r.Context(), &user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		a.Log.Error("register failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	a.issueSession(w, &user, http.StatusCreated)
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	user, err := a.Users.UserByEmail(r.Context(), creds.Email)
	if err != nil || !auth.CheckPassword(user.PasswordDigest, creds.Password) {
		// Same answer for unknown email and wrong password.
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	a.issueSession(w, user, http.StatusOK)
}

func (a *API) issueSession(w http.ResponseWriter, user *store.User, status int) {
	token, err := a.Auth.IssueToken(user.ID, user.Name)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, sessionResponse{
		Token: token,
		User: publicUser{
			ID:        user.ID,
			Name:      user.Name,
			Email:     user.Email,
			AvatarURL: user.AvatarURL,
		},
	})
}

// OnlineUsers is the snapshot clients fetch before streaming presence
// deltas. The body is a bare JSON array.
func (a *API) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Presence.Snapshot())
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
