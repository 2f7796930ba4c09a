package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/lazypower/memkeeper/internal/auth"
	"github.com/lazypower/memkeeper/internal/store"
)

// PINHeader carries the edit PIN on gated requests.
const PINHeader = "X-Memory-Pin"

type ctxKey int

const userKey ctxKey = iota

func userFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(userKey).(*store.User)
	return u
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	HasPIN   bool   `json:"has_pin"`
}

func newUserResponse(u *store.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, HasPIN: u.HasPIN()}
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// credentials reads username/password from a JSON body or a form.
func credentials(w http.ResponseWriter, r *http.Request) (username, password string, err error) {
	if isJSON(r) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			return "", "", err
		}
		return req.Username, req.Password, nil
	}
	return r.PostFormValue("username"), r.PostFormValue("password"), nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	username, password, err := credentials(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	username, err = auth.NormalizeUsername(username)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := auth.ValidatePassword(password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	u, err := s.store.CreateUser(r.Context(), username, hash)
	if errors.Is(err, store.ErrUsernameTaken) {
		writeError(w, http.StatusBadRequest, "Username already registered")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.log.Info("user registered", "user_id", u.ID, "username", u.Username)
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "username": u.Username})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	username, password, err := credentials(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, r, err)
		return
	}
	if u == nil {
		s.hasher.Reject(password)
	}
	if u == nil || !s.hasher.Check(u.HashedPassword, password) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "Could not validate credentials")
}

// authenticate resolves the bearer token to a user and stores it in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w)
			return
		}
		claims, err := s.tokens.Verify(raw)
		if err != nil {
			unauthorized(w)
			return
		}

		u, err := s.users.Get(r.Context(), claims.UserID)
		if errors.Is(err, store.ErrNotFound) {
			unauthorized(w)
			return
		}
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if u.Username != claims.Username {
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

// requirePIN rejects the request unless the user has no PIN or the
// request carries the right one.
func (s *Server) requirePIN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := userFrom(r.Context())
		if u.HasPIN() && !s.hasher.Check(u.PINHash, r.Header.Get(PINHeader)) {
			writeError(w, http.StatusForbidden, "Invalid PIN")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newUserResponse(userFrom(r.Context())))
}

func (s *Server) handleSetPIN(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	var req struct {
		PIN        string `json:"pin"`
		CurrentPIN string `json:"current_pin"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if u.HasPIN() && !s.hasher.Check(u.PINHash, req.CurrentPIN) {
		writeError(w, http.StatusForbidden, "Invalid PIN")
		return
	}

	hash := ""
	if req.PIN != "" {
		if err := auth.ValidatePIN(req.PIN); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var err error
		if hash, err = s.hasher.Hash(req.PIN); err != nil {
			s.internalError(w, r, err)
			return
		}
	}

	if err := s.store.SetPINHash(r.Context(), u.ID, hash); err != nil {
		s.internalError(w, r, err)
		return
	}
	s.users.Invalidate(u.ID)

	updated := *u
	updated.PINHash = hash
	s.log.Info("edit PIN updated", "user_id", u.ID, "enabled", hash != "")
	writeJSON(w, http.StatusOK, newUserResponse(&updated))
}
