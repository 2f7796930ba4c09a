package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lazypower/memkeeper/internal/auth"
	"github.com/lazypower/memkeeper/internal/store"
)

func TestRegister(t *testing.T) {
	srv := testServer(t)

	w := do(srv, jsonRequest("POST", "/register", `{"username":"  ann  ","password":"secret"}`, ""))
	wantStatus(t, w, http.StatusOK)
	body := decodeBody[map[string]any](t, w)
	if body["username"] != "ann" {
		t.Errorf("username = %v, want trimmed ann", body["username"])
	}
	if _, ok := body["password"]; ok {
		t.Error("response must not echo the password")
	}

	w = do(srv, jsonRequest("POST", "/register", `{"username":"ann","password":"other"}`, ""))
	wantStatus(t, w, http.StatusBadRequest)
	wantDetail(t, w, "Username already registered")
}

func TestRegisterForm(t *testing.T) {
	srv := testServer(t)
	w := do(srv, formRequest("POST", "/register", url.Values{"username": {"bob"}, "password": {"secret"}}, ""))
	wantStatus(t, w, http.StatusOK)
}

func TestRegisterValidation(t *testing.T) {
	srv := testServer(t)

	bodies := []string{
		`{"username":"ab","password":"secret"}`,
		`{"username":"ann","password":"abc"}`,
		`{"username":"   ","password":"secret"}`,
		`not json`,
	}
	for _, b := range bodies {
		w := do(srv, jsonRequest("POST", "/register", b, ""))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", b, w.Code)
		}
	}
}

func TestToken(t *testing.T) {
	srv := testServer(t)
	token := login(t, srv, "ann")
	if token == "" {
		t.Fatal("empty token")
	}

	w := do(srv, formRequest("POST", "/token", url.Values{"username": {"ann"}, "password": {"secret"}}, ""))
	body := decodeBody[map[string]string](t, w)
	if body["token_type"] != "bearer" {
		t.Errorf("token_type = %q, want bearer", body["token_type"])
	}
}

func TestTokenBadCredentials(t *testing.T) {
	srv := testServer(t)
	login(t, srv, "ann")

	for _, form := range []url.Values{
		{"username": {"ann"}, "password": {"wrong"}},
		{"username": {"nobody"}, "password": {"secret"}},
		{},
	} {
		w := do(srv, formRequest("POST", "/token", form, ""))
		wantStatus(t, w, http.StatusUnauthorized)
		wantDetail(t, w, "Incorrect username or password")
		if w.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("missing WWW-Authenticate header")
		}
	}
}

func TestMe(t *testing.T) {
	srv := testServer(t)
	token := login(t, srv, "ann")

	w := do(srv, jsonRequest("GET", "/me", "", token))
	wantStatus(t, w, http.StatusOK)
	me := decodeBody[userResponse](t, w)
	if me.Username != "ann" || me.ID == 0 || me.HasPIN {
		t.Errorf("me = %+v", me)
	}
}

func TestMeInvalidTokens(t *testing.T) {
	srv := testServer(t)

	expired, err := auth.NewIssuer("test-secret", time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	u, err := srv.store.CreateUser(context.Background(), "ann", "x")
	if err != nil {
		t.Fatal(err)
	}
	stale, err := expired.Issue(u)
	if err != nil {
		t.Fatal(err)
	}
	// Expiry is truncated to whole seconds, so it is already in the past.
	time.Sleep(10 * time.Millisecond)

	forged, err := auth.NewIssuer("other-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	forgedToken, _ := forged.Issue(u)

	for name, header := range map[string]string{
		"missing": "",
		"scheme":  "Basic abc",
		"garbage": "Bearer not-a-jwt",
		"expired": "Bearer " + stale,
		"forged":  "Bearer " + forgedToken,
	} {
		req := httptest.NewRequest("GET", "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := do(srv, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, w.Code)
		}
	}
}

func TestDeletedUserToken(t *testing.T) {
	srv := testServer(t)

	// A token for a user id that does not exist.
	token, err := srv.tokens.Issue(&store.User{ID: 999, Username: "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	w := do(srv, jsonRequest("GET", "/me", "", token))
	wantStatus(t, w, http.StatusUnauthorized)
}
