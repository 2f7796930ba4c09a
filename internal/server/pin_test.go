package server

import (
	"fmt"
	"net/http"
	"testing"
)

func setPIN(t *testing.T, srv *Server, token, body string) *userResponse {
	t.Helper()
	w := do(srv, jsonRequest("PUT", "/me/pin", body, token))
	if w.Code != http.StatusOK {
		return nil
	}
	me := decodeBody[userResponse](t, w)
	return &me
}

func TestPINGate(t *testing.T) {
	srv := testServer(t)
	token := login(t, srv, "ann")
	m := createMemory(t, srv, token, `{"title":"guarded","image_url":"https://img/1.jpg"}`)
	path := fmt.Sprintf("/memories/%d", m.ID)

	// Prime the user cache before the PIN exists.
	wantStatus(t, do(srv, jsonRequest("GET", "/me", "", token)), http.StatusOK)

	me := setPIN(t, srv, token, `{"pin":"1234"}`)
	if me == nil || !me.HasPIN {
		t.Fatalf("set PIN response = %+v", me)
	}

	// Reads are not gated.
	wantStatus(t, do(srv, jsonRequest("GET", path, "", token)), http.StatusOK)

	for _, pin := range []string{"", "9999"} {
		req := jsonRequest("PUT", path, `{"title":"x"}`, token)
		if pin != "" {
			req.Header.Set(PINHeader, pin)
		}
		w := do(srv, req)
		wantStatus(t, w, http.StatusForbidden)
		wantDetail(t, w, "Invalid PIN")
	}

	req := jsonRequest("DELETE", fmt.Sprintf("/memories/images/%d", m.Images[0].ID), "", token)
	wantStatus(t, do(srv, req), http.StatusForbidden)

	req = jsonRequest("DELETE", path, "", token)
	req.Header.Set(PINHeader, "1234")
	wantStatus(t, do(srv, req), http.StatusOK)
}

func TestSetPIN(t *testing.T) {
	srv := testServer(t)
	token := login(t, srv, "ann")

	if setPIN(t, srv, token, `{"pin":"12"}`) != nil {
		t.Error("short PIN accepted")
	}
	if setPIN(t, srv, token, `{"pin":"abcd"}`) != nil {
		t.Error("non-digit PIN accepted")
	}
	if me := setPIN(t, srv, token, `{"pin":"1234"}`); me == nil || !me.HasPIN {
		t.Fatal("PIN not set")
	}

	// Changing requires the current PIN.
	w := do(srv, jsonRequest("PUT", "/me/pin", `{"pin":"5678"}`, token))
	wantStatus(t, w, http.StatusForbidden)
	w = do(srv, jsonRequest("PUT", "/me/pin", `{"pin":"5678","current_pin":"0000"}`, token))
	wantStatus(t, w, http.StatusForbidden)
	if me := setPIN(t, srv, token, `{"pin":"5678","current_pin":"1234"}`); me == nil || !me.HasPIN {
		t.Fatal("PIN not changed")
	}

	// Clearing turns the gate off.
	if me := setPIN(t, srv, token, `{"pin":"","current_pin":"5678"}`); me == nil || me.HasPIN {
		t.Fatal("PIN not cleared")
	}
	w = do(srv, jsonRequest("GET", "/me", "", token))
	if decodeBody[userResponse](t, w).HasPIN {
		t.Error("/me still reports a PIN after clearing")
	}
}
