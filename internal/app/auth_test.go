package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"panehub/server/internal/auth"
	"panehub/server/internal/session"

	"github.com/gorilla/websocket"
)

func newGatedServer(t *testing.T) *HTTPServer {
	t.Helper()
	creds, err := auth.NewCredentials("admin", "hunter2")
	if err != nil {
		t.Fatalf("NewCredentials() error = %v", err)
	}
	gate := auth.NewGate([]byte("test-secret"), creds, session.NewMemoryStore(), time.Hour)
	server, _ := newTestServer(t, Options{}, Services{Gate: gate})
	return server
}

func withCookie(req *http.Request, cookie *http.Cookie) *http.Request {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func login(t *testing.T, h http.Handler, password string) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()
	rr := post(t, h, "/login", `{"username":"admin","password":"`+password+`"}`)
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return rr, c
		}
	}
	return rr, nil
}

func TestLoginDisabled(t *testing.T) {
	server, _ := newTestServer(t, Options{}, Services{})
	rr := post(t, server.Handler(), "/login", `{"username":"a","password":"b"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGateRejectsAnonymousRequests(t *testing.T) {
	server := newGatedServer(t)
	h := server.Handler()

	rr := post(t, h, "/events", textPane)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("events status = %d, want 400", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["code"] != "UNAUTHORIZED" {
		t.Fatalf("events body = %s (%v)", rr.Body.String(), err)
	}

	rr = get(t, h, "/env/main")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `id="login"`) {
		t.Fatalf("page without cookie = %d %s", rr.Code, rr.Body.String())
	}

	if rr := get(t, h, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
}

func TestGateClosesAnonymousSockets(t *testing.T) {
	server := newGatedServer(t)
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	ws := dial(t, srv, "/socket")
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected a policy violation close, got %v", err)
	}
}

func TestLoginLogout(t *testing.T) {
	server := newGatedServer(t)
	h := server.Handler()

	rr, cookie := login(t, h, "wrong")
	if rr.Code != http.StatusBadRequest || cookie != nil {
		t.Fatalf("bad login = %d, cookie %v", rr.Code, cookie)
	}

	rr, cookie = login(t, h, "hunter2")
	if rr.Code != http.StatusOK || cookie == nil {
		t.Fatalf("login = %d %s", rr.Code, rr.Body.String())
	}
	if !cookie.HttpOnly || cookie.Path != "/" {
		t.Fatalf("cookie = %+v", cookie)
	}

	req := withCookie(httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(textPane)), cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	expectText(t, rr, "notes")

	req = withCookie(httptest.NewRequest(http.MethodPost, "/logout", nil), cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout = %d", rr.Code)
	}

	req = withCookie(httptest.NewRequest(http.MethodPost, "/win_exists", strings.NewReader(`{"win":"notes"}`)), cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("revoked cookie status = %d, want 400", rr.Code)
	}
}
