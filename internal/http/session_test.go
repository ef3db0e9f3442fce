package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/sbaj179/School-Connect-2/internal/auth"
)

func getWithCookies(t *testing.T, url string, cookies []*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}

func responseCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestSessionWithoutCookie(t *testing.T) {
	backend := newFakeBackend()
	app := newTestServer(backend, 8)
	defer app.Close()

	resp, err := http.Get(app.URL + "/api/session")
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		User  *sessionUser `json:"user"`
		Error *string      `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.User != nil {
		t.Fatalf("expected nil user")
	}
	if body.Error == nil || *body.Error != "no-session" {
		t.Fatalf("expected no-session, got %v", body.Error)
	}
}

func TestSessionStaleTokenSignsOut(t *testing.T) {
	backend := newFakeBackend()
	app := newTestServer(backend, 8)
	defer app.Close()

	// Token that the provider no longer recognizes.
	resp := getWithCookies(t, app.URL+"/api/session", []*http.Cookie{
		{Name: accessTokenCookie, Value: "token-gone"},
		{Name: refreshTokenCookie, Value: "refresh-gone"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		User  *sessionUser `json:"user"`
		Error *string      `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.User != nil {
		t.Fatalf("expected nil user")
	}
	if body.Error == nil || *body.Error != "stale-session" {
		t.Fatalf("expected stale-session, got %v", body.Error)
	}

	access := responseCookie(resp, accessTokenCookie)
	if access == nil || access.Value != "" || access.MaxAge != -1 {
		t.Fatalf("expected access cookie to be cleared, got %+v", access)
	}
	refresh := responseCookie(resp, refreshTokenCookie)
	if refresh == nil || refresh.Value != "" || refresh.MaxAge != -1 {
		t.Fatalf("expected refresh cookie to be cleared, got %+v", refresh)
	}
}

func TestSessionValidTokenMirrorsCookies(t *testing.T) {
	backend := newFakeBackend()
	ident, token := backend.seedIdentity("sam@students.local")
	app := newTestServer(backend, 8)
	defer app.Close()

	resp := getWithCookies(t, app.URL+"/api/session", []*http.Cookie{
		{Name: accessTokenCookie, Value: token},
		{Name: refreshTokenCookie, Value: "refresh-" + token},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		User  *sessionUser `json:"user"`
		Error *string      `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error != nil {
		t.Fatalf("expected nil error, got %v", *body.Error)
	}
	if body.User == nil || body.User.ID != ident.ID {
		t.Fatalf("expected user %s, got %+v", ident.ID, body.User)
	}

	access := responseCookie(resp, accessTokenCookie)
	if access == nil || access.Value != token {
		t.Fatalf("expected mirrored access cookie")
	}
	refresh := responseCookie(resp, refreshTokenCookie)
	if refresh == nil || refresh.Value != "refresh-"+token {
		t.Fatalf("expected mirrored refresh cookie")
	}
}

func TestSessionStaleRevokesProviderSessions(t *testing.T) {
	backend := newFakeBackend()
	app := newTestServer(backend, 8)
	defer app.Close()

	// A token that still verifies but whose identity the provider no longer
	// recognizes; its refresh sessions must be revoked along with the cookies.
	token, err := auth.NewAccessToken("test-secret", "test-issuer", time.Hour, auth.Claims{
		IdentityID: "gone-id",
		Email:      "gone@students.local",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	resp := getWithCookies(t, app.URL+"/api/session", []*http.Cookie{
		{Name: accessTokenCookie, Value: token},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		User  *sessionUser `json:"user"`
		Error *string      `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error == nil || *body.Error != "stale-session" {
		t.Fatalf("expected stale-session, got %v", body.Error)
	}
	if len(backend.signedOut) != 1 || backend.signedOut[0] != "gone-id" {
		t.Fatalf("expected provider sign-out for gone-id, got %v", backend.signedOut)
	}
}

func TestLoginSetsCookies(t *testing.T) {
	backend := newFakeBackend()
	ident, _ := backend.seedIdentity("t.brown@school.org")
	backend.passwords[ident.Email] = "pw-123456"
	app := newTestServer(backend, 8)
	defer app.Close()

	resp := postJSON(t, app.URL+"/api/login", map[string]string{
		"email":    "T.Brown@School.org",
		"password": "pw-123456",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body loginResponse
	decodeBody(t, resp, &body)
	if body.User.ID != ident.ID {
		t.Fatalf("expected user id %s, got %s", ident.ID, body.User.ID)
	}
	access := responseCookie(resp, accessTokenCookie)
	if access == nil {
		t.Fatalf("expected access cookie on login")
	}
	if access.MaxAge != int(time.Hour.Seconds()) {
		t.Fatalf("expected access cookie Max-Age from token TTL, got %d", access.MaxAge)
	}
	refresh := responseCookie(resp, refreshTokenCookie)
	if refresh == nil {
		t.Fatalf("expected refresh cookie on login")
	}
	if refresh.MaxAge != int((24 * time.Hour).Seconds()) {
		t.Fatalf("expected refresh cookie Max-Age from token TTL, got %d", refresh.MaxAge)
	}

	resp = postJSON(t, app.URL+"/api/login", map[string]string{
		"email":    ident.Email,
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestLogoutClearsCookies(t *testing.T) {
	backend := newFakeBackend()
	_, token := backend.seedIdentity("sam@students.local")
	app := newTestServer(backend, 8)
	defer app.Close()

	req, err := http.NewRequest(http.MethodPost, app.URL+"/api/logout", nil)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: token})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	access := responseCookie(resp, accessTokenCookie)
	if access == nil || access.MaxAge != -1 {
		t.Fatalf("expected access cookie cleared on logout")
	}
}
