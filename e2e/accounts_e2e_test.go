//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"testing"
	"time"
)

const defaultHTTPBase = "http://localhost:8080"

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient() *httpClient {
	base := os.Getenv("ACCOUNTS_HTTP_URL")
	if base == "" {
		base = defaultHTTPBase
	}
	return &httpClient{
		baseURL: base,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *httpClient) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	return resp, body
}

func (c *httpClient) postJSON(t *testing.T, path string, body any, cookies []*http.Cookie) (*http.Response, []byte) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json marshal failed: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return c.do(t, req)
}

func (c *httpClient) postMultipart(t *testing.T, path string, fields map[string]string, files map[string][]byte) (*http.Response, []byte) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field failed: %v", err)
		}
	}
	for name, content := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("create file part failed: %v", err)
		}
		if _, err = part.Write(content); err != nil {
			t.Fatalf("write file part failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer failed: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(t, req)
}

func (c *httpClient) get(t *testing.T, path string, cookies []*http.Cookie) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return c.do(t, req)
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/v1/users/login", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// fakePNG is enough bytes to pass through multipart handling; the media
// store does not inspect image contents.
var fakePNG = []byte("\x89PNG\r\n\x1a\nfake-image-bytes")

func TestAccountsE2E_HTTPFlow(t *testing.T) {
	httpBase := os.Getenv("ACCOUNTS_HTTP_URL")
	if httpBase == "" {
		httpBase = defaultHTTPBase
	}
	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}

	client := newHTTPClient()

	state := struct {
		email        string
		username     string
		password     string
		accessToken  *http.Cookie
		refreshToken *http.Cookie
		oldRefresh   string
	}{
		email:    fmt.Sprintf("e2e+%d@example.com", time.Now().UnixNano()),
		username: fmt.Sprintf("e2e%d", time.Now().UnixNano()),
		password: "StrongPass1!",
	}

	abort := false
	fail := func(t *testing.T, format string, args ...any) {
		abort = true
		t.Fatalf(format, args...)
	}

	step := func(name string, fn func(t *testing.T)) {
		t.Run(name, func(t *testing.T) {
			if abort {
				t.Skip("previous step failed")
			}
			fn(t)
		})
	}

	registerFields := func() map[string]string {
		return map[string]string{
			"fullName": "E2E Tester",
			"email":    state.email,
			"username": state.username,
			"password": state.password,
		}
	}

	step("LoginBeforeRegister", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/users/login", map[string]string{
			"email":    state.email,
			"password": state.password,
		}, nil)
		if resp.StatusCode != http.StatusNotFound {
			fail(t, "expected login before register to 404, got %d", resp.StatusCode)
		}
	})

	step("RegisterWithoutAvatar", func(t *testing.T) {
		resp, _ := client.postMultipart(t, "/api/v1/users/register", registerFields(), nil)
		if resp.StatusCode != http.StatusBadRequest {
			fail(t, "expected register without avatar to fail, got %d", resp.StatusCode)
		}
	})

	step("Register", func(t *testing.T) {
		resp, body := client.postMultipart(t, "/api/v1/users/register", registerFields(),
			map[string][]byte{"avatar": fakePNG, "coverImage": fakePNG})
		if resp.StatusCode != http.StatusCreated {
			fail(t, "register status: %d body: %s", resp.StatusCode, string(body))
		}

		var regRes struct {
			Username  string `json:"username"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := json.Unmarshal(body, &regRes); err != nil {
			fail(t, "register unmarshal failed: %v", err)
		}
		if regRes.Username != state.username {
			fail(t, "expected username %q, got %q", state.username, regRes.Username)
		}
		if regRes.AvatarURL == "" {
			fail(t, "expected avatar_url in register response")
		}
		if bytes.Contains(body, []byte("password")) {
			fail(t, "register response leaks credentials: %s", string(body))
		}
	})

	step("RegisterDuplicate", func(t *testing.T) {
		resp, _ := client.postMultipart(t, "/api/v1/users/register", registerFields(),
			map[string][]byte{"avatar": fakePNG})
		if resp.StatusCode != http.StatusConflict {
			fail(t, "expected duplicate register conflict, got %d", resp.StatusCode)
		}
	})

	step("LoginWrongPassword", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/users/login", map[string]string{
			"email":    state.email,
			"password": "wrong-password",
		}, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected wrong password to 401, got %d", resp.StatusCode)
		}
	})

	step("Login", func(t *testing.T) {
		resp, body := client.postJSON(t, "/api/v1/users/login", map[string]string{
			"email":    state.email,
			"password": state.password,
		}, nil)
		if resp.StatusCode != http.StatusOK {
			fail(t, "login status: %d body: %s", resp.StatusCode, string(body))
		}

		state.accessToken = cookieByName(resp.Cookies(), "accessToken")
		state.refreshToken = cookieByName(resp.Cookies(), "refreshToken")
		if state.accessToken == nil || state.refreshToken == nil {
			fail(t, "expected session cookies, got %v", resp.Cookies())
		}
		if !state.accessToken.HttpOnly || !state.refreshToken.HttpOnly {
			fail(t, "session cookies must be http-only")
		}
	})

	step("Me", func(t *testing.T) {
		resp, body := client.get(t, "/api/v1/users/me", []*http.Cookie{state.accessToken})
		if resp.StatusCode != http.StatusOK {
			fail(t, "me status: %d body: %s", resp.StatusCode, string(body))
		}

		var meRes struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(body, &meRes); err != nil {
			fail(t, "me unmarshal failed: %v", err)
		}
		if meRes.Email != state.email {
			fail(t, "expected email %q, got %q", state.email, meRes.Email)
		}
	})

	step("MeWithoutToken", func(t *testing.T) {
		resp, _ := client.get(t, "/api/v1/users/me", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected me without token to 401, got %d", resp.StatusCode)
		}
	})

	step("RefreshRotatesToken", func(t *testing.T) {
		state.oldRefresh = state.refreshToken.Value

		resp, body := client.postJSON(t, "/api/v1/users/refresh-token", nil,
			[]*http.Cookie{state.refreshToken})
		if resp.StatusCode != http.StatusOK {
			fail(t, "refresh status: %d body: %s", resp.StatusCode, string(body))
		}

		rotated := cookieByName(resp.Cookies(), "refreshToken")
		access := cookieByName(resp.Cookies(), "accessToken")
		if rotated == nil || access == nil {
			fail(t, "expected rotated session cookies, got %v", resp.Cookies())
		}
		if rotated.Value == state.oldRefresh {
			fail(t, "refresh token was not rotated")
		}
		state.refreshToken = rotated
		state.accessToken = access
	})

	step("RefreshWithStaleToken", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/users/refresh-token", nil,
			[]*http.Cookie{{Name: "refreshToken", Value: state.oldRefresh}})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected stale refresh to 401, got %d", resp.StatusCode)
		}
	})

	step("Logout", func(t *testing.T) {
		resp, body := client.postJSON(t, "/api/v1/users/logout", nil,
			[]*http.Cookie{state.accessToken})
		if resp.StatusCode != http.StatusOK {
			fail(t, "logout status: %d body: %s", resp.StatusCode, string(body))
		}

		cleared := cookieByName(resp.Cookies(), "refreshToken")
		if cleared == nil || cleared.Value != "" {
			fail(t, "expected cleared refresh cookie, got %v", resp.Cookies())
		}
	})

	step("RefreshAfterLogout", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/users/refresh-token", nil,
			[]*http.Cookie{state.refreshToken})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected refresh after logout to 401, got %d", resp.StatusCode)
		}
	})

	step("LoginAgainAfterLogout", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/users/login", map[string]string{
			"username": state.username,
			"password": state.password,
		}, nil)
		if resp.StatusCode != http.StatusOK {
			fail(t, "expected login after logout to succeed, got %d", resp.StatusCode)
		}
	})
}
