package auth

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/parleyhq/parley/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModule(t *testing.T) (*Module, *httpexpect.Expect) {
	db := engine.OpenTestDB(t)
	iss := engine.NewTokenIssuer(filepath.Join(t.TempDir(), "auth.pem"))
	m := New(db, &url.URL{Scheme: "http", Host: "localhost"}, nil, iss)

	router := engine.NewRouter(nil)
	router.Authenticator = m
	m.AttachRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return m, httpexpect.Default(t, server.URL)
}

func TestLoginPages(t *testing.T) {
	_, e := newTestModule(t)

	e.GET("/login").
		WithQuery("callback_uri", "/somewhere").
		Expect().
		Status(http.StatusOK).
		Body().Contains("/somewhere").Contains("email")

	e.GET("/login/code").
		Expect().
		Status(http.StatusOK).
		Body().Contains("code")
}

func TestLoginFlow(t *testing.T) {
	m, e := newTestModule(t)

	// Starting a login creates the user and a pending code
	e.POST("/login").
		WithForm(map[string]string{"email": "Foo@Example.com", "callback_uri": "/after"}).
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusSeeOther)

	var code int64
	require.NoError(t, m.db.QueryRow("SELECT code FROM logins LIMIT 1").Scan(&code))
	assert.GreaterOrEqual(t, code, int64(100000))

	// The wrong code doesn't grant a session
	e.POST("/login/code").
		WithForm(map[string]string{"code": "000000"}).
		Expect().
		Status(http.StatusForbidden)

	// The right code does
	resp := e.POST("/login/code").
		WithFormField("code", code).
		WithFormField("callback_uri", "/after").
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusFound)
	resp.Header("Location").IsEqual("/after")
	token := resp.Cookie("token").Value().Raw()
	require.NotEmpty(t, token)

	// Emails are normalized and users confirmed on first login
	var confirmed bool
	var email string
	require.NoError(t, m.db.QueryRow("SELECT email, confirmed FROM users LIMIT 1").Scan(&email, &confirmed))
	assert.Equal(t, "foo@example.com", email)
	assert.True(t, confirmed)

	// The session works
	e.GET("/whoami").
		WithCookie("token", token).
		Expect().
		Status(http.StatusOK).JSON().Object().
		Value("Email").IsEqual("foo@example.com")

	// Codes are single use
	e.POST("/login/code").
		WithFormField("code", code).
		Expect().
		Status(http.StatusForbidden)
}

func TestWithAuthn(t *testing.T) {
	m, e := newTestModule(t)

	// No cookie
	e.GET("/whoami").
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusFound).
		Header("Location").Contains("/login")

	// Garbage cookie
	e.GET("/whoami").
		WithCookie("token", "garbage").
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusFound)

	// Valid token for a deleted user
	tok, err := m.SignSession(42, time.Now().Add(time.Hour))
	require.NoError(t, err)
	e.GET("/whoami").
		WithCookie("token", tok).
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusFound)

	// Expired token
	_, err = m.db.Exec("INSERT INTO users (email, confirmed) VALUES ('foo', 1)")
	require.NoError(t, err)
	tok, err = m.SignSession(1, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	e.GET("/whoami").
		WithCookie("token", tok).
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusFound)
}

func TestLoginEmailWorkqueue(t *testing.T) {
	m, _ := newTestModule(t)

	_, err := m.db.Exec("INSERT INTO users (email) VALUES ('foo@example.com')")
	require.NoError(t, err)
	_, err = m.db.Exec("INSERT INTO logins (user, code) VALUES (1, 123456)")
	require.NoError(t, err)

	item, err := m.GetItem(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "foo@example.com", item.Email)
	assert.Equal(t, int64(123456), item.Code)

	// Failure reschedules delivery into the future
	require.NoError(t, m.UpdateItem(t.Context(), item, false))
	_, err = m.GetItem(t.Context())
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Success clears the pending send entirely
	_, err = m.db.Exec("UPDATE logins SET send_email_at = unixepoch() WHERE id = ?", item.ID)
	require.NoError(t, err)
	item, err = m.GetItem(t.Context())
	require.NoError(t, err)
	require.NoError(t, m.UpdateItem(t.Context(), item, true))
	_, err = m.GetItem(t.Context())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
