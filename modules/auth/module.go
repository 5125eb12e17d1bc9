package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/parleyhq/parley/engine"
)

//go:embed schema.sql
var migration string

const sessionTTL = time.Hour * 24 * 30

type Module struct {
	// Mailer delivers login code emails. Replaced in tests.
	Mailer func(ctx context.Context, to, subj string, msg []byte) bool

	db     *sql.DB
	self   *url.URL
	issuer *engine.TokenIssuer
}

func New(db *sql.DB, self *url.URL, ec *EmailConfig, iss *engine.TokenIssuer) *Module {
	engine.MustMigrate(db, migration)
	m := &Module{db: db, self: self, issuer: iss}

	// SMTP is optional - log to the console if not configured
	if ec == nil {
		m.Mailer = devEmailSender
	} else {
		m.Mailer = newSmtpSender(ec)
	}
	return m
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/login", func(r *http.Request) engine.Response {
		return engine.HTML(renderLoginPage(r.URL.Query().Get("callback_uri")))
	})

	router.Handle("GET", "/login/code", func(r *http.Request) engine.Response {
		return engine.HTML(renderLoginCodePage(r.URL.Query().Get("callback_uri")))
	})

	router.Handle("GET", "/whoami", m.WithAuthn(func(r *http.Request) engine.Response {
		return engine.JSON(GetUserMeta(r.Context()))
	}))

	router.Handle("GET", "/logout", func(r *http.Request) engine.Response {
		cook := &http.Cookie{Name: "token", Path: "/", MaxAge: -1}
		return engine.WithCookie(cook, engine.Redirect("/login", http.StatusTemporaryRedirect))
	})

	router.Handle("POST", "/login", m.handleLoginFormPost)
	router.Handle("POST", "/login/code", m.handleLoginCodeFormPost)
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Minute, engine.Cleanup(m.db, "stale logins",
		"DELETE FROM logins WHERE created <= unixepoch() - 300")))
	mgr.Add(engine.Poll(time.Minute, engine.Cleanup(m.db, "unconfirmed users",
		"DELETE FROM users WHERE created <= unixepoch() - 86400 AND confirmed = 0")))
	mgr.Add(engine.Poll(time.Second, engine.PollWorkqueue(engine.WithRateLimiting[*loginEmail](m, 1))))
}

// WithAuthn authenticates incoming requests, or redirects them to the login page.
func (m *Module) WithAuthn(next engine.Handler) engine.Handler {
	return func(r *http.Request) engine.Response {
		q := url.Values{}
		q.Add("callback_uri", r.URL.String())

		cook, err := r.Cookie("token")
		if err != nil {
			return engine.Redirect("/login?"+q.Encode(), http.StatusFound)
		}
		claims, err := m.issuer.Verify(cook.Value)
		if err != nil || len(claims.Audience) == 0 || claims.Audience[0] != "parley" {
			return engine.Redirect("/login?"+q.Encode(), http.StatusFound)
		}

		meta := UserMetadata{}
		err = m.db.QueryRowContext(r.Context(),
			"SELECT id, email, confirmed, admin FROM users WHERE id = ? LIMIT 1", claims.Subject).
			Scan(&meta.ID, &meta.Email, &meta.Confirmed, &meta.Admin)
		if err != nil {
			return engine.Redirect("/login?"+q.Encode(), http.StatusFound)
		}

		return next(r.WithContext(withUserMeta(r.Context(), &meta)))
	}
}

// handleLoginFormPost starts a login flow for the given user (by email).
func (m *Module) handleLoginFormPost(r *http.Request) engine.Response {
	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	if email == "" {
		return engine.ClientErrorf(400, "an email address is required")
	}

	// Find the corresponding user ID or insert a new row if one doesn't exist for this email address
	var userID int64
	err := m.db.QueryRowContext(r.Context(),
		"INSERT INTO users (email) VALUES ($1) ON CONFLICT (email) DO UPDATE SET email=email RETURNING id", email).
		Scan(&userID)
	if err != nil {
		return engine.Errorf("finding user id: %s", err)
	}

	_, err = m.db.ExecContext(r.Context(), "INSERT INTO logins (user, code) VALUES ($1, $2)", userID, generateLoginCode())
	if err != nil {
		return engine.Errorf("creating login: %s", err)
	}

	q := url.Values{}
	q.Add("callback_uri", r.FormValue("callback_uri"))
	return engine.Redirect("/login/code?"+q.Encode(), http.StatusSeeOther)
}

// handleLoginCodeFormPost exchanges a login code for a session cookie and
// redirects the user back to where they were headed.
func (m *Module) handleLoginCodeFormPost(r *http.Request) engine.Response {
	code, _ := strconv.ParseInt(r.FormValue("code"), 10, 0)

	var userID int64
	err := m.db.QueryRowContext(r.Context(), "DELETE FROM logins WHERE code = ? RETURNING user", code).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ClientErrorf(403, "Invalid login code")
	}
	if err != nil {
		return engine.Errorf("invalidating login code: %s", err)
	}

	_, err = m.db.ExecContext(r.Context(), "UPDATE users SET confirmed = 1 WHERE id = ? AND confirmed = 0", userID)
	if err != nil {
		return engine.Errorf("confirming user email: %s", err)
	}

	exp := time.Now().Add(sessionTTL)
	token, err := m.SignSession(userID, exp)
	if err != nil {
		return engine.Errorf("signing jwt: %s", err)
	}
	cook := &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
		Secure:   strings.Contains(m.self.Scheme, "s"),
	}

	callback := r.FormValue("callback_uri")
	if callback == "" || !strings.HasPrefix(callback, "/") {
		callback = "/"
	}
	return engine.WithCookie(cook, engine.Redirect(callback, http.StatusFound))
}

// SignSession mints a session token for the given user.
func (m *Module) SignSession(userID int64, exp time.Time) (string, error) {
	return m.issuer.Sign(&jwt.RegisteredClaims{
		Issuer:    "parley",
		Subject:   strconv.FormatInt(userID, 10),
		Audience:  jwt.ClaimStrings{"parley"},
		ExpiresAt: jwt.NewNumericDate(exp),
	})
}

// generateLoginCode generates a sufficiently random int that happens to be "6 digits"
func generateLoginCode() int64 {
	const max = 999998
	const min = 100001
	val, err := rand.Int(rand.Reader, big.NewInt(max-min))
	if err != nil {
		panic(fmt.Sprintf("generating random number for login code: %s", err))
	}
	return max - val.Int64()
}

type loginEmail struct {
	ID    int64
	Code  int64
	Email string
}

func (l *loginEmail) String() string { return fmt.Sprintf("loginID=%d", l.ID) }

func (m *Module) GetItem(ctx context.Context) (*loginEmail, error) {
	item := &loginEmail{}
	err := m.db.QueryRowContext(ctx, `
		SELECT logins.id, logins.code, users.email FROM logins
		JOIN users ON logins.user = users.id
		WHERE logins.send_email_at IS NOT NULL AND logins.send_email_at <= unixepoch()
		ORDER BY logins.send_email_at ASC LIMIT 1`).
		Scan(&item.ID, &item.Code, &item.Email)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (m *Module) ProcessItem(ctx context.Context, item *loginEmail) error {
	slog.Info("sending login email", "loginID", item.ID, "email", item.Email)
	if !m.Mailer(ctx, item.Email, "Parley Login Code", renderLoginEmail(item.Code)) {
		return fmt.Errorf("delivery failed")
	}
	return nil
}

func (m *Module) UpdateItem(ctx context.Context, item *loginEmail, success bool) error {
	if success {
		_, err := m.db.ExecContext(ctx, "UPDATE logins SET send_email_at = NULL WHERE id = $1", item.ID)
		return err
	}
	_, err := m.db.ExecContext(ctx, "UPDATE logins SET send_email_at = unixepoch() + 10 WHERE id = $1", item.ID)
	return err
}
