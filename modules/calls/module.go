// Package calls integrates Parley with Zoom so users can mint video call
// links without leaving the app. The server holds an OAuth application
// registered by an administrator (see docs/zoom.md); each call link is
// created on behalf of the user who completes the authorization flow.
package calls

import (
	"database/sql"
	_ "embed"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/parleyhq/parley/engine"
	"github.com/parleyhq/parley/modules/auth"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

//go:embed schema.sql
var migration string

// CallbackPath is the redirect URL path registered with the Zoom OAuth app.
// Changing it breaks every deployed installation's Zoom configuration.
const CallbackPath = "/calls/zoom/complete"

// RequiredScopes are granted to the OAuth app in the Zoom console rather than
// requested per-authorization, so they never appear in the authorize URL.
// They're listed here so the setup doc can be checked against them.
var RequiredScopes = []string{"meeting:read:admin", "meeting:write:admin", "user:read:admin"}

const meetingTTL = 90 * 24 * 60 * 60 // drop call links after 90 days in seconds

var endpoint = oauth2.Endpoint{
	AuthURL:   "https://zoom.us/oauth/authorize",
	TokenURL:  "https://api.zoom.us/oauth/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

type Module struct {
	db       *sql.DB
	self     *url.URL
	authConf *oauth2.Config
	states   *engine.ValueSigner[oauthState]
	client   *zoomClient
	limiter  *rate.Limiter
}

type oauthState struct {
	User int64 `json:"u"`
}

func New(db *sql.DB, self *url.URL, clientID, clientSecret string) *Module {
	engine.MustMigrate(db, migration)
	return &Module{
		db:   db,
		self: self,
		authConf: &oauth2.Config{
			Endpoint:     endpoint,
			RedirectURL:  self.String() + CallbackPath,
			ClientID:     clientID,
			ClientSecret: clientSecret,
		},
		states:  engine.NewValueSigner[oauthState](),
		client:  newZoomClient(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/calls/zoom/register", router.WithAuthn(m.handleRegister))
	router.Handle("GET", CallbackPath, router.WithAuthn(m.handleComplete))
	router.Handle("POST", "/calls/zoom/deregister", router.WithAuthn(m.handleDeregister))
	router.Handle("GET", "/calls/recent", router.WithAuthn(m.handleRecent))
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Hour, engine.Cleanup(m.db, "stale call links",
		"DELETE FROM meetings WHERE created < unixepoch() - ?", meetingTTL)))
}

// handleRegister sends the user to Zoom's consent screen.
func (m *Module) handleRegister(r *http.Request) engine.Response {
	if m.authConf.ClientID == "" {
		return jsonError("Zoom credentials have not been configured")
	}

	state := m.states.Sign(oauthState{User: auth.GetUserMeta(r.Context()).ID}, 5*time.Minute)
	return engine.Redirect(m.authConf.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// handleComplete is the redirect URL registered with the Zoom OAuth app.
// It exchanges the authorization code, creates a meeting as the newly
// authorized Zoom user, and hands the join URL back to the client.
func (m *Module) handleComplete(r *http.Request) engine.Response {
	m.limiter.Wait(r.Context())

	state, valid := m.states.Verify(r.URL.Query().Get("state"))
	if !valid {
		return jsonError("Invalid or expired state")
	}
	if state.User != auth.GetUserMeta(r.Context()).ID {
		return engine.ClientErrorf(403, "this authorization was started by another user")
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		return jsonError("No code specified")
	}

	token, err := m.authConf.Exchange(r.Context(), code)
	if err != nil {
		return jsonError("Invalid Zoom credentials")
	}

	mtg, err := m.client.CreateMeeting(r.Context(), m.authConf.Client(r.Context(), token))
	if err != nil {
		return jsonError("Invalid Zoom access token")
	}

	_, err = m.db.ExecContext(r.Context(),
		"INSERT INTO meetings (uid, user, zoom_meeting_id, join_url) VALUES ($1, $2, $3, $4)",
		uuid.NewString(), state.User, mtg.ID, mtg.JoinURL)
	if err != nil {
		return engine.Errorf("storing meeting: %s", err)
	}

	return jsonSuccess(map[string]any{"url": mtg.JoinURL})
}

// handleDeregister exists so clients have somewhere to send "disconnect Zoom".
// The server keeps no per-user Zoom tokens, so there is nothing to revoke.
func (m *Module) handleDeregister(r *http.Request) engine.Response {
	return jsonSuccess(nil)
}

// handleRecent lists call links recently created by the requesting user.
func (m *Module) handleRecent(r *http.Request) engine.Response {
	rows, err := m.db.QueryContext(r.Context(),
		"SELECT uid, join_url, created FROM meetings WHERE user = $1 ORDER BY created DESC LIMIT 20",
		auth.GetUserMeta(r.Context()).ID)
	if err != nil {
		return engine.Errorf("listing meetings: %s", err)
	}
	defer rows.Close()

	type item struct {
		UID     string `json:"uid"`
		URL     string `json:"url"`
		Created int64  `json:"created"`
	}
	items := []item{}
	for rows.Next() {
		var i item
		if err := rows.Scan(&i.UID, &i.URL, &i.Created); err != nil {
			return engine.Errorf("scanning meeting row: %s", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return engine.Errorf("iterating meeting rows: %s", err)
	}

	return jsonSuccess(map[string]any{"meetings": items})
}
