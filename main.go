// Parley is the main server of Parley.
// It's responsible for handling requests from the internet and storing persistent state in sqlite.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/parleyhq/parley/engine"
	"github.com/parleyhq/parley/modules/auth"
	"github.com/parleyhq/parley/modules/calls"
)

type Config struct {
	HttpAddr string `envDefault:":8080"`
	Dir      string

	EmailFrom        string
	EmailAppPassword string

	// Issued by the Zoom OAuth app registered for this installation.
	// See docs/zoom.md.
	VideoZoomClientID     string `env:"VIDEO_ZOOM_CLIENT_ID"`
	VideoZoomClientSecret string `env:"VIDEO_ZOOM_CLIENT_SECRET"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "PARLEY_", UseFieldNameByDefault: true})
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		err := engine.CheckHealthProbe("http://localhost:8080/healthz") // assume server is running on the default port
		if err != nil {
			panic(err)
		}
		return
	}

	database, err := engine.OpenDB(filepath.Join(conf.Dir, "parley.sqlite3"))
	if err != nil {
		panic(err)
	}

	app, _ := newApp(database, conf, getSelfURL(conf))
	app.Run(context.TODO())
}

func newApp(database *sql.DB, conf Config, self *url.URL) (*engine.App, *auth.Module) {
	router := engine.NewRouter(nil)
	router.Handle("GET", "/healthz", engine.ServeHealthProbe(database))

	var ec *auth.EmailConfig
	if conf.EmailFrom != "" {
		ec = auth.NewGoogleSmtpConfig(conf.EmailFrom, conf.EmailAppPassword)
	}

	a := engine.NewApp(conf.HttpAddr, router)

	authModule := auth.New(database, self, ec, engine.NewTokenIssuer(filepath.Join(conf.Dir, "auth.pem")))
	a.Add(authModule)
	a.Router.Authenticator = authModule // IMPORTANT

	if conf.VideoZoomClientID == "" {
		slog.Info("zoom credentials are not configured - call creation will be unavailable (see docs/zoom.md)")
	}
	a.Add(calls.New(database, self, conf.VideoZoomClientID, conf.VideoZoomClientSecret))

	return a, authModule
}

func getSelfURL(conf Config) *url.URL {
	str := os.Getenv("SELF_URL")
	if str == "" {
		conn, err := net.Dial("udp4", "8.8.8.8:53")
		if err != nil {
			panic(err)
		}
		conn.Close()

		_, port, _ := net.SplitHostPort(conf.HttpAddr)
		str = fmt.Sprintf("http://%s:%s", conn.LocalAddr().(*net.UDPAddr).IP, port)
		slog.Info("discovered self URL", "url", str)
	}

	self, err := url.Parse(str)
	if err != nil {
		panic(err)
	}
	return self
}
