// Paydesk is a small payments server. It keeps a Stripe secret key in a
// sqlite-backed settings store, guards that configuration behind a super
// admin check, and creates Stripe payment intents on behalf of a storefront.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/paydesk/paydesk/engine"
	"github.com/paydesk/paydesk/engine/settings"
	"github.com/paydesk/paydesk/modules/auth"
	"github.com/paydesk/paydesk/modules/payment"
	"github.com/paydesk/paydesk/modules/pruning"
	"golang.org/x/time/rate"
)

type Config struct {
	HttpAddr string `envDefault:":8080"`
	DBPath   string `envDefault:"paydesk.sqlite3"`

	// BootstrapAdminEmail is the super admin seeded into an empty database.
	BootstrapAdminEmail string `envDefault:"admin@localhost"`

	// Rate limit for the public payment endpoint.
	PayRatePerSecond float64 `envDefault:"5"`
	PayRateBurst     int     `envDefault:"10"`

	// EventTTLDays controls how long payment events are retained.
	EventTTLDays int `envDefault:"730"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "PAYDESK_", UseFieldNameByDefault: true})
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

	app, err := newApp(conf)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	app.Run(ctx)
}

func newApp(conf Config) (*engine.App, error) {
	database, err := engine.OpenDB(conf.DBPath)
	if err != nil {
		return nil, err
	}

	router := engine.NewRouter()
	router.HandleFunc("GET", "/healthz", engine.ServeHealthProbe(database))

	app := engine.NewApp(conf.HttpAddr, router)

	authModule, err := auth.New(database, engine.NewTokenIssuer("auth.pem"), conf.BootstrapAdminEmail)
	if err != nil {
		return nil, err
	}
	app.Add(authModule)
	app.Router.Authenticator = authModule // must be set before adding modules that use WithSuperAdmin

	store := settings.New(database)
	eventLogger := engine.NewEventLogger(database)

	limiter := rate.NewLimiter(rate.Limit(conf.PayRatePerSecond), conf.PayRateBurst)
	app.Add(payment.New(store, eventLogger, limiter))
	app.Add(pruning.New(database, time.Duration(conf.EventTTLDays)*24*time.Hour))

	return app, nil
}
