package cli

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/client"
	"github.com/roach88/rollcall/internal/config"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/pubsub"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/session"
	"github.com/roach88/rollcall/internal/store"
)

// service is what the sheet commands need. Both a local engine and a remote
// client provide it.
type service interface {
	session.Backend
	Initialize(ctx context.Context, sheet attendance.Sheet) (int, error)
	Ping(ctx context.Context) error
}

// backend is an open service plus whatever must be released with it.
type backend struct {
	service
	close func()
}

func (b *backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// openBackend connects to cfg.Server when set and opens the local database
// otherwise.
func openBackend(cfg *config.Config) (*backend, error) {
	if cfg.Server != "" {
		slog.Debug("using remote server", "server", cfg.Server)
		c, err := client.New(cfg.Server,
			client.WithToken(cfg.Token),
			client.WithBuffer(cfg.SubscriberBuffer),
		)
		if err != nil {
			return nil, err
		}
		return &backend{service: c}, nil
	}

	eng, closeFn, err := openEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &backend{service: eng, close: closeFn}, nil
}

// openEngine builds an engine over the configured store and roster source.
// The returned func closes both.
func openEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, attendance.Transport("open database", err)
	}

	resolver, err := openResolver(cfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	eng := engine.New(st, pubsub.New(pubsub.WithBuffer(cfg.SubscriberBuffer)), resolver)
	slog.Debug("engine ready", "engine", eng.String())

	closeFn := func() {
		eng.Close()
		if err := st.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}
	return eng, closeFn, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.PostgresDSN != "" {
		slog.Info("opening database", "dialect", store.DialectPostgres)
		return store.OpenPostgres(cfg.PostgresDSN)
	}
	slog.Info("opening database", "dialect", store.DialectSQLite, "path", cfg.Database)
	return store.Open(cfg.Database)
}

// openResolver returns nil when no roster source is configured; the engine
// then reports every scope as not found on initialize.
func openResolver(cfg *config.Config) (roster.Resolver, error) {
	switch {
	case cfg.RosterFile != "":
		f, err := roster.LoadFile(cfg.RosterFile)
		if err != nil {
			return nil, attendance.Invalid("roster_file", "load roster: %v", err)
		}
		return f, nil
	case cfg.RosterURL != "":
		return roster.NewHTTPResolver(cfg.RosterURL), nil
	}
	return nil, nil
}

// sheetFlags are the flags every sheet command shares.
type sheetFlags struct {
	SubjectType string
}

// sheet builds a normalized sheet from <date> <scope> arguments.
func (f sheetFlags) sheet(args []string, requireType bool) (attendance.Sheet, error) {
	sheet := attendance.Sheet{
		Date:        attendance.Date(args[0]),
		ScopeID:     args[1],
		SubjectType: attendance.SubjectType(strings.ToLower(f.SubjectType)),
	}
	return sheet.Normalize(requireType)
}

// pollingBackend refuses push subscriptions so sessions fall back to
// polling. A local engine never hears about writes made by other processes
// on the same database.
type pollingBackend struct {
	service
}

func (pollingBackend) Subscribe(ctx context.Context, f attendance.Filter) (attendance.Subscription, error) {
	return nil, attendance.Transport("subscribe", errNoPush)
}

var errNoPush = errors.New("no push channel without --server")
