package main

import (
	"context"
	"errors"
	"fmt"

	"crossbot/internal/announce"
	"crossbot/internal/catchup"
	"crossbot/internal/config"
	"crossbot/internal/metrics"
	"crossbot/internal/queue"
	"crossbot/internal/roster"
	"crossbot/internal/source/httpapi"
	"crossbot/internal/storage"
	"crossbot/pkg/logx"
)

// app is everything one catch-up run needs, built from a config.
type app struct {
	cfg    *config.Config
	logSvc *logx.Service
	log    logx.Logger
	store  storage.Store
	queue  *queue.Queue
	roster *roster.Roster
	orch   *catchup.Orchestrator
}

type appOptions struct {
	runID   string
	metrics *metrics.Metrics
	// log, when set, is used instead of building sinks from cfg.
	log logx.Logger
}

func newApp(ctx context.Context, cfg *config.Config, opt appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var (
		pub    announce.Publisher
		sender logx.Sender
	)
	switch cfg.AnnounceDriver() {
	case config.DriverTelegram:
		tcfg, err := cfg.ResolveTelegram()
		if err != nil {
			return nil, err
		}
		tg, err := announce.NewTelegram(tcfg)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		pub, sender = tg, tg
	case config.DriverLog:
	default:
		return nil, fmt.Errorf("unknown announce driver %q", cfg.Announce.Driver)
	}

	if opt.log.IsZero() {
		a.logSvc, a.log = logx.New(cfg.ResolveLogging(), sender)
	} else {
		a.log = opt.log
	}
	if opt.runID != "" {
		a.log = a.log.With(logx.String("run_id", opt.runID))
	}
	if pub == nil {
		pub = announce.NewLogPublisher(a.log)
	}

	if a.roster, err = cfg.ResolveRoster(); err != nil {
		return nil, err
	}
	stCfg, err := cfg.ResolveStorage()
	if err != nil {
		return nil, err
	}
	if a.store, err = storage.Open(stCfg, a.log); err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if a.queue, err = queue.Load(ctx, a.store, a.log); err != nil {
		return nil, err
	}

	srcCfg, err := cfg.ResolveSource()
	if err != nil {
		return nil, err
	}
	fetcher, err := httpapi.New(srcCfg, a.log)
	if err != nil {
		return nil, err
	}
	ann, err := announce.New(pub, fetcher, announce.Formatter{Names: a.roster.Handle, LinkBase: cfg.Announce.LinkBase}, a.log)
	if err != nil {
		return nil, err
	}
	settings, err := cfg.ResolveCatchup()
	if err != nil {
		return nil, err
	}

	a.orch, err = catchup.New(catchup.Deps{
		Queue:     a.queue,
		Fetcher:   fetcher,
		Announcer: ann,
		Roster:    a.roster,
		Clock:     catchup.RealClock(),
		Log:       a.log,
		Trace:     logx.NewTraceLog(cfg.ErrorLogPath(), opt.runID),
		Metrics:   opt.metrics,
	}, settings)
	if err != nil {
		return nil, err
	}
	a.log.Debug("app ready",
		logx.Int("accounts", a.roster.Len()),
		logx.Int("pending", a.queue.Count()),
		logx.Int("finished", a.queue.FinishedCount()),
		logx.String("announce", cfg.AnnounceDriver()),
	)
	return a, nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logSvc != nil {
		errs = append(errs, a.logSvc.Close())
	}
	return errors.Join(errs...)
}
