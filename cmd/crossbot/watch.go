package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"crossbot/internal/announce"
	"crossbot/internal/catchup"
	"crossbot/internal/config"
	"crossbot/internal/metrics"
	"crossbot/internal/schedule"
	"crossbot/pkg/logx"
)

func watchCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run catch-up now and then on schedule.spec",
		Long: `Run as a daemon: one catch-up immediately, then one per schedule
trigger. A trigger that fires while a run is still draining is skipped.
Config file edits are applied from the next run on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadEnv(logx.NewConsole("warn"), root.envFiles...)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, config.NewManager(root.configPath, logx.Nop()))
		},
	}
}

type watcher struct {
	mgr     *config.Manager
	metrics *metrics.Metrics
	log     logx.Logger
	logSvc  *logx.Service
	pprof   bool

	mu      sync.Mutex
	lastRes catchup.Result
}

func runWatch(ctx context.Context, mgr *config.Manager) error {
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}
	spec, loc, ok, err := cfg.ResolveSchedule()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("watch mode needs schedule.spec")
	}

	var sender logx.Sender
	if cfg.Logging.Telegram.Enabled && cfg.AnnounceDriver() == config.DriverTelegram {
		tcfg, err := cfg.ResolveTelegram()
		if err != nil {
			return err
		}
		tg, err := announce.NewTelegram(tcfg)
		if err != nil {
			return fmt.Errorf("telegram log sink: %w", err)
		}
		sender = tg
	}
	w := &watcher{mgr: mgr, metrics: metrics.New(), pprof: cfg.Metrics.Pprof}
	w.logSvc, w.log = logx.New(cfg.ResolveLogging(), sender)
	defer func() { _ = w.logSvc.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Watch(gctx) })
	if addr := cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return w.serveMetrics(gctx, addr) })
	}
	runner := schedule.NewRunner(spec, loc, w.log, w.runOnce)
	g.Go(func() error { return runner.Run(gctx) })

	notify(w.log, daemon.SdNotifyReady)
	notify(w.log, "STATUS=waiting for first run")
	w.log.Info("watch mode started", logx.String("schedule", spec.String()), logx.String("config", mgr.Path()))

	err = g.Wait()
	notify(w.log, daemon.SdNotifyStopping)
	w.log.Info("watch mode stopped", logx.Int64("skipped_triggers", runner.Skipped()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runOnce is one scheduled catch-up against the latest committed config.
func (w *watcher) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cfg := w.mgr.Get()
	runID := uuid.NewString()
	log := w.log.With(logx.String("run_id", runID))
	notify(log, "STATUS=catch-up running")

	a, err := newApp(ctx, cfg, appOptions{runID: runID, metrics: w.metrics, log: w.log})
	if err != nil {
		log.Error("catch-up setup failed", logx.Err(err))
		notify(log, "STATUS=setup failed: "+err.Error())
		return
	}
	defer func() { _ = a.close() }()

	start := time.Now()
	res := a.orch.Run(ctx, catchup.Options{})
	w.mu.Lock()
	w.lastRes = res
	w.mu.Unlock()
	notify(log, fmt.Sprintf("STATUS=last run %s in %s: %d announced, %d pending",
		res.State, time.Since(start).Round(time.Second), res.Announced, a.queue.Count()))
}

func (w *watcher) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", w.metrics.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		w.mu.Lock()
		state := w.lastRes.State
		w.mu.Unlock()
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(rw, "ok last_state=%s\n", state)
	})
	if w.pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	w.log.Info("metrics listening", logx.String("addr", addr))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// notify is a no-op outside systemd.
func notify(log logx.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	}
}
