package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"crossbot/pkg/logx"
)

// SecondOptional accepts both 5- and 6-field cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled run. ctx is cancelled when the runner stops.
type Job func(ctx context.Context)

// Runner triggers a Job on a Spec. A trigger that fires while the previous
// run is still going is skipped.
type Runner struct {
	spec Spec
	loc  *time.Location
	log  logx.Logger

	job     Job
	ctx     context.Context
	wrapped cron.Job
	skipped atomic.Int64
}

func NewRunner(spec Spec, loc *time.Location, log logx.Logger, job Job) *Runner {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{spec: spec, loc: loc, log: log.With(logx.String("component", "schedule")), job: job, ctx: context.Background()}
	r.wrapped = cron.NewChain(cron.Recover(cronLogger{r}), cron.SkipIfStillRunning(cronLogger{r})).
		Then(cron.FuncJob(func() { r.job(r.ctx) }))
	return r
}

// Skipped counts triggers dropped because a run was in progress.
func (r *Runner) Skipped() int64 { return r.skipped.Load() }

// Trigger runs the job now in the caller's goroutine, unless a run is
// already in progress.
func (r *Runner) Trigger() { r.wrapped.Run() }

// Run triggers once immediately, then on schedule until ctx is done. It
// waits for a run in progress before returning.
func (r *Runner) Run(ctx context.Context) error {
	r.ctx = ctx
	c := cron.New(cron.WithParser(parser), cron.WithLocation(r.loc))
	id, err := c.AddJob(r.spec.Expr(), r.wrapped)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", r.spec.Raw, err)
	}
	c.Start()
	r.log.Info("schedule started", logx.String("spec", r.spec.String()), logx.String("tz", r.loc.String()),
		logx.Time("next", c.Entry(id).Next))

	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		r.Trigger()
	}()

	<-ctx.Done()
	r.log.Info("schedule stopping, waiting for the current run")
	<-c.Stop().Done()
	// cron does not track the immediate trigger.
	first.Wait()
	return nil
}

// cronLogger adapts logx to cron's logger; it also counts skips.
type cronLogger struct{ r *Runner }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	if msg == "skip" {
		l.r.skipped.Add(1)
		l.r.log.Info("previous run still in progress, skipping trigger")
		return
	}
	l.r.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.r.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
