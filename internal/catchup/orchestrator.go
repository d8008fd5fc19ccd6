package catchup

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"crossbot/internal/metrics"
	"crossbot/internal/queue"
	"crossbot/pkg/logx"
)

// Deps is everything a run touches. Nothing is held in package state.
type Deps struct {
	Queue     *queue.Queue
	Fetcher   Fetcher
	Announcer Announcer
	Roster    Roster
	Clock     Clock
	Log       logx.Logger
	Trace     *logx.TraceLog
	Metrics   *metrics.Metrics
}

type Orchestrator struct {
	deps  Deps
	set   Settings
	state State
}

func New(deps Deps, set Settings) (*Orchestrator, error) {
	switch {
	case deps.Queue == nil:
		return nil, errors.New("catchup: nil queue")
	case deps.Fetcher == nil:
		return nil, errors.New("catchup: nil fetcher")
	case deps.Announcer == nil:
		return nil, errors.New("catchup: nil announcer")
	case deps.Roster == nil:
		return nil, errors.New("catchup: nil roster")
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	def := DefaultSettings()
	if set.RateLimit <= 0 {
		set.RateLimit = def.RateLimit
	}
	if set.Warning < 0 || set.Warning > set.RateLimit {
		set.Warning = min(def.Warning, set.RateLimit)
	}
	if set.PostCooldown < 0 {
		set.PostCooldown = def.PostCooldown
	}
	return &Orchestrator{deps: deps, set: set, state: StateIdle}, nil
}

func (o *Orchestrator) State() State { return o.state }

// Run executes one catch-up run: explicit ids, optional refresh, then
// scan and drain cycles. Every cycle after the first is a rescan; the run
// is done once a rescan cycle announces nothing.
func (o *Orchestrator) Run(ctx context.Context, opts Options) Result {
	var res Result
	log := o.deps.Log

	if len(opts.PostIDs) > 0 {
		n, err := o.PostExplicit(ctx, opts.PostIDs)
		res.Explicit = n
		if err != nil {
			return o.finish(res, err)
		}
	}
	if opts.RefreshQueue {
		if err := o.Refresh(ctx); err != nil {
			return o.finish(res, err)
		}
	}

	skipScan := opts.StraightToQueue
	if skipScan {
		log.Info("draining stored queue before scanning", logx.Int("pending", o.deps.Queue.Count()))
	}
	rescanned := false
	for {
		if !skipScan {
			scan := o.Scan(ctx)
			res.Scans++
			res.Queued += scan.Added
			if scan.Interrupted {
				return o.finish(res, ErrInterrupted)
			}
			if !scan.SafeToPost() {
				log.Warn("posts were not retrieved cleanly, not draining the queue", logx.Err(scan.Err))
				return o.finish(res, scan.Err)
			}
		}
		skipScan = false

		drain := o.Drain(ctx)
		res.Announced += drain.Announced
		res.Refused += drain.Refused
		res.Skipped += drain.Skipped
		if drain.Interrupted {
			return o.finish(res, ErrInterrupted)
		}
		if drain.Err != nil {
			return o.finish(res, drain.Err)
		}
		if drain.Announced == 0 && rescanned {
			log.Info("posted nothing new, caught up")
			break
		}
		rescanned = true
		log.Info("rescanning for posts made during the run", logx.Int("announced", drain.Announced))
	}
	return o.finish(res, nil)
}

func (o *Orchestrator) finish(res Result, err error) Result {
	res.Err = err
	switch {
	case err == nil:
		o.state = StateDone
	default:
		o.state = StateFailed
	}
	res.State = o.state
	o.deps.Metrics.RunFinished(o.state.String())
	o.deps.Metrics.QueueDepth(o.deps.Queue.Count())
	o.deps.Log.Info("catch-up run finished",
		logx.String("state", o.state.String()),
		logx.Int("scans", res.Scans),
		logx.Int("queued", res.Queued),
		logx.Int("announced", res.Announced),
		logx.Int("refused", res.Refused),
		logx.Int("skipped", res.Skipped),
		logx.Int("pending", o.deps.Queue.Count()),
		logx.Err(err),
	)
	return res
}

// Scan fetches every roster account in declaration order and queues the
// cross-company posts. The first account failure ends the phase.
func (o *Orchestrator) Scan(ctx context.Context) ScanOutcome {
	o.state = StateScanning
	q := o.deps.Queue
	accounts := o.deps.Roster.Accounts()
	var out ScanOutcome

	o.deps.Log.Info("pulling posts", logx.Int("accounts", len(accounts)))
	for i, acct := range accounts {
		if ctx.Err() != nil {
			return o.interruptScan(ctx, out)
		}
		log := o.deps.Log.With(logx.Int64("account_id", acct.ID), logx.String("handle", acct.Handle))
		log.Info(fmt.Sprintf("[%d/%d] %s", i+1, len(accounts), acct.Handle))

		since, _ := q.Watermark(acct.ID)
		started := o.deps.Clock.Now()
		posts, err := o.deps.Fetcher.FetchPosts(context.WithoutCancel(ctx), acct, since)
		if err != nil {
			ferr := &FetchError{Account: acct, Err: err}
			log.Error("fetch failed, scan aborted", logx.Err(err))
			o.deps.Trace.Write(fmt.Sprintf("Error getting posts from account %d: %s", acct.ID, acct.Handle), ferr)
			o.deps.Metrics.ScanFailed()
			out.Err = ferr
			return out
		}
		o.deps.Metrics.AccountScanned(len(posts))
		out.Fetched += len(posts)

		added := 0
		for _, p := range posts {
			if q.IsFinished(p.ID()) || !p.IsCrossCompany(o.deps.Roster) {
				continue
			}
			ok, err := q.Add(ctx, p)
			if err != nil {
				return o.persistFailed(out, err)
			}
			if ok {
				added++
				o.deps.Metrics.Queued()
			}
		}
		if err := q.MarkAccountScanned(ctx, acct.ID, started); err != nil {
			return o.persistFailed(out, err)
		}
		log.Info("account scanned", logx.Int("fetched", len(posts)), logx.Int("queued", added))
		out.Accounts++
		out.Added += added
	}
	o.deps.Metrics.QueueDepth(q.Count())
	o.deps.Log.Info("all accounts scanned", logx.Int("fetched", out.Fetched), logx.Int("queued", out.Added))
	return out
}

func (o *Orchestrator) interruptScan(ctx context.Context, out ScanOutcome) ScanOutcome {
	o.deps.Log.Warn("interrupting scan, remaining watermarks are not advanced")
	out.Interrupted = true
	if err := o.deps.Queue.Persist(ctx); err != nil {
		out.Err = err
	}
	return out
}

func (o *Orchestrator) persistFailed(out ScanOutcome, err error) ScanOutcome {
	o.deps.Trace.Write("Error persisting queue during scan", err)
	out.Err = err
	return out
}

// Drain announces pending posts oldest first. Each post is marked
// finished right after its single announcement attempt.
func (o *Orchestrator) Drain(ctx context.Context) (out DrainOutcome) {
	o.state = StateDraining
	q := o.deps.Queue
	total := q.Count()
	if total == 0 {
		o.deps.Log.Info("posting queue is empty")
		out.Exhausted = true
		return out
	}
	o.deps.Log.Info(fmt.Sprintf("%d cross-company posts to announce", total))

	var current int64
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while announcing post %d: %v", current, r)
			o.deps.Log.Error("drain aborted", logx.Err(err))
			o.deps.Trace.Write("Unhandled error while posting from queue", err)
			out.Err = err
		}
	}()

	for {
		if ctx.Err() != nil {
			return o.interruptDrain(ctx, out)
		}
		p, ok := q.Next()
		if !ok {
			out.Exhausted = true
			return out
		}
		current = p.ID()
		log := o.deps.Log.With(logx.Int64("post_id", p.ID()))

		if q.IsFinished(p.ID()) {
			log.Info("skipping finished post")
			if err := q.MarkFinished(ctx, p.ID()); err != nil {
				return o.drainPersistFailed(out, err)
			}
			out.Skipped++
			o.deps.Metrics.Announced(metrics.ResultSkipped)
			continue
		}

		posted, err := o.deps.Announcer.Announce(context.WithoutCancel(ctx), p)
		if err != nil {
			aerr := &AnnouncementError{PostID: p.ID(), Err: err}
			log.Error("announcement failed, not retrying", logx.Err(aerr))
			o.deps.Metrics.Announced(metrics.ResultError)
		}
		if ferr := q.MarkFinished(ctx, p.ID()); ferr != nil {
			return o.drainPersistFailed(out, ferr)
		}
		o.deps.Metrics.QueueDepth(q.Count())
		if !posted {
			if err == nil {
				log.Warn("announcement not confirmed")
				o.deps.Metrics.Announced(metrics.ResultRefused)
			}
			out.Refused++
			continue
		}

		out.Announced++
		o.deps.Metrics.Announced(metrics.ResultPosted)
		log.Info(fmt.Sprintf("(%d/%d) done", out.Announced, total))
		if q.IsEmpty() {
			continue
		}
		if err := o.rest(ctx); err != nil {
			return o.interruptDrain(ctx, out)
		}
	}
}

// rest waits out the rate limit, logging before the final warning window.
func (o *Orchestrator) rest(ctx context.Context) error {
	long := o.set.RateLimit - o.set.Warning
	o.deps.Log.Info("resting", logx.Duration("for", o.set.RateLimit))
	if err := o.deps.Clock.Sleep(ctx, long); err != nil {
		return err
	}
	if o.set.Warning > 0 {
		o.deps.Log.Info(fmt.Sprintf("%s warning!", o.set.Warning))
		return o.deps.Clock.Sleep(ctx, o.set.Warning)
	}
	return nil
}

func (o *Orchestrator) interruptDrain(ctx context.Context, out DrainOutcome) DrainOutcome {
	o.deps.Log.Warn("interrupting queue processing", logx.Int("pending", o.deps.Queue.Count()))
	out.Interrupted = true
	if err := o.deps.Queue.Persist(ctx); err != nil {
		out.Err = err
	}
	return out
}

func (o *Orchestrator) drainPersistFailed(out DrainOutcome, err error) DrainOutcome {
	o.deps.Trace.Write("Error persisting queue during drain", err)
	out.Err = err
	return out
}

// PostExplicit announces the given ids in ascending order before anything
// else. Finished and negative ids are skipped; successful ids are recorded
// as finished. It returns the number announced.
func (o *Orchestrator) PostExplicit(ctx context.Context, ids []int64) (int, error) {
	q := o.deps.Queue
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	o.deps.Log.Info("posting requested posts first", logx.Int64s("ids", ids))

	posted := 0
	for i, id := range ids {
		if ctx.Err() != nil {
			o.deps.Log.Warn("interrupting requested posts")
			if err := q.Persist(ctx); err != nil {
				return posted, err
			}
			return posted, ErrInterrupted
		}
		log := o.deps.Log.With(logx.Int64("post_id", id))
		if id < 0 {
			log.Warn("invalid post id")
			continue
		}
		if q.IsFinished(id) {
			log.Info("already announced, skipping")
			o.deps.Metrics.Announced(metrics.ResultSkipped)
			continue
		}
		ok, err := o.deps.Announcer.AnnounceByID(context.WithoutCancel(ctx), id)
		if err != nil {
			log.Error("announcement failed", logx.Err(&AnnouncementError{PostID: id, Err: err}))
			o.deps.Metrics.Announced(metrics.ResultError)
			continue
		}
		if !ok {
			log.Warn("did not post")
			o.deps.Metrics.Announced(metrics.ResultRefused)
			continue
		}
		if err := q.MarkFinished(ctx, id); err != nil {
			o.deps.Trace.Write(fmt.Sprintf("Error persisting requested post %d", id), err)
			return posted, err
		}
		posted++
		o.deps.Metrics.Announced(metrics.ResultPosted)
		if i == len(ids)-1 {
			continue
		}
		log.Info("posted, cooling down", logx.Duration("for", o.set.PostCooldown))
		if err := o.deps.Clock.Sleep(ctx, o.set.PostCooldown); err != nil {
			if perr := q.Persist(ctx); perr != nil {
				return posted, perr
			}
			return posted, ErrInterrupted
		}
	}
	o.deps.Log.Info("done processing requested posts", logx.Int("posted", posted))
	return posted, nil
}

// Refresh re-fetches every pending post and stores the new content. A post
// that cannot be fetched keeps its stored record.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	q := o.deps.Queue
	pending := q.Pending()
	o.deps.Log.Info("refreshing queued posts", logx.Int("pending", len(pending)))
	for _, old := range pending {
		if ctx.Err() != nil {
			if err := q.Persist(ctx); err != nil {
				return err
			}
			return ErrInterrupted
		}
		log := o.deps.Log.With(logx.Int64("post_id", old.ID()))
		fresh, err := o.deps.Fetcher.FetchPost(context.WithoutCancel(ctx), old.ID(), o.deps.Roster.IsPrivate(old.AuthorID()))
		if err != nil {
			log.Warn("refresh failed, keeping stored record", logx.Err(err))
			continue
		}
		if fresh.ID() != old.ID() {
			log.Warn("refresh returned a different post, keeping stored record", logx.Int64("got", fresh.ID()))
			continue
		}
		changed, err := q.Replace(ctx, fresh)
		if err != nil {
			o.deps.Trace.Write(fmt.Sprintf("Error persisting refreshed post %d", old.ID()), err)
			return err
		}
		if changed {
			log.Debug("post refreshed")
		}
	}
	return nil
}
