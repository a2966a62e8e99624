// Package scheduler drives the provider refresh cycles and owns the single
// goroutine that merges their results into published snapshots.
//
// Each provider has its own cadence and its own worker goroutine, so a slow
// or failing provider never delays the others. Every cycle is tagged with the
// selection epoch it started under; results from an older epoch are dropped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/logging"
	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/normalize"
	"marketpulse/internal/provider"
)

var (
	ErrNotRunning      = errors.New("scheduler not running")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Source is one polled provider.
type Source struct {
	Client   provider.Client
	Interval time.Duration
	// Kinds restricts what is fetched; empty means every capability.
	Kinds []provider.Kind
}

type Options struct {
	Sources []Source
	// Stream optionally feeds trades for the active instrument.
	Stream        provider.Streamer
	Normalizer    *normalize.Normalizer
	Aggregator    *aggregate.Aggregator
	Store         *aggregate.Store
	Backoff       Backoff
	SweepInterval time.Duration
	Metrics       *metrics.Metrics
	Log           logrus.FieldLogger
	Now           func() time.Time
}

// epochState is the selection in force and the context its fetches run under.
type epochState struct {
	sel    market.Selection
	ctx    context.Context
	cancel context.CancelFunc
}

type selectionRequest struct {
	sel   market.Selection
	reply chan market.Selection
}

type Scheduler struct {
	workers    []*worker
	byID       map[provider.ID]*worker
	stream     *streamRunner
	normalizer *normalize.Normalizer
	agg        *aggregate.Aggregator
	store      *aggregate.Store
	backoff    Backoff
	sweepEvery time.Duration
	metrics    *metrics.Metrics
	log        *logrus.Entry
	now        func() time.Time

	cur        atomic.Pointer[epochState]
	results    chan aggregate.Fragment
	selections chan selectionRequest
	running    chan struct{}
	startOnce  sync.Once
}

func New(initial market.Selection, opts Options) (*Scheduler, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial selection: %w", err)
	}
	if opts.Normalizer == nil || opts.Aggregator == nil || opts.Store == nil {
		return nil, errors.New("scheduler: normalizer, aggregator and store are required")
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}

	s := &Scheduler{
		byID:       make(map[provider.ID]*worker, len(opts.Sources)),
		normalizer: opts.Normalizer,
		agg:        opts.Aggregator,
		store:      opts.Store,
		backoff:    opts.Backoff,
		sweepEvery: opts.SweepInterval,
		metrics:    opts.Metrics,
		log:        logging.Component(opts.Log, "scheduler"),
		now:        opts.Now,
		results:    make(chan aggregate.Fragment, len(opts.Sources)+1),
		selections: make(chan selectionRequest),
		running:    make(chan struct{}),
	}
	for _, src := range opts.Sources {
		if src.Client == nil {
			return nil, errors.New("scheduler: source without client")
		}
		if _, dup := s.byID[src.Client.ID()]; dup {
			return nil, fmt.Errorf("scheduler: duplicate provider %s", src.Client.ID())
		}
		w := newWorker(src, s.log)
		s.workers = append(s.workers, w)
		s.byID[w.id()] = w
	}
	if opts.Stream != nil {
		s.stream = &streamRunner{worker: newWorker(Source{Client: opts.Stream, Kinds: []provider.Kind{provider.KindTrade}}, s.log), streamer: opts.Stream}
	}

	initial.Epoch = 1
	ctx, cancel := context.WithCancel(context.Background())
	s.cur.Store(&epochState{sel: initial, ctx: ctx, cancel: cancel})
	return s, nil
}

// Selection returns the active selection.
func (s *Scheduler) Selection() market.Selection { return s.active().sel }

func (s *Scheduler) active() *epochState { return s.cur.Load() }

// Run starts every worker, the cron schedules and the aggregation loop, and
// blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	started := false
	s.startOnce.Do(func() { started = true })
	if !started {
		return errors.New("scheduler: already started")
	}

	// Re-root the initial epoch on ctx so shutdown cancels in-flight fetches.
	first := s.active()
	first.cancel()
	ectx, cancel := context.WithCancel(ctx)
	s.cur.Store(&epochState{sel: first.sel, ctx: ectx, cancel: cancel})

	snap := aggregate.Empty(first.sel)
	s.store.Publish(snap)

	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(s.log.WithField("subsystem", "cron"))),
		cron.WithChain(cron.Recover(cron.PrintfLogger(s.log.WithField("subsystem", "cron")))),
	)
	for _, w := range s.workers {
		if w.interval <= 0 {
			continue
		}
		c.Schedule(cron.Every(w.interval), cron.FuncJob(func() { s.tick(w) }))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		g.Go(func() error {
			s.work(gctx, w)
			return nil
		})
	}
	if s.stream != nil {
		g.Go(func() error {
			s.runStream(gctx)
			return nil
		})
	}
	g.Go(func() error {
		s.loop(gctx, snap)
		return nil
	})

	close(s.running)
	c.Start()
	s.log.WithFields(logrus.Fields{"providers": len(s.workers), "selection": first.sel.String()}).Info("scheduler started")
	s.triggerAll()

	<-ctx.Done()
	<-c.Stop().Done()
	err := g.Wait()
	s.active().cancel()
	s.log.Info("scheduler stopped")
	return err
}

// tick is the cron job for w. A tick that finds a cycle running or already
// queued is dropped.
func (s *Scheduler) tick(w *worker) {
	if w.busy() || !w.signal() {
		s.metrics.SkippedTick(string(w.id()), metrics.SkipBusy)
	}
}

func (s *Scheduler) triggerAll() {
	for _, w := range s.workers {
		w.signal()
	}
}

// Trigger queues an immediate cycle for one provider, clearing its backoff.
func (s *Scheduler) Trigger(id provider.ID) error {
	w, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	w.resetBackoff(false)
	w.signal()
	return nil
}

// SetSelection switches the active instrument and timeframe. In-flight fetches
// of the previous selection are cancelled and their results discarded; every
// provider is refreshed immediately. The returned selection carries the new
// epoch. Selecting the active query again is a no-op.
func (s *Scheduler) SetSelection(ctx context.Context, inst market.Instrument, tf market.Timeframe) (market.Selection, error) {
	sel := market.Selection{Instrument: inst, Timeframe: tf}
	if err := sel.Validate(); err != nil {
		return market.Selection{}, err
	}
	select {
	case <-s.running:
	default:
		return market.Selection{}, ErrNotRunning
	}

	req := selectionRequest{sel: sel, reply: make(chan market.Selection, 1)}
	select {
	case s.selections <- req:
	case <-ctx.Done():
		return market.Selection{}, ctx.Err()
	}
	select {
	case got := <-req.reply:
		return got, nil
	case <-ctx.Done():
		return market.Selection{}, ctx.Err()
	}
}

// Status reports every provider, the trade stream last.
func (s *Scheduler) Status() []ProviderStatus {
	epoch := s.active().sel.Epoch
	out := make([]ProviderStatus, 0, len(s.workers)+1)
	for _, w := range s.workers {
		out = append(out, w.status(epoch))
	}
	if s.stream != nil {
		out = append(out, s.stream.status(epoch))
	}
	return out
}

// loop is the only writer of snapshots.
func (s *Scheduler) loop(ctx context.Context, snap *aggregate.Snapshot) {
	sweep := time.NewTicker(s.sweepEvery)
	defer sweep.Stop()

	publish := func(next *aggregate.Snapshot) {
		if next == snap {
			return
		}
		snap = next
		s.store.Publish(snap)
		s.metrics.SnapshotPublished(snap.Version(), snap.StaleCount())
	}

	for {
		select {
		case <-ctx.Done():
			return

		case frag := <-s.results:
			if epoch := s.active().sel.Epoch; frag.Epoch != epoch {
				s.metrics.Discarded(frag.Source)
				s.log.WithFields(logrus.Fields{"provider": frag.Source, "epoch": frag.Epoch, "current": epoch}).
					Debug("discarding result of superseded selection")
				continue
			}
			publish(s.agg.Merge(snap, frag, s.now()))

		case req := <-s.selections:
			sel, changed := s.switchSelection(ctx, req.sel)
			if changed {
				publish(s.agg.Rebase(snap, sel, s.now()))
			}
			req.reply <- sel
			if changed {
				s.triggerAll()
			}

		case <-sweep.C:
			publish(s.agg.Refresh(snap, s.now()))
		}
	}
}

// switchSelection starts a new epoch for want unless it asks for the active
// query already.
func (s *Scheduler) switchSelection(ctx context.Context, want market.Selection) (market.Selection, bool) {
	old := s.active()
	if old.sel.SameQuery(want) {
		return old.sel, false
	}

	next := want
	next.Epoch = old.sel.Epoch + 1
	ectx, cancel := context.WithCancel(ctx)
	s.cur.Store(&epochState{sel: next, ctx: ectx, cancel: cancel})
	old.cancel()

	for _, w := range s.workers {
		w.resetBackoff(true)
	}
	if s.stream != nil {
		s.stream.resetBackoff(true)
	}
	s.log.WithFields(logrus.Fields{"from": old.sel.String(), "to": next.String()}).Info("selection changed")
	return next, true
}
