package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/metrics"
	"marketpulse/internal/normalize"
	"marketpulse/internal/provider"
)

// worker owns one provider. Its cycles run on a single goroutine, so they
// never overlap. Scheduled ticks that arrive while a cycle runs are dropped;
// trigger holds at most one pending cycle.
type worker struct {
	client   provider.Client
	interval time.Duration
	kinds    []provider.Kind
	trigger  chan struct{}
	log      *logrus.Entry

	mu           sync.Mutex
	state        State
	lastAttempt  time.Time
	lastSuccess  time.Time
	lastErr      string
	failures     int
	backoffUntil time.Time
	// kind -> epoch in which it was found unsupported
	unsupported map[provider.Kind]uint64
}

func newWorker(src Source, log logrus.FieldLogger) *worker {
	kinds := src.Kinds
	if len(kinds) == 0 {
		kinds = provider.Capabilities(src.Client)
	}
	return &worker{
		client:      src.Client,
		interval:    src.Interval,
		kinds:       kinds,
		trigger:     make(chan struct{}, 1),
		log:         log.WithField("provider", src.Client.ID()),
		state:       StateIdle,
		unsupported: make(map[provider.Kind]uint64),
	}
}

func (w *worker) id() provider.ID { return w.client.ID() }

// signal queues a cycle. It reports false when one is already pending.
func (w *worker) signal() bool {
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// busy reports whether a cycle is in progress.
func (w *worker) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateFetching
}

func (w *worker) inBackoff(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateBackoff {
		return false
	}
	if now.Before(w.backoffUntil) {
		return true
	}
	w.state = StateIdle
	return false
}

// resetBackoff ends any backoff. clearFailures also forgets the failure
// streak so the next delay starts from the initial value.
func (w *worker) resetBackoff(clearFailures bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateBackoff {
		w.state = StateIdle
	}
	w.backoffUntil = time.Time{}
	if clearFailures {
		w.failures = 0
	}
}

func (w *worker) begin(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateFetching
	w.lastAttempt = now
}

func (w *worker) succeed(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateIdle
	w.lastSuccess = now
	w.lastErr = ""
	w.failures = 0
	w.backoffUntil = time.Time{}
}

// fail records a failed cycle and returns the backoff delay.
func (w *worker) fail(now time.Time, err error, policy Backoff) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures++
	w.lastErr = err.Error()
	delay := policy.Delay(w.failures)
	w.state = StateBackoff
	w.backoffUntil = now.Add(delay)
	return delay
}

// partial records a cycle where some kinds failed and others succeeded.
func (w *worker) partial(now time.Time, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateIdle
	w.lastSuccess = now
	w.lastErr = err.Error()
	w.failures = 0
}

func (w *worker) idle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateIdle
}

// unsupportedIn reports whether kind was found unsupported in epoch.
func (w *worker) unsupportedIn(kind provider.Kind, epoch uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.unsupported[kind]
	return ok && e == epoch
}

func (w *worker) markUnsupported(kind provider.Kind, epoch uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unsupported[kind] = epoch
}

func (w *worker) status(epoch uint64) ProviderStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := ProviderStatus{
		Provider:            w.id(),
		State:               w.state,
		Kinds:               append([]provider.Kind(nil), w.kinds...),
		LastAttempt:         w.lastAttempt,
		LastSuccess:         w.lastSuccess,
		LastError:           w.lastErr,
		ConsecutiveFailures: w.failures,
		BackoffUntil:        w.backoffUntil,
	}
	if w.interval > 0 {
		st.Interval = w.interval.String()
	}
	for kind, e := range w.unsupported {
		if e == epoch {
			st.Unsupported = append(st.Unsupported, kind)
		}
	}
	sort.Slice(st.Unsupported, func(i, j int) bool { return st.Unsupported[i] < st.Unsupported[j] })
	return st
}

// work runs the worker's cycles until ctx is done.
func (s *Scheduler) work(ctx context.Context, w *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
		}
		now := s.now()
		if w.inBackoff(now) {
			s.metrics.SkippedTick(string(w.id()), metrics.SkipBackoff)
			continue
		}
		frag, ok := s.cycle(w, s.active())
		if !ok {
			continue
		}
		select {
		case s.results <- frag:
		case <-ctx.Done():
			return
		}
	}
}

// cycle fetches and normalizes every kind of w for ep. It returns false when
// nothing should be merged.
func (s *Scheduler) cycle(w *worker, ep *epochState) (aggregate.Fragment, bool) {
	start := s.now()
	w.begin(start)
	id := string(w.id())
	log := w.log.WithField("epoch", ep.sel.Epoch)

	p := runPass(ep.ctx, s.normalizer, w.client, w.kinds, ep.sel, log, passOptions{
		skip: func(kind provider.Kind) bool { return w.unsupportedIn(kind, ep.sel.Epoch) },
		fieldErrors: func(obs provider.Observation, errs []normalize.FieldError) {
			s.recordFieldErrors(log, obs, errs)
		},
	})
	for _, kind := range p.unsupported {
		w.markUnsupported(kind, ep.sel.Epoch)
	}

	frag := p.frag
	elapsed := s.now().Sub(start)
	switch {
	case ep.ctx.Err() != nil:
		// superseded; whatever was fetched is discarded by the aggregation loop
		w.idle()
		return frag, p.succeeded > 0
	case p.attempted == 0:
		w.idle()
		return frag, false
	case len(p.errs) == 0:
		w.succeed(s.now())
		s.metrics.RecordCycle(id, metrics.OutcomeSuccess, elapsed)
	case p.succeeded > 0:
		w.partial(s.now(), errors.Join(p.errs...))
		frag.Degraded = true
		s.metrics.RecordCycle(id, metrics.OutcomeDegraded, elapsed)
	default:
		delay := w.fail(s.now(), errors.Join(p.errs...), s.backoff)
		frag.Degraded = true
		s.metrics.RecordCycle(id, metrics.OutcomeFailed, elapsed)
		log.WithField("retry_in", delay).Warn("provider cycle failed, backing off")
	}
	return frag, true
}

func (s *Scheduler) recordFieldErrors(log *logrus.Entry, obs provider.Observation, errs []normalize.FieldError) {
	s.metrics.FieldErrors(string(obs.Provider), string(obs.Format), len(errs))
	for _, fe := range errs {
		log.WithFields(logrus.Fields{"format": obs.Format, "field": fe.Field}).Info("field not normalized: " + fe.Reason)
	}
}
