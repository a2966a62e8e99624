package scheduler

import (
	"context"
	"errors"
	"time"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/provider"
)

// streamRunner keeps one trade stream open for the active instrument.
type streamRunner struct {
	*worker
	streamer provider.Streamer
}

// runStream connects, reconnects with backoff after failures and reconnects
// at once when the selection changes.
func (s *Scheduler) runStream(ctx context.Context) {
	r := s.stream
	for ctx.Err() == nil {
		ep := s.active()
		log := r.log.WithField("epoch", ep.sel.Epoch)
		r.begin(s.now())
		log.WithField("instrument", ep.sel.Instrument.String()).Info("trade stream connecting")

		err := r.streamer.Stream(ep.ctx, ep.sel.Instrument, func(obs provider.Observation) {
			res, err := s.normalizer.Normalize(obs)
			if err != nil {
				log.WithError(err).Debug("dropping trade")
				return
			}
			s.recordFieldErrors(log, obs, res.Errors)
			if len(res.Metrics) == 0 {
				return
			}
			r.succeed(s.now())
			frag := aggregate.Fragment{Source: string(r.id()), Epoch: ep.sel.Epoch, Metrics: res.Metrics}
			select {
			case s.results <- frag:
			case <-ep.ctx.Done():
			}
		})

		switch {
		case ctx.Err() != nil:
			return
		case ep.ctx.Err() != nil:
			r.idle()
			continue
		case errors.Is(err, provider.ErrUnsupportedQuery):
			r.markUnsupported(provider.KindTrade, ep.sel.Epoch)
			r.idle()
			log.WithError(err).Warn("trade stream unsupported for this selection")
			select {
			case <-ctx.Done():
				return
			case <-ep.ctx.Done():
				continue
			}
		}

		if err == nil {
			err = errors.New("stream closed")
		}
		delay := r.fail(s.now(), err, s.backoff)
		log.WithError(err).WithField("retry_in", delay).Warn("trade stream failed")
		select {
		case s.results <- aggregate.Fragment{Source: string(r.id()), Epoch: ep.sel.Epoch, Degraded: true}:
		case <-ctx.Done():
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-ep.ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}
