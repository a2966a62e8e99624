package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/market"
	"marketpulse/internal/normalize"
	"marketpulse/internal/provider"
)

// pass is the outcome of fetching and normalizing a set of kinds once.
type pass struct {
	frag        aggregate.Fragment
	attempted   int
	succeeded   int
	unsupported []provider.Kind
	errs        []error
}

type passOptions struct {
	// skip reports kinds that must not be fetched.
	skip func(provider.Kind) bool
	// fieldErrors receives per-field normalization failures.
	fieldErrors func(provider.Observation, []normalize.FieldError)
}

// runPass fetches each kind of client in order. Unsupported kinds are not
// counted as attempted. Failures caused by ctx cancellation are not recorded
// as errors.
func runPass(ctx context.Context, n *normalize.Normalizer, client provider.Client, kinds []provider.Kind, sel market.Selection, log *logrus.Entry, opts passOptions) pass {
	p := pass{frag: aggregate.Fragment{Source: string(client.ID()), Epoch: sel.Epoch}}
	for _, kind := range kinds {
		if opts.skip != nil && opts.skip(kind) {
			continue
		}
		p.attempted++
		obs, err := provider.Fetch(ctx, client, kind, sel)
		if err == nil {
			var res normalize.Result
			res, err = n.Normalize(obs)
			if err == nil {
				if opts.fieldErrors != nil && len(res.Errors) > 0 {
					opts.fieldErrors(obs, res.Errors)
				}
				p.frag.Metrics = append(p.frag.Metrics, res.Metrics...)
				if res.HasCandles {
					p.frag.Candles, p.frag.HasCandles = res.Candles, true
				}
				p.succeeded++
				continue
			}
		}

		log := log.WithField("kind", kind)
		switch {
		case errors.Is(err, provider.ErrUnsupportedQuery):
			p.attempted--
			p.unsupported = append(p.unsupported, kind)
			log.WithError(err).Warn("unsupported query, skipping kind for this selection")
		case ctx.Err() != nil:
			log.Debug("fetch cancelled")
		default:
			p.errs = append(p.errs, fmt.Errorf("%s: %w", kind, err))
			log.WithError(err).Warn("fetch failed")
		}
	}
	return p
}

// Collect runs a single fetch and normalize pass over src outside of any
// schedule. The fragment is marked degraded when any attempted kind failed;
// the returned error joins those failures. Data from the kinds that succeeded
// is returned either way.
func Collect(ctx context.Context, n *normalize.Normalizer, src Source, sel market.Selection, log logrus.FieldLogger) (aggregate.Fragment, error) {
	kinds := src.Kinds
	if len(kinds) == 0 {
		kinds = provider.Capabilities(src.Client)
	}
	entry := log.WithField("provider", src.Client.ID())
	p := runPass(ctx, n, src.Client, kinds, sel, entry, passOptions{
		fieldErrors: func(obs provider.Observation, errs []normalize.FieldError) {
			for _, fe := range errs {
				entry.WithFields(logrus.Fields{"format": obs.Format, "field": fe.Field}).Info("field not normalized: " + fe.Reason)
			}
		},
	})
	if err := ctx.Err(); err != nil && p.succeeded < p.attempted {
		p.errs = append(p.errs, err)
	}
	if len(p.errs) > 0 {
		p.frag.Degraded = true
	}
	return p.frag, errors.Join(p.errs...)
}
