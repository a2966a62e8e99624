package binance

import (
	"context"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
)

// DominanceEstimator derives the base asset's dominance from the all-symbol
// 24h ticker: its traded notional against every pair quoted in the same quote
// asset. It is a fallback for a dedicated dominance source.
type DominanceEstimator struct {
	c *Client
}

func NewDominanceEstimator(c *Client) *DominanceEstimator {
	return &DominanceEstimator{c: c}
}

func (d *DominanceEstimator) ID() provider.ID { return DominanceID }

func (d *DominanceEstimator) FetchDominance(ctx context.Context, inst market.Instrument) (provider.Observation, error) {
	if err := inst.Validate(); err != nil {
		return provider.Observation{}, provider.Unsupported(DominanceID, provider.KindDominance, err.Error())
	}
	body, err := d.c.allTickers(ctx, DominanceID)
	if err != nil {
		return provider.Observation{}, err
	}
	return d.c.observation(DominanceID, provider.KindDominance, provider.FormatBinanceTickerAll, inst, market.Timeframe{}, body), nil
}
