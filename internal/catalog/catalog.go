// Package catalog caches the list of tradable instruments and resolves user
// input against it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"marketpulse/internal/market"
)

// ErrUnknownInstrument is returned for well-formed instruments the exchange
// does not list.
var ErrUnknownInstrument = errors.New("unknown instrument")

// Source lists tradable instruments.
type Source interface {
	ExchangeInstruments(ctx context.Context) ([]market.Instrument, error)
}

// Catalog caches Source's listing for TTL. When a refresh fails the previous
// listing keeps being served.
type Catalog struct {
	src Source
	ttl time.Duration
	now func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	expiresAt time.Time
	bySymbol  map[string]market.Instrument
	list      []market.Instrument
}

func New(src Source, ttl time.Duration) *Catalog {
	return &Catalog{src: src, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// Instruments returns the listing, refreshing it when expired.
func (c *Catalog) Instruments(ctx context.Context) ([]market.Instrument, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]market.Instrument, len(c.list))
	copy(out, c.list)
	return out, nil
}

// Resolve parses s ("BTC/USDT", "btc-usdt" or "BTCUSDT") and checks it against
// the listing. When no listing could ever be fetched any well-formed
// instrument is accepted.
func (c *Catalog) Resolve(ctx context.Context, s string) (market.Instrument, error) {
	if err := c.ensure(ctx); err != nil {
		return market.ParseInstrument(s)
	}
	c.mu.RLock()
	bySymbol := c.bySymbol
	c.mu.RUnlock()

	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "/-_:") {
		if inst, ok := bySymbol[strings.ToUpper(s)]; ok {
			return inst, nil
		}
	}
	inst, err := market.ParseInstrument(s)
	if err != nil {
		return market.Instrument{}, err
	}
	if listed, ok := bySymbol[inst.Symbol()]; ok && listed == inst {
		return listed, nil
	}
	return market.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, inst)
}

func (c *Catalog) ensure(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.bySymbol != nil && c.now().Before(c.expiresAt)
	have := c.bySymbol != nil
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	_, err, _ := c.group.Do("refresh", func() (any, error) {
		list, err := c.src.ExchangeInstruments(ctx)
		if err != nil {
			return nil, err
		}
		bySymbol := make(map[string]market.Instrument, len(list))
		for _, inst := range list {
			bySymbol[inst.Symbol()] = inst
		}
		c.mu.Lock()
		c.list = list
		c.bySymbol = bySymbol
		c.expiresAt = c.now().Add(c.ttl)
		c.mu.Unlock()
		return nil, nil
	})
	if err != nil && have {
		return nil
	}
	return err
}
