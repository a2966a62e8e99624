package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/config"
	"marketpulse/internal/indicators"
	"marketpulse/internal/logging"
	"marketpulse/internal/market"
	"marketpulse/internal/normalize"
	"marketpulse/internal/scheduler"
	"marketpulse/internal/sources"
)

func main() {
	var (
		cfgPath    string
		instrument string
		interval   string
		lookback   int
		timeout    time.Duration
		withInd    bool
	)
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.StringVar(&instrument, "instrument", "", "instrument, e.g. BTC/USDT (default from config)")
	flag.StringVar(&interval, "interval", "", "candle interval (default from config)")
	flag.IntVar(&lookback, "lookback", 0, "candles to keep (default from config)")
	flag.DurationVar(&timeout, "timeout", 20*time.Second, "overall timeout")
	flag.BoolVar(&withInd, "indicators", false, "also print technical indicators")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if instrument != "" {
		cfg.Selection.Instrument = instrument
	}
	if interval != "" {
		cfg.Selection.Interval = market.Interval(interval)
	}
	if lookback != 0 {
		cfg.Selection.Lookback = lookback
	}
	// The trade stream never completes on its own.
	cfg.Stream.Enabled = false

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	sel, err := cfg.StartSelection()
	if err != nil {
		log.Fatalf("selection: %v", err)
	}
	sel.Epoch = 1
	set, err := sources.Build(cfg, logging.Component(log, "http"))
	if err != nil {
		log.Fatalf("providers: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	frags := make([]aggregate.Fragment, len(set.Sources))
	n := normalize.New()
	var g errgroup.Group
	for i, src := range set.Sources {
		g.Go(func() error {
			frag, err := scheduler.Collect(ctx, n, src, sel, log)
			if err != nil {
				log.WithField("provider", src.Client.ID()).WithError(err).Warn("partial result")
			}
			frags[i] = frag
			return nil
		})
	}
	_ = g.Wait()

	agg := aggregate.New(set.Policy)
	snap := aggregate.Empty(sel)
	for _, f := range frags {
		snap = agg.Merge(snap, f, time.Now())
	}
	if !snap.Populated() {
		log.Fatal("no provider returned data")
	}

	out := struct {
		Snapshot   *aggregate.Snapshot `json:"snapshot"`
		Indicators *indicators.Report  `json:"indicators,omitempty"`
	}{Snapshot: snap}
	if withInd {
		r := indicators.Compute(snap.Candles())
		out.Indicators = &r
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	fmt.Println(string(b))
}
