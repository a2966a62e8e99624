// Command rawdump fetches provider-native payloads for one selection and writes
// them to disk, with a summary of what the normalizer makes of each.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"marketpulse/internal/config"
	"marketpulse/internal/logging"
	"marketpulse/internal/market"
	"marketpulse/internal/normalize"
	"marketpulse/internal/provider"
	"marketpulse/internal/sources"
)

func main() {
	var (
		cfgPath    string
		only       string
		kindsCSV   string
		instrument string
		interval   string
		lookback   int
		outDir     string
		timeout    time.Duration
		maxRetries int
	)
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.StringVar(&only, "provider", "", "dump only this provider id (default: all enabled)")
	flag.StringVar(&kindsCSV, "kinds", "", "comma-separated kinds (default: every capability)")
	flag.StringVar(&instrument, "instrument", "", "instrument, e.g. BTC/USDT (default from config)")
	flag.StringVar(&interval, "interval", "", "candle interval (default from config)")
	flag.IntVar(&lookback, "lookback", 0, "candles to request (default from config)")
	flag.StringVar(&outDir, "out", "dump", "output directory")
	flag.DurationVar(&timeout, "timeout", 20*time.Second, "per-request timeout")
	flag.IntVar(&maxRetries, "retries", 3, "max retries on 429/5xx")
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
	cfg.Stream.Enabled = false

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	sel, err := cfg.StartSelection()
	if err != nil {
		log.Fatalf("selection: %v", err)
	}
	set, err := sources.Build(cfg, logging.Component(log, "http"))
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("create out: %v", err)
	}

	wanted := splitCSV(kindsCSV)
	n := normalize.New()
	dumped := 0
	for _, src := range set.Sources {
		id := src.Client.ID()
		if only != "" && string(id) != only {
			continue
		}
		for _, kind := range provider.Capabilities(src.Client) {
			if len(wanted) > 0 && !slices.Contains(wanted, string(kind)) {
				continue
			}
			entry := log.WithFields(logrus.Fields{"provider": id, "kind": kind})
			obs, err := fetchRetry(src.Client, kind, sel, timeout, maxRetries, entry)
			if err != nil {
				entry.WithError(err).Error("fetch failed")
				continue
			}
			path := filepath.Join(outDir, fmt.Sprintf("%s_%s_%s.json", id, kind, strings.ToLower(sel.Instrument.Symbol())))
			if err := writeFile(path, obs.Payload); err != nil {
				log.Fatalf("write: %v", err)
			}
			dumped++
			summarize(n, obs, path, entry)
		}
	}
	if dumped == 0 {
		log.Fatal("nothing dumped")
	}
	log.Infof("done: wrote %d payloads to %s", dumped, outDir)
}

// fetchRetry retries rate-limited and server-side failures with exponential
// backoff.
func fetchRetry(c provider.Client, kind provider.Kind, sel market.Selection, timeout time.Duration, maxRetries int, log *logrus.Entry) (provider.Observation, error) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		obs, err := provider.Fetch(ctx, c, kind, sel)
		cancel()
		if err == nil {
			return obs, nil
		}
		se, ok := provider.AsStatus(err)
		retryable := ok && (se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500)
		if !retryable || attempt >= maxRetries || errors.Is(err, provider.ErrUnsupportedQuery) {
			return provider.Observation{}, err
		}
		back := time.Duration(250*(1<<attempt)) * time.Millisecond
		log.WithError(err).WithField("retry_in", back).Warn("retrying")
		time.Sleep(back)
	}
}

func writeFile(path string, payload []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriterSize(f, 1<<16)
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}

func summarize(n *normalize.Normalizer, obs provider.Observation, path string, log *logrus.Entry) {
	res, err := n.Normalize(obs)
	if err != nil {
		log.WithError(err).WithField("file", path).Warn("payload does not normalize")
		return
	}
	log = log.WithFields(logrus.Fields{
		"file":    path,
		"bytes":   len(obs.Payload),
		"metrics": len(res.Metrics),
		"candles": len(res.Candles),
	})
	for _, fe := range res.Errors {
		log.WithField("field", fe.Field).Warn("field not normalized: " + fe.Reason)
	}
	log.Info("dumped")
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
