package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/catalog"
	"marketpulse/internal/indicators"
	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
	"marketpulse/internal/provider"
	"marketpulse/internal/scheduler"
)

// controller is the part of the scheduler the API drives.
type controller interface {
	Selection() market.Selection
	SetSelection(ctx context.Context, inst market.Instrument, tf market.Timeframe) (market.Selection, error)
	Status() []scheduler.ProviderStatus
	Trigger(id provider.ID) error
}

type instrumentCatalog interface {
	Resolve(ctx context.Context, s string) (market.Instrument, error)
	Instruments(ctx context.Context) ([]market.Instrument, error)
}

type api struct {
	store   *aggregate.Store
	sched   controller
	catalog instrumentCatalog // nil when disabled
	metrics *metrics.Metrics
	log     *logrus.Entry
	timeout time.Duration

	upgrader  websocket.Upgrader
	pingEvery time.Duration
}

func newRouter(a *api) *mux.Router {
	r := mux.NewRouter()
	r.Use(a.metrics.InstrumentHandler)

	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)

	s := r.PathPrefix("/api").Subrouter()
	s.HandleFunc("/snapshot", a.snapshot).Methods(http.MethodGet)
	s.HandleFunc("/selection", a.getSelection).Methods(http.MethodGet)
	s.HandleFunc("/selection", a.putSelection).Methods(http.MethodPut)
	s.HandleFunc("/providers", a.providers).Methods(http.MethodGet)
	s.HandleFunc("/providers/{id}/refresh", a.refresh).Methods(http.MethodPost)
	s.HandleFunc("/indicators", a.indicators).Methods(http.MethodGet)
	s.HandleFunc("/instruments", a.instruments).Methods(http.MethodGet)
	s.HandleFunc("/stream", a.stream).Methods(http.MethodGet)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": a.store.Version(),
	})
}

func (a *api) snapshot(w http.ResponseWriter, _ *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type selectionView struct {
	Instrument string          `json:"instrument"`
	Interval   market.Interval `json:"interval"`
	Lookback   int             `json:"lookback"`
	Epoch      uint64          `json:"epoch"`
}

func viewSelection(sel market.Selection) selectionView {
	return selectionView{
		Instrument: sel.Instrument.String(),
		Interval:   sel.Timeframe.Interval,
		Lookback:   sel.Timeframe.Lookback,
		Epoch:      sel.Epoch,
	}
}

func (a *api) getSelection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewSelection(a.sched.Selection()))
}

// selectionBody fields left empty keep their current value.
type selectionBody struct {
	Instrument string          `json:"instrument"`
	Interval   market.Interval `json:"interval"`
	Lookback   int             `json:"lookback"`
}

func (a *api) putSelection(w http.ResponseWriter, r *http.Request) {
	var b selectionBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	cur := a.sched.Selection()
	inst, tf := cur.Instrument, cur.Timeframe
	if b.Instrument != "" {
		var err error
		if inst, err = a.resolve(ctx, b.Instrument); err != nil {
			writeError(w, selectionStatus(err), err)
			return
		}
	}
	if b.Interval != "" {
		tf.Interval = b.Interval
	}
	if b.Lookback != 0 {
		tf.Lookback = b.Lookback
	}

	sel, err := a.sched.SetSelection(ctx, inst, tf)
	if err != nil {
		writeError(w, selectionStatus(err), err)
		return
	}
	a.log.WithField("selection", sel.String()).Info("selection updated")
	writeJSON(w, http.StatusOK, viewSelection(sel))
}

func (a *api) resolve(ctx context.Context, s string) (market.Instrument, error) {
	if a.catalog == nil {
		return market.ParseInstrument(s)
	}
	return a.catalog.Resolve(ctx, s)
}

func selectionStatus(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidInstrument), errors.Is(err, market.ErrInvalidTimeframe):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownInstrument):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type providersResponse struct {
	Selection selectionView              `json:"selection"`
	Providers []scheduler.ProviderStatus `json:"providers"`
}

func (a *api) providers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{
		Selection: viewSelection(a.sched.Selection()),
		Providers: a.sched.Status(),
	})
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	id := provider.ID(mux.Vars(r)["id"])
	if err := a.sched.Trigger(id); err != nil {
		if errors.Is(err, scheduler.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type indicatorsResponse struct {
	Instrument string          `json:"instrument"`
	Interval   market.Interval `json:"interval"`
	Version    uint64          `json:"version"`
	indicators.Report
}

func (a *api) indicators(w http.ResponseWriter, _ *http.Request) {
	snap, err := a.store.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	sel := snap.Selection()
	writeJSON(w, http.StatusOK, indicatorsResponse{
		Instrument: sel.Instrument.String(),
		Interval:   sel.Timeframe.Interval,
		Version:    snap.Version(),
		Report:     indicators.Compute(snap.Candles()),
	})
}

type instrumentsResponse struct {
	Instruments []string `json:"instruments"`
}

func (a *api) instruments(w http.ResponseWriter, r *http.Request) {
	if a.catalog == nil {
		writeError(w, http.StatusNotFound, errors.New("instrument catalog disabled"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	list, err := a.catalog.Instruments(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	out := instrumentsResponse{Instruments: make([]string, 0, len(list))}
	for _, inst := range list {
		out.Instruments = append(out.Instruments, inst.String())
	}
	writeJSON(w, http.StatusOK, out)
}
