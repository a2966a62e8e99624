package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
)

const (
	StreamID provider.ID = "binance-stream"

	DefaultStreamURL = "wss://stream.binance.com:9443/ws"

	// Binance pings every 20s; two missed pings means the connection is dead.
	defaultReadTimeout = time.Minute
)

// TradeStream subscribes to the raw trade stream of one symbol.
type TradeStream struct {
	url         string
	dialer      *websocket.Dialer
	readTimeout time.Duration
	now         func() time.Time
}

type StreamOption func(*TradeStream)

func WithStreamURL(u string) StreamOption {
	return func(s *TradeStream) { s.url = strings.TrimRight(u, "/") }
}

func WithDialer(d *websocket.Dialer) StreamOption {
	return func(s *TradeStream) { s.dialer = d }
}

func WithReadTimeout(d time.Duration) StreamOption {
	return func(s *TradeStream) { s.readTimeout = d }
}

func WithStreamClock(now func() time.Time) StreamOption {
	return func(s *TradeStream) { s.now = now }
}

func NewTradeStream(options ...StreamOption) *TradeStream {
	s := &TradeStream{
		url:         DefaultStreamURL,
		dialer:      websocket.DefaultDialer,
		readTimeout: defaultReadTimeout,
		now:         time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *TradeStream) ID() provider.ID { return StreamID }

// Stream emits one observation per trade message until ctx is done.
func (s *TradeStream) Stream(ctx context.Context, inst market.Instrument, emit func(provider.Observation)) error {
	if err := inst.Validate(); err != nil {
		return provider.Unsupported(StreamID, provider.KindTrade, err.Error())
	}
	endpoint := fmt.Sprintf("%s/%s@trade", s.url, strings.ToLower(inst.Symbol()))
	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return provider.Unavailable(StreamID, fmt.Errorf("dial %s: %w", endpoint, err))
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return provider.Unavailable(StreamID, fmt.Errorf("read: %w", err))
		}
		if mt != websocket.TextMessage {
			continue
		}
		emit(provider.Observation{
			Provider:   StreamID,
			Kind:       provider.KindTrade,
			Format:     provider.FormatBinanceTrade,
			Instrument: inst,
			FetchedAt:  s.now().UTC(),
			Payload:    msg,
		})
	}
}
