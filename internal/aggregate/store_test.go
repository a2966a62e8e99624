package aggregate_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/market"
)

func TestStore_NotYetAvailable(t *testing.T) {
	t.Parallel()

	store := aggregate.NewStore()
	_, err := store.Current()
	require.ErrorIs(t, err, aggregate.ErrNotYetAvailable)
	require.Zero(t, store.Version())

	// An empty snapshot is published but still holds no data
	store.Publish(aggregate.Empty(sel))
	_, err = store.Current()
	require.ErrorIs(t, err, aggregate.ErrNotYetAvailable)
	require.NotNil(t, store.Latest())
}

func TestStore_SubscribeCoalesces(t *testing.T) {
	t.Parallel()

	agg := aggregate.New(policy)
	store := aggregate.NewStore()
	_, ch, cancel := store.Subscribe()
	require.Equal(t, 1, store.Subscribers())

	// Act: publish three times without reading
	s := aggregate.Empty(sel)
	for i := 0; i < 3; i++ {
		s = agg.Merge(s, aggregate.Fragment{
			Source: "p", Epoch: 1,
			Metrics: []market.Metric{metric(market.FieldPriceLast, "1", t0, "p")},
		}, t0)
		store.Publish(s)
	}

	// Assert: one pending signal, latest version visible
	<-ch
	select {
	case <-ch:
		t.Fatal("notifications did not coalesce")
	default:
	}
	snap, err := store.Current()
	require.NoError(t, err)
	require.Equal(t, uint64(3), snap.Version())
	require.Equal(t, uint64(3), store.Version())

	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)
	require.Zero(t, store.Subscribers())
}

func TestSnapshot_JSON(t *testing.T) {
	t.Parallel()

	agg := aggregate.New(policy)
	s := agg.Merge(aggregate.Empty(sel), aggregate.Fragment{
		Source: "p", Epoch: 1,
		Metrics: []market.Metric{metric(market.FieldPriceLast, "65000.5", t0, "p")},
	}, t0)

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var got struct {
		Instrument string `json:"instrument"`
		Version    uint64 `json:"version"`
		Fields     map[string]struct {
			Value  string `json:"value"`
			Source string `json:"source"`
			Stale  bool   `json:"stale"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "BTC/USDT", got.Instrument)
	require.Equal(t, uint64(1), got.Version)
	require.Equal(t, "65000.5", got.Fields["price_last"].Value)
	require.Equal(t, "p", got.Fields["price_last"].Source)
}
