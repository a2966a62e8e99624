package normalize

import (
	"strings"

	"marketpulse/internal/market"
)

// GET /global. updated_at is epoch seconds.
func decodeCoinGeckoGlobal(d *decoder) error {
	if err := d.requireObject(""); err != nil {
		return err
	}
	data := d.root.Get("data")
	if !data.IsObject() {
		return d.malformed("missing data object")
	}
	at := d.observedAt("updated_at", data.Get("updated_at"))
	key := "market_cap_percentage." + strings.ToLower(d.obs.Instrument.Base)
	d.emit(market.FieldDominancePct, data.Get(key), market.UnitPercent, at)
	return nil
}
