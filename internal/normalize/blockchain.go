package normalize

import "marketpulse/internal/market"

// GET /stats. timestamp is epoch milliseconds, hash_rate is GH/s.
func decodeBlockchainStats(d *decoder) error {
	if err := d.requireObject(""); err != nil {
		return err
	}
	at := d.observedAt("timestamp", d.root.Get("timestamp"))
	d.emit(market.FieldChainDifficulty, d.root.Get("difficulty"), market.UnitDifficulty, at)
	d.emit(market.FieldChainHashrate, d.root.Get("hash_rate"), market.UnitGigahashPerSec, at)
	d.emit(market.FieldChainBlockHeight, d.root.Get("n_blocks_total"), market.UnitBlocks, at)
	return nil
}
