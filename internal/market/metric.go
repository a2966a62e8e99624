package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field is a name from the canonical vocabulary.
type Field string

const (
	FieldPriceLast         Field = "price_last"
	FieldPriceChangePct24h Field = "price_change_pct_24h"
	FieldHigh24h           Field = "high_24h"
	FieldLow24h            Field = "low_24h"
	FieldVolumeBase24h     Field = "volume_base_24h"
	FieldVolumeQuote24h    Field = "volume_quote_24h"
	FieldDominancePct      Field = "dominance_pct"
	FieldOpenInterest      Field = "open_interest"
	FieldFundingRatePct    Field = "funding_rate_pct"
	FieldChainDifficulty   Field = "chain_difficulty"
	FieldChainHashrate     Field = "chain_hashrate"
	FieldChainBlockHeight  Field = "chain_block_height"
)

// FieldOpenInterestNotional is price_last times open_interest, in the quote
// asset. It is computed by the aggregator, never fetched.
const FieldOpenInterestNotional Field = "open_interest_notional"

var vocabulary = []Field{
	FieldPriceLast,
	FieldPriceChangePct24h,
	FieldHigh24h,
	FieldLow24h,
	FieldVolumeBase24h,
	FieldVolumeQuote24h,
	FieldDominancePct,
	FieldOpenInterest,
	FieldOpenInterestNotional,
	FieldFundingRatePct,
	FieldChainDifficulty,
	FieldChainHashrate,
	FieldChainBlockHeight,
}

// Fields returns the fixed vocabulary in display order.
func Fields() []Field {
	out := make([]Field, len(vocabulary))
	copy(out, vocabulary)
	return out
}

func (f Field) Valid() bool {
	for _, v := range vocabulary {
		if v == f {
			return true
		}
	}
	return false
}

// Derived reports whether f is computed from other fields.
func (f Field) Derived() bool { return f == FieldOpenInterestNotional }

// Unit tags a value. Asset-denominated values use the asset ticker as unit.
type Unit string

const (
	UnitPercent        Unit = "pct"
	UnitContracts      Unit = "contracts"
	UnitDifficulty     Unit = "difficulty"
	UnitGigahashPerSec Unit = "GH/s"
	UnitBlocks         Unit = "blocks"
)

// AssetUnit tags a value denominated in the given asset.
func AssetUnit(asset string) Unit { return Unit(asset) }

// Metric is one normalized observation. Value is in canonical units and
// ObservedAt is always UTC.
type Metric struct {
	Field      Field           `json:"field"`
	Value      decimal.Decimal `json:"value"`
	Unit       Unit            `json:"unit"`
	ObservedAt time.Time       `json:"observed_at"`
	Source     string          `json:"source"`
}

// Candle is one OHLCV interval. Volume is in the base asset.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}
