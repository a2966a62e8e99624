package market

import "fmt"

// Selection is the active instrument/timeframe plus the epoch it was made in.
// Every in-flight fetch carries the Selection it started under; results are
// only applied while their epoch is still current.
type Selection struct {
	Instrument Instrument `json:"instrument"`
	Timeframe  Timeframe  `json:"timeframe"`
	Epoch      uint64     `json:"epoch"`
}

func (s Selection) Validate() error {
	if err := s.Instrument.Validate(); err != nil {
		return err
	}
	return s.Timeframe.Validate()
}

// SameQuery reports whether two selections ask for the same data, ignoring epochs.
func (s Selection) SameQuery(o Selection) bool {
	return s.Instrument == o.Instrument && s.Timeframe == o.Timeframe
}

func (s Selection) String() string {
	return fmt.Sprintf("%s %s (epoch %d)", s.Instrument, s.Timeframe, s.Epoch)
}
