package emotimatch

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// CodePointRange is an inclusive range of unicode code points.
type CodePointRange struct {
	Start rune
	End   rune
}

// Options tune a single game.
type Options struct {
	Rounds            int
	RoundPrepareDelay time.Duration
	RoundStartDelay   time.Duration
	RoundMaxTime      time.Duration
	PenaltyTime       time.Duration
	GameFinishDelay   time.Duration
	CardSize          int
	WinCardSizeAdd    float64
	CodePointRanges   []CodePointRange

	// Now is used for penalty windows. Defaults to time.Now.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Rounds:            5,
		RoundPrepareDelay: 2 * time.Second,
		RoundStartDelay:   3 * time.Second,
		RoundMaxTime:      10 * time.Second,
		PenaltyTime:       2 * time.Second,
		GameFinishDelay:   10 * time.Second,
		CardSize:          3,
		WinCardSizeAdd:    1,
		CodePointRanges:   []CodePointRange{{Start: 0x1F600, End: 0x1F637}},
	}
}

func (o Options) Validate() error {
	if o.Rounds < 1 {
		return fmt.Errorf("invalid number of rounds (must be at least 1): %d", o.Rounds)
	}
	if o.CardSize < 1 {
		return fmt.Errorf("invalid card size (must be at least 1): %d", o.CardSize)
	}
	if o.WinCardSizeAdd < 0 {
		return fmt.Errorf("invalid card size growth (must not be negative): %v", o.WinCardSizeAdd)
	}

	for _, d := range []time.Duration{
		o.RoundPrepareDelay,
		o.RoundStartDelay,
		o.RoundMaxTime,
		o.PenaltyTime,
		o.GameFinishDelay,
	} {
		if d < 0 {
			return fmt.Errorf("invalid delay (must not be negative): %s", d)
		}
	}

	if len(o.Symbols()) == 0 {
		return errors.New("symbol pool is empty")
	}

	return nil
}

// Symbols expands the code point ranges into a deduplicated, sorted pool.
func (o Options) Symbols() []string {
	var symbols []string

	for _, r := range o.CodePointRanges {
		for cp := r.Start; cp <= r.End; cp++ {
			symbols = append(symbols, string(cp))
		}
	}

	slices.Sort(symbols)

	return slices.Compact(symbols)
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}

	return time.Now()
}
