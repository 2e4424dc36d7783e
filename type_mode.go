package performance

import "fmt"

// Mode selects the return methodology.
type Mode int

const (
	// ModeDietz values the portfolio at each month end and weights flows
	// by the fraction of the month they were invested.
	ModeDietz Mode = iota
	// ModeTWR values the portfolio every day and chain links GIPS
	// beginning-of-day returns.
	ModeTWR
)

func (m Mode) String() string {
	switch m {
	case ModeDietz:
		return "dietz"
	case ModeTWR:
		return "twr"
	default:
		return "unknown"
	}
}

// Period returns the valuation granularity of the mode.
func (m Mode) Period() Period {
	if m == ModeTWR {
		return Daily
	}
	return Monthly
}

// ParseMode parses a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "dietz", "monthly", "modified-dietz":
		return ModeDietz, nil
	case "twr", "daily", "gips":
		return ModeTWR, nil
	default:
		return ModeDietz, fmt.Errorf("unknown return mode %q (want dietz or twr)", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
