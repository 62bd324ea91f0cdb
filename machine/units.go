package machine

import (
	"fmt"
	"strconv"
	"strings"
)

// Sizes use binary multiples (a 32 kB L1 is 32768 bytes); rates use decimal
// multiples (a 40 GB/s memory link moves 4e10 bytes per second).

var sizeUnits = map[string]int{
	"B":  1,
	"kB": 1 << 10,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
}

var frequencyUnits = map[string]float64{
	"Hz":  1,
	"kHz": 1e3,
	"MHz": 1e6,
	"GHz": 1e9,
}

var bandwidthUnits = map[string]float64{
	"B/s":  1,
	"kB/s": 1e3,
	"MB/s": 1e6,
	"GB/s": 1e9,
}

// ParseSize parses a byte size with a unit, such as "64 B" or "32 kB".
func ParseSize(s string) (int, error) {
	value, unit, err := splitUnit(s)
	if err != nil {
		return 0, err
	}

	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q in %q", unit, s)
	}

	return int(value * float64(mult)), nil
}

// ParseFrequency parses a clock rate such as "2.7 GHz" into Hz.
func ParseFrequency(s string) (float64, error) {
	value, unit, err := splitUnit(s)
	if err != nil {
		return 0, err
	}

	mult, ok := frequencyUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown frequency unit %q in %q", unit, s)
	}

	return value * mult, nil
}

// ParseBandwidth parses a byte rate such as "40 GB/s" into bytes per second.
func ParseBandwidth(s string) (float64, error) {
	value, unit, err := splitUnit(s)
	if err != nil {
		return 0, err
	}

	mult, ok := bandwidthUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown bandwidth unit %q in %q", unit, s)
	}

	return value * mult, nil
}

func splitUnit(s string) (float64, string, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("expected \"<value> <unit>\", got %q", s)
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, "", fmt.Errorf("bad numeric value in %q", s)
	}

	return value, fields[1], nil
}
