package insights

import (
	"math"
	"strconv"
	"strings"
)

// TimecodeToMs converts an indexer timestamp of the form H:MM:SS.mmm into
// integer milliseconds. Hours may have any number of digits and the
// fractional part of the seconds is optional.
//
// Malformed input yields 0 instead of an error so one corrupt record does
// not abort the run. Callers that need strictness use ParseTimecode.
func TimecodeToMs(ts string) int64 {
	ms, ok := ParseTimecode(ts)
	if !ok {
		return 0
	}
	return ms
}

// ParseTimecode is the strict form of TimecodeToMs.
func ParseTimecode(ts string) (int64, bool) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m < 0 {
		return 0, false
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, false
	}
	return h*3_600_000 + m*60_000 + int64(math.Round(s*1000)), true
}

// FormatTimecode renders milliseconds in the indexer's H:MM:SS.mmm form.
func FormatTimecode(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	frac := ms % 1000
	return strconv.FormatInt(h, 10) + ":" + pad2(m) + ":" + pad2(s) + "." + pad3(frac)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

func pad3(v int64) string {
	switch {
	case v < 10:
		return "00" + strconv.FormatInt(v, 10)
	case v < 100:
		return "0" + strconv.FormatInt(v, 10)
	default:
		return strconv.FormatInt(v, 10)
	}
}
