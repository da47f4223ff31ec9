package deployment

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNegativeDuration is returned when a duration conversion is asked to
// represent a negative duration — the store never holds negative intervals
// for buffer/analytics fields, so the boundary rejects them outright rather
// than propagate a sign error deep into arithmetic.
var ErrNegativeDuration = errors.New("deployment: cannot convert negative duration")

// ErrIntervalNotMicrosecondSafe is returned when a PostgreSQL interval
// carries a non-zero months or days component. The store never writes such
// intervals (buffer_time and analytics durations are always expressed in
// microseconds), so seeing one on read back means the data is corrupt.
var ErrIntervalNotMicrosecondSafe = errors.New("deployment: interval has non-zero months or days, cannot convert losslessly")

// Interval is the canonical exchange form for a duration crossing the store
// boundary: "months=0, days=0, microseconds=N". Keeping all three fields —
// rather than collapsing straight to a Go time.Duration — makes a
// non-microsecond-safe interval a visible, checked error instead of a
// silent truncation, mirroring the original tool's PgInterval round trip.
type Interval struct {
	Months       int32
	Days         int32
	Microseconds int64
}

// NewInterval converts a non-negative time.Duration to its canonical
// interval form. Returns ErrNegativeDuration for negative input.
func NewInterval(d time.Duration) (Interval, error) {
	if d < 0 {
		return Interval{}, fmt.Errorf("%w: %s", ErrNegativeDuration, d)
	}

	return Interval{Microseconds: d.Microseconds()}, nil
}

// ToDuration converts the interval back to a time.Duration. Callers that
// need to distinguish a months/days-bearing interval from a pure
// microsecond one should use ToDurationSafe instead; ToDuration treats
// months/days as zero, which is always true for values this module writes.
func (iv Interval) ToDuration() time.Duration {
	return time.Duration(iv.Microseconds) * time.Microsecond
}

// ToDurationSafe converts the interval to a time.Duration, failing if the
// interval carries a months or days component that cannot be represented
// losslessly as microseconds (R1: duration ↔ interval ↔ duration is the
// identity for non-negative durations).
func (iv Interval) ToDurationSafe() (time.Duration, error) {
	if iv.Months != 0 || iv.Days != 0 {
		return 0, fmt.Errorf("%w: months=%d days=%d", ErrIntervalNotMicrosecondSafe, iv.Months, iv.Days)
	}

	return iv.ToDuration(), nil
}

// Value implements driver.Valuer, encoding the interval in PostgreSQL's
// textual interval format so it can be passed as a query parameter without
// a float-seconds round trip.
func (iv Interval) Value() (driver.Value, error) {
	return fmt.Sprintf("%d months %d days %d microseconds", iv.Months, iv.Days, iv.Microseconds), nil
}

// Scan implements sql.Scanner, parsing PostgreSQL's default interval output
// format ("HH:MM:SS[.ffffff]" for pure time intervals, optionally prefixed
// with "N days" or "N mons"). Only the microseconds-only form (the only
// form this module ever writes) is supported without loss; mixed
// months/days intervals are parsed into their respective fields so
// ToDurationSafe can reject them explicitly instead of silently dropping
// precision.
func (iv *Interval) Scan(src any) error {
	if src == nil {
		*iv = Interval{}

		return nil
	}

	var s string

	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("deployment: cannot scan %T into Interval", src)
	}

	return iv.parse(s)
}

// parse implements the PostgreSQL interval output grammar produced by the
// default IntervalStyle ("postgres"): an optional "N years", "N mons", "N
// days" prefix, followed by an optional "[-]HH:MM:SS[.ffffff]" clock part.
func (iv *Interval) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*iv = Interval{}

		return nil
	}

	var months, days int32

	fields := strings.Fields(s)

	i := 0
	for i < len(fields)-1 {
		value, err := strconv.Atoi(fields[i])
		if err != nil {
			break
		}

		unit := fields[i+1]

		switch {
		case strings.HasPrefix(unit, "year"):
			months += int32(value) * 12
		case strings.HasPrefix(unit, "mon"):
			months += int32(value)
		case strings.HasPrefix(unit, "day"):
			days += int32(value)
		default:
			// Not a recognized "<n> <unit>" pair; the remaining token is
			// the clock part.
			goto clock
		}

		i += 2
	}

clock:
	var micros int64

	if i < len(fields) {
		clockMicros, err := parseClock(fields[i])
		if err != nil {
			return fmt.Errorf("deployment: parsing interval %q: %w", s, err)
		}

		micros = clockMicros
	}

	iv.Months = months
	iv.Days = days
	iv.Microseconds = micros

	return nil
}

// parseClock parses a "[-]HH:MM:SS[.ffffff]" clock string into microseconds.
func parseClock(s string) (int64, error) {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock component %q", s)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", s, err)
	}

	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q: %w", s, err)
	}

	secParts := strings.SplitN(parts[2], ".", 2)

	seconds, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q: %w", s, err)
	}

	var micros int64
	if len(secParts) == 2 {
		frac := secParts[1]
		for len(frac) < 6 {
			frac += "0"
		}

		frac = frac[:6]

		fracVal, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("invalid fractional seconds in %q: %w", s, err)
		}

		micros = int64(fracVal)
	}

	total := int64(hours)*3600*1_000_000 + int64(minutes)*60*1_000_000 + int64(seconds)*1_000_000 + micros
	if negative {
		total = -total
	}

	return total, nil
}

// formatHuman renders a non-negative duration the way the original tool's
// `humantime::format_duration` does for the whole-second durations this
// module ever formats: the coarsest two non-zero units, e.g. "5m", "1h 30m".
func formatHuman(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	d = d.Round(time.Second)

	units := []struct {
		name string
		unit time.Duration
	}{
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	}

	var parts []string

	for _, u := range units {
		if d < u.unit {
			continue
		}

		count := int64(d / u.unit)
		d -= time.Duration(count) * u.unit
		parts = append(parts, fmt.Sprintf("%d%s", count, u.name))

		if len(parts) == 2 {
			break
		}
	}

	if len(parts) == 0 {
		return "0s"
	}

	return strings.Join(parts, " ")
}

// clampNonNegative mirrors `Duration::max(Duration::ZERO)` in the original
// tool: a remaining-time computation that overshoots due to an in-flight
// deployment running longer than its average never reports negative time.
func clampNonNegative(d time.Duration) time.Duration {
	return time.Duration(int64(math.Max(0, float64(d))))
}
