// Package clockfmt parses the two scalar fields the hexdump and regex
// drivers need beyond raw bytes: an unsigned integer in a caller-chosen base,
// and a timestamp described by a strftime-style format string extended with
// the %f fractional-seconds token.
package clockfmt

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrBadNumber is returned by ParseNum when str contains no valid digits in
// the requested base.
var ErrBadNumber = errors.New("clockfmt: invalid number")

// ParseNum parses an unsigned 32-bit integer from str in the given base (8,
// 10, or 16; base 0 lets strconv infer from a prefix). It corresponds to the
// hexdump parser's offset and byte fields: callers already know from token
// classification whether str is well-formed, so a failure here indicates a
// scanner/grammar mismatch rather than ordinary bad input.
func ParseNum(str string, base int) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(str), base, 32)
	if err != nil {
		return 0, ErrBadNumber
	}
	return uint32(v), nil
}

// subsecPrecision is the number of decimal digits a nanosecond count has:
// text2pcap stores time with nanosecond precision regardless of platform.
const subsecPrecision = 9

// Context carries the state ParseTime needs across the lifetime of one
// import session: the default broken-down time ("today, local") used to
// seed any field strptime doesn't populate. The synthetic nanosecond count
// is not kept here; ParseTime derives it from its prevNsec argument.
type Context struct {
	// Default is the broken-down time used to seed fields a format string
	// doesn't populate (e.g. year, when the format is just "%H:%M:%S").
	Default time.Time

	// syntheticNsec is not read or written; ParseTime increments the
	// caller's prevNsec instead.
	syntheticNsec int32
}

// NewContext seeds Default from the local wall clock, matching
// text_import.c's one-time call to localtime(&ts_sec) at session start.
func NewContext(now time.Time) *Context {
	return &Context{Default: now.Local()}
}

// ParseTime parses field according to format (a strftime pattern optionally
// containing the literal substring "%f" for fractional seconds) and returns
// seconds since the epoch plus nanoseconds. prevSec/prevNsec are the
// previous packet's timestamp, used as the fallback when mktime-equivalent
// conversion fails (the outgoing second is simply incremented) and, when no
// %f token is present, to drive the synthetic per-packet nanosecond counter.
func (c *Context) ParseTime(field, format string, prevSec int64, prevNsec int32) (sec int64, nsec int32) {
	nsec = prevNsec

	fIdx := strings.Index(format, "%f")
	prefix := format
	var suffix string
	hasFrac := fIdx >= 0
	if hasFrac {
		prefix = format[:fIdx]
		suffix = format[fIdx+2:]
	} else {
		nsec++
	}

	t, cursor, ok := strptime(field, prefix, c.Default)
	if !ok {
		// strptime failed outright: fall back exactly as text_import.c does
		// for a failed mktime, incrementing the previous second.
		return prevSec + 1, nsec
	}

	if hasFrac {
		digits, rest := leadingDigits(field[cursor:])
		if digits == "" {
			nsec++
		} else {
			n, _ := strconv.ParseInt(digits, 10, 64)
			nsec = int32(n)
			nsec = rescale(nsec, len(digits))
			// Continue parsing the tail of the format after the digits, the
			// same way text_import.c re-enters strptime past the subsecond
			// run. A failure here doesn't invalidate the already-parsed
			// prefix fields.
			if t2, _, ok2 := strptime(rest, suffix, t); ok2 {
				t = t2
			}
		}
	}

	// Go's time.Date normalizes out-of-range fields instead of failing the
	// way C's mktime(3) can, so the "whole-time conversion failed" fallback
	// in spec is only reachable here via the strptime parse failure above.
	return t.Unix(), nsec
}

// rescale converts an N-digit fractional-second count to nanoseconds:
// multiplying by 10^(9-N) when N<=9, dividing by 10^(N-9) when N>9.
func rescale(v int32, digits int) int32 {
	switch {
	case digits < subsecPrecision:
		for i := 0; i < subsecPrecision-digits; i++ {
			v *= 10
		}
	case digits > subsecPrecision:
		for i := 0; i < digits-subsecPrecision; i++ {
			v /= 10
		}
	}
	return v
}

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
