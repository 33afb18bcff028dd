package clockfmt

import (
	"strconv"
	"strings"
	"time"
)

// strptime implements the subset of the POSIX strptime(3) format directives
// that text2pcap format strings actually use for packet timestamps. It
// parses a prefix of s according to format, seeding any field the format
// doesn't mention from def, and returns the resulting time, the cursor
// position in s immediately after the consumed prefix, and whether parsing
// succeeded.
//
// This is not a general-purpose strptime: no locale support, no %c/%x/%X,
// no field width modifiers. Those are unneeded by any format string produced
// by a hexdump or regex-mode timestamp field.
func strptime(s, format string, def time.Time) (time.Time, int, bool) {
	year, month, day := def.Date()
	hour, min, sec := def.Clock()
	loc := def.Location()

	si := 0
	fi := 0
	for fi < len(format) {
		fc := format[fi]
		if fc != '%' {
			if si >= len(s) || s[si] != fc {
				return time.Time{}, si, false
			}
			si++
			fi++
			continue
		}
		fi++
		if fi >= len(format) {
			return time.Time{}, si, false
		}
		spec := format[fi]
		fi++
		var n int
		var ok bool
		switch spec {
		case 'Y':
			n, si, ok = readInt(s, si, 4)
			year = n
		case 'y':
			n, si, ok = readInt(s, si, 2)
			if ok {
				if n < 69 {
					year = 2000 + n
				} else {
					year = 1900 + n
				}
			}
		case 'm':
			n, si, ok = readInt(s, si, 2)
			month = time.Month(n)
		case 'd', 'e':
			n, si, ok = readInt(s, si, 2)
			day = n
		case 'H':
			n, si, ok = readInt(s, si, 2)
			hour = n
		case 'I':
			n, si, ok = readInt(s, si, 2)
			hour = n
		case 'M':
			n, si, ok = readInt(s, si, 2)
			min = n
		case 'S':
			n, si, ok = readInt(s, si, 2)
			sec = n
		case 'j':
			// Day of year: parsed but folded straight into day-of-year via
			// AddDate below since month/day aren't independently known.
			n, si, ok = readInt(s, si, 3)
			if ok {
				t := time.Date(year, time.January, 1, hour, min, sec, 0, loc).AddDate(0, 0, n-1)
				year, month, day = t.Date()
			}
		case 'b', 'B', 'h':
			var name string
			name, si, ok = readAlpha(s, si)
			if ok {
				m, found := monthByName(name)
				if !found {
					return time.Time{}, si, false
				}
				month = m
			}
		case 'a', 'A':
			// Weekday name: consumed but not used to derive the date (the
			// numeric fields, when present, take precedence, matching
			// strptime's usual behavior of not cross-validating %a/%A).
			_, si, ok = readAlpha(s, si)
		case 'n', 't':
			si = skipSpace(s, si)
			ok = true
		case '%':
			ok = si < len(s) && s[si] == '%'
			if ok {
				si++
			}
		case 'f':
			// Only reachable if the caller passed "%f" through as a literal
			// (it shouldn't: ParseTime splits it out first). Treat as a
			// digit run for robustness.
			var digits string
			digits, si = consumeDigits(s, si)
			ok = digits != ""
		default:
			return time.Time{}, si, false
		}
		if !ok {
			return time.Time{}, si, false
		}
	}
	return time.Date(year, month, day, hour, min, sec, 0, loc), si, true
}

func readInt(s string, pos, maxDigits int) (int, int, bool) {
	start := pos
	for pos < len(s) && pos-start < maxDigits && s[pos] >= '0' && s[pos] <= '9' {
		pos++
	}
	if pos == start {
		return 0, pos, false
	}
	n, err := strconv.Atoi(s[start:pos])
	return n, pos, err == nil
}

func consumeDigits(s string, pos int) (string, int) {
	start := pos
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		pos++
	}
	return s[start:pos], pos
}

func readAlpha(s string, pos int) (string, int, bool) {
	start := pos
	for pos < len(s) && ((s[pos] >= 'a' && s[pos] <= 'z') || (s[pos] >= 'A' && s[pos] <= 'Z')) {
		pos++
	}
	return s[start:pos], pos, pos > start
}

func skipSpace(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	return pos
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

func monthByName(name string) (time.Month, bool) {
	lower := strings.ToLower(name)
	for i, full := range monthNames {
		if lower == full || lower == full[:3] {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}
