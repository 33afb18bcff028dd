package header

// ParseDir classifies a byte against two indicator strings, mirroring
// text_import.c's _parse_dir: the byte is checked against every rune in
// inbound first, then every rune in outbound; the first match wins, and no
// match at all yields DirectionUnknown. Passing a zero byte with ok=false
// (as when a preamble or regex field was empty) also yields
// DirectionUnknown without consulting either indicator string.
func ParseDir(b byte, ok bool, inbound, outbound string) Direction {
	if !ok {
		return DirectionUnknown
	}
	for _, r := range inbound {
		if byte(r) == b {
			return DirectionInbound
		}
	}
	for _, r := range outbound {
		if byte(r) == b {
			return DirectionOutbound
		}
	}
	return DirectionUnknown
}
