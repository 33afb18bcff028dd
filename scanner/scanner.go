// Package scanner turns a line-oriented hexdump stream into the small token
// vocabulary the hexdump state machine (package hexdump) is built around:
// a leading offset, a run of two-digit hex bytes, an embedded directive, the
// trailing ASCII/text rendering column, end-of-line, and end-of-file.
package scanner

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/m-lab/text2pcap/clockfmt"
)

// OffsetBase selects how the scanner recognizes and parses the leading
// offset field of a hexdump line. The zero value, OffsetHex, matches
// text2pcap's traditional hex offset column.
type OffsetBase int

const (
	// OffsetHex parses offset runs as hexadecimal (the traditional
	// "0000  de ad be ef" column).
	OffsetHex OffsetBase = iota
	// OffsetNone disables offset recognition entirely: there is no
	// offset column, and every line's leading byte pairs start a new
	// packet directly.
	OffsetNone
	// OffsetOctal parses offset runs as octal.
	OffsetOctal
	// OffsetDecimal parses offset runs as decimal.
	OffsetDecimal
)

func (b OffsetBase) numericBase() int {
	switch b {
	case OffsetOctal:
		return 8
	case OffsetDecimal:
		return 10
	default:
		return 16
	}
}

// validForBase reports whether every character in s is a valid digit for
// base (hex offsets accept anything already in the hex-digit run; octal and
// decimal are stricter subsets of it).
func validForBase(s string, base OffsetBase) bool {
	switch base {
	case OffsetOctal:
		for _, r := range s {
			if r < '0' || r > '7' {
				return false
			}
		}
	case OffsetDecimal:
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// Kind identifies what a Token carries.
type Kind int

const (
	// Byte is a single decoded hex byte read from the byte column.
	Byte Kind = iota
	// Offset is an offset value parsed in the Scanner's configured
	// OffsetBase (hex, octal or decimal).
	Offset
	// Directive is a '#'-introduced control line, e.g. "#TEXT2PCAP" or a
	// timestamp/seqno directive consumed by the caller's DirectiveFunc.
	Directive
	// Text is the free-form trailing text column, or any line that does
	// not parse as offset+bytes at all (preamble material).
	Text
	// EOL marks the end of one input line.
	EOL
	// EOF marks exhaustion of the input stream.
	EOF
)

// Token is one lexical unit produced by Scanner.Next.
type Token struct {
	Kind   Kind
	Byte   byte
	Offset uint32
	Text   string
}

// Scanner reads successive Tokens from a hexdump-formatted stream.
type Scanner struct {
	r        *bufio.Reader
	base     OffsetBase
	line     []rune
	pos      int
	lineRead bool
	sawEOF   bool
}

// New returns a Scanner reading from r, recognizing offset fields in base.
func New(r io.Reader, base OffsetBase) *Scanner {
	return &Scanner{r: bufio.NewReader(r), base: base}
}

// Next returns the next token in the stream. After an EOF token has been
// returned once, every subsequent call returns EOF again.
func (s *Scanner) Next() (Token, error) {
	if s.sawEOF {
		return Token{Kind: EOF}, nil
	}
	if !s.lineRead || s.pos > len(s.line) {
		line, err := s.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return Token{}, err
		}
		if err == io.EOF && line == "" {
			s.sawEOF = true
			return Token{Kind: EOF}, nil
		}
		line = strings.TrimRight(line, "\r\n")
		s.line = []rune(line)
		s.pos = 0
		s.lineRead = true
		return s.nextInLine()
	}
	return s.nextInLine()
}

// nextInLine tokenizes starting at s.pos within the current line, consuming
// leading whitespace first.
func (s *Scanner) nextInLine() (Token, error) {
	for s.pos < len(s.line) && (s.line[s.pos] == ' ' || s.line[s.pos] == '\t') {
		s.pos++
	}
	if s.pos >= len(s.line) {
		s.pos = len(s.line) + 1 // past-EOL sentinel so the next call rereads
		return Token{Kind: EOL}, nil
	}

	if s.line[s.pos] == '#' {
		rest := string(s.line[s.pos:])
		s.pos = len(s.line)
		return Token{Kind: Directive, Text: rest}, nil
	}

	start := s.pos
	for s.pos < len(s.line) && isHexDigit(s.line[s.pos]) {
		s.pos++
	}
	runLen := s.pos - start
	trailingColon := s.pos < len(s.line) && s.line[s.pos] == ':'

	switch {
	case s.base != OffsetNone && (runLen >= 4 || trailingColon):
		// An offset field: a longer digit run, or one immediately
		// followed by a colon (text2pcap's traditional "0000  " vs
		// "0000:" offset spellings).
		digits := string(s.line[start : start+runLen])
		if trailingColon {
			s.pos++
		}
		if !validForBase(digits, s.base) {
			return Token{Kind: Text, Text: string(s.line[start:s.pos])}, nil
		}
		v, err := clockfmt.ParseNum(digits, s.base.numericBase())
		if err != nil {
			return Token{Kind: Text, Text: string(s.line[start:s.pos])}, nil
		}
		return Token{Kind: Offset, Offset: v}, nil
	case runLen == 2:
		v, err := strconv.ParseUint(string(s.line[start:start+2]), 16, 8)
		if err != nil {
			return Token{Kind: Text, Text: string(s.line[start:start+2])}, nil
		}
		return Token{Kind: Byte, Byte: byte(v)}, nil
	case runLen == 1:
		// A lone hex digit can't stand as a byte; the rest of the run
		// up to the next space is reported as text so the caller's
		// resync logic can see it.
		for s.pos < len(s.line) && s.line[s.pos] != ' ' && s.line[s.pos] != '\t' {
			s.pos++
		}
		return Token{Kind: Text, Text: string(s.line[start:s.pos])}, nil
	default:
		for s.pos < len(s.line) && s.line[s.pos] != ' ' && s.line[s.pos] != '\t' {
			s.pos++
		}
		return Token{Kind: Text, Text: string(s.line[start:s.pos])}, nil
	}
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
