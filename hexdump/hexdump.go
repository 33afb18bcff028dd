// Package hexdump drives a five-state machine over the token
// stream produced by package scanner, reconstructing packet boundaries from
// each line's leading offset and feeding decoded bytes, direction and
// timestamp information to a header.Synthesizer.
package hexdump

import (
	"errors"
	"time"

	"github.com/m-lab/text2pcap/clockfmt"
	"github.com/m-lab/text2pcap/decode"
	"github.com/m-lab/text2pcap/header"
	"github.com/m-lab/text2pcap/packet"
	"github.com/m-lab/text2pcap/scanner"
)

// state names the hexdump driver's five-state machine.
type state int

const (
	stateInit state = iota
	stateStartOfLine
	stateReadOffset
	stateReadByte
	stateReadText
)

// DirectiveFunc is invoked for every '#'-introduced control line seen
// between packets, in whichever raw form the scanner preserved it in.
type DirectiveFunc func(text string) error

// DebugFunc, when set, receives a trace line when a line-leading offset is
// seen, when a directive is handled, and when a stray byte token is dropped.
type DebugFunc func(format string, args ...interface{})

// Config parameterizes one Driver.
type Config struct {
	Synth *header.Synthesizer
	Sink  header.Sink

	// OffsetBase selects how the leading offset column is recognized and
	// parsed; it is also threaded into the scanner.Scanner passed to Run.
	// scanner.OffsetNone means there is no offset column at all, and
	// every byte token seen at the start of a line begins a new packet.
	OffsetBase scanner.OffsetBase

	// Decoder defaults to decode.Hex. The Driver does not consult it:
	// byte-column tokens arrive from the scanner already decoded as hex.
	Decoder decode.Encoding

	// TimeFormat, when non-empty, is tried against each packet's
	// preamble text via clockfmt to recover a timestamp; when empty,
	// every packet's timestamp comes from Clock's synthetic counter.
	TimeFormat string
	Clock      *clockfmt.Context

	// InboundIndicators and OutboundIndicators name the preamble's
	// leading-character direction markers (conventionally "iI"/"oO").
	InboundIndicators  string
	OutboundIndicators string

	Directive DirectiveFunc
	Debug     DebugFunc
}

// Driver holds the mutable state of one hexdump import run: the packet
// buffer under construction, the pending preamble, the flow's TCP sequence
// counters, and the state machine's current state.
type Driver struct {
	cfg      Config
	buf      *packet.Buffer
	preamble packet.Preamble
	flow     header.FlowState

	state      state
	haveOffset bool

	pendingDirection header.Direction
	pendingSec       int64
	pendingNsec      int32

	prevSec  int64
	prevNsec int32

	packetsEmitted int
	bytesEmitted   int
	errorsSeen     int
}

// New returns a Driver ready to Run over a token stream.
func New(cfg Config) *Driver {
	if cfg.Decoder.Name == "" {
		cfg.Decoder = decode.Hex
	}
	if cfg.Clock == nil {
		cfg.Clock = clockfmt.NewContext(time.Now())
	}
	return &Driver{
		cfg:   cfg,
		buf:   packet.NewBuffer(packet.HeaderPrefixMax, header.MaxStandardSnapLen),
		state: stateInit,
	}
}

// Stats summarizes one completed Run.
type Stats struct {
	PacketsEmitted int
	BytesEmitted   int
	ErrorsSeen     int
}

// Run pulls tokens from s until EOF, reconstructing and emitting packets as
// their boundaries resolve, and flushes any partially filled final packet.
func (d *Driver) Run(s *scanner.Scanner) (Stats, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return d.stats(), err
		}
		if tok.Kind == scanner.EOF {
			if d.buf.CurrOffset > 0 {
				if err := d.flush(); err != nil && !errors.Is(err, header.ErrUnwritableRecData) {
					return d.stats(), err
				}
			}
			return d.stats(), nil
		}
		if err := d.step(tok); err != nil {
			return d.stats(), err
		}
	}
}

func (d *Driver) stats() Stats {
	return Stats{PacketsEmitted: d.packetsEmitted, BytesEmitted: d.bytesEmitted, ErrorsSeen: d.errorsSeen}
}

func (d *Driver) trace(format string, args ...interface{}) {
	if d.cfg.Debug != nil {
		d.cfg.Debug(format, args...)
	}
}

func (d *Driver) step(tok scanner.Token) error {
	switch d.state {
	case stateInit, stateStartOfLine:
		return d.stepStartOfLine(tok)
	case stateReadOffset:
		return d.stepReadOffset(tok)
	case stateReadByte:
		return d.stepReadByte(tok)
	case stateReadText:
		return d.stepReadText(tok)
	}
	return nil
}

func (d *Driver) stepStartOfLine(tok scanner.Token) error {
	switch tok.Kind {
	case scanner.Offset:
		d.trace("start-of-line: offset %#x", tok.Offset)
		return d.handleOffset(tok.Offset)
	case scanner.Directive:
		if d.cfg.Directive != nil {
			if err := d.cfg.Directive(tok.Text); err != nil {
				d.errorsSeen++
				return err
			}
		}
		d.trace("directive: %s", tok.Text)
		return nil
	case scanner.Text:
		d.preamble.Append(tok.Text)
		return nil
	case scanner.EOL:
		d.state = stateStartOfLine
		return nil
	case scanner.Byte:
		if d.cfg.OffsetBase == scanner.OffsetNone {
			// No offset column is configured: each line's leading
			// byte starts a fresh packet directly.
			if d.buf.CurrOffset > 0 {
				if err := d.flush(); err != nil && !errors.Is(err, header.ErrUnwritableRecData) {
					return err
				}
			}
			d.buf.PacketStart = 0
			d.sampleDirectionAndTime()
			d.haveOffset = true
			d.state = stateReadByte
			return d.stepReadByte(tok)
		}
		// A byte token with no preceding offset on this line is
		// malformed input; treat it as stray text and resynchronize
		// at the next line rather than aborting the whole import.
		d.errorsSeen++
		d.trace("resync: byte token without offset, dropping")
		d.state = stateStartOfLine
		return nil
	}
	return nil
}

func (d *Driver) handleOffset(offset uint32) error {
	if !d.haveOffset {
		d.buf.PacketStart = offset
		d.sampleDirectionAndTime()
		d.haveOffset = true
		d.state = stateReadOffset
		return nil
	}

	expected := d.buf.PacketStart + uint32(d.buf.CurrOffset)
	switch {
	case offset == 0:
		// Offset zero always begins a new packet, closing out any packet
		// still in progress.
		if d.buf.CurrOffset > 0 {
			if err := d.flush(); err != nil && !errors.Is(err, header.ErrUnwritableRecData) {
				return err
			}
		}
		d.buf.PacketStart = 0
		d.sampleDirectionAndTime()
	case offset == expected:
		// continuing the same packet
	case offset < expected:
		// The new offset retracts bytes already absorbed into the
		// current packet: they were actually trailing text that got
		// mistakenly read as hex byte pairs. Unwrite them and keep
		// accumulating the same packet from the corrected position.
		d.buf.Unwrite(int(expected - offset))
	default:
		// A discontinuous (larger) offset closes out whatever packet
		// is in progress and starts a fresh one at the new offset.
		if d.buf.CurrOffset > 0 {
			if err := d.flush(); err != nil && !errors.Is(err, header.ErrUnwritableRecData) {
				return err
			}
		}
		d.buf.PacketStart = offset
		d.sampleDirectionAndTime()
	}
	d.state = stateReadOffset
	return nil
}

// sampleDirectionAndTime extracts direction and timestamp information from
// the accumulated preamble, exactly once, at the moment a new packet's
// first offset is seen.
func (d *Driver) sampleDirectionAndTime() {
	d.preamble.TrimLeadingWhitespace()
	first, ok := d.preamble.FirstByte()
	d.pendingDirection = header.ParseDir(first, ok, d.cfg.InboundIndicators, d.cfg.OutboundIndicators)

	d.pendingSec, d.pendingNsec = d.cfg.Clock.ParseTime(d.preamble.String(), d.cfg.TimeFormat, d.prevSec, d.prevNsec)
	d.preamble.Clear()
}

func (d *Driver) stepReadOffset(tok scanner.Token) error {
	switch tok.Kind {
	case scanner.Byte:
		d.state = stateReadByte
		return d.stepReadByte(tok)
	case scanner.EOL:
		d.state = stateStartOfLine
		return nil
	case scanner.Text:
		d.state = stateReadText
		return nil
	case scanner.Directive:
		return d.stepStartOfLine(tok)
	}
	return nil
}

func (d *Driver) stepReadByte(tok scanner.Token) error {
	switch tok.Kind {
	case scanner.Byte:
		if full := d.buf.WriteByte(tok.Byte); full {
			if err := d.flush(); err != nil && !errors.Is(err, header.ErrUnwritableRecData) {
				return err
			}
			d.haveOffset = false
		}
		return nil
	case scanner.Text:
		d.state = stateReadText
		return nil
	case scanner.EOL:
		d.state = stateStartOfLine
		return nil
	case scanner.Offset:
		return d.handleOffset(tok.Offset)
	}
	return nil
}

func (d *Driver) stepReadText(tok scanner.Token) error {
	switch tok.Kind {
	case scanner.EOL:
		d.state = stateStartOfLine
		return nil
	case scanner.Text:
		return nil
	case scanner.Offset:
		return d.handleOffset(tok.Offset)
	}
	return nil
}

// flush synthesizes and emits the packet currently accumulated in d.buf.
// header.Synthesizer.Emit resets d.buf itself once the frame has been
// handed to the sink, so byte accounting is captured first.
func (d *Driver) flush() error {
	n := d.buf.CurrOffset
	err := d.cfg.Synth.Emit(d.buf, d.pendingDirection, d.pendingSec, d.pendingNsec, false, 0, &d.flow, d.cfg.Sink)
	d.packetsEmitted++
	d.bytesEmitted += n
	d.prevSec, d.prevNsec = d.pendingSec, d.pendingNsec
	if errors.Is(err, header.ErrUnwritableRecData) {
		d.errorsSeen++
	}
	return err
}
