// Package session wires together one import run's configuration -- the
// header stack, the byte encoding, the timestamp format, the chosen driver
// mode, the output sink, and the optional notify/metrics integrations --
// replacing the package-level mutable globals the importer used to keep
// for all of this with one explicit, constructible value.
package session

import (
	"fmt"
	"io"
	"time"

	"github.com/m-lab/text2pcap/clockfmt"
	"github.com/m-lab/text2pcap/decode"
	"github.com/m-lab/text2pcap/flowid"
	"github.com/m-lab/text2pcap/header"
	"github.com/m-lab/text2pcap/hexdump"
	"github.com/m-lab/text2pcap/metrics"
	"github.com/m-lab/text2pcap/notify"
	"github.com/m-lab/text2pcap/regexmode"
	"github.com/m-lab/text2pcap/scanner"
)

// OffsetBase re-exports scanner.OffsetBase so callers configuring a Session
// do not need to import package scanner directly.
type OffsetBase = scanner.OffsetBase

const (
	OffsetHex     = scanner.OffsetHex
	OffsetNone    = scanner.OffsetNone
	OffsetOctal   = scanner.OffsetOctal
	OffsetDecimal = scanner.OffsetDecimal
)

// Mode selects which driver reconstructs packet boundaries from the input.
type Mode int

const (
	// ModeHexdump drives package hexdump's offset-based reconstruction.
	ModeHexdump Mode = iota
	// ModeRegex drives package regexmode's named-capture-group
	// reconstruction.
	ModeRegex
)

func (m Mode) String() string {
	if m == ModeRegex {
		return "regex"
	}
	return "hexdump"
}

// Config fully parameterizes one import Session.
type Config struct {
	Mode Mode

	Header header.Config

	// OffsetBase selects how the hexdump driver's offset column is
	// recognized and parsed (ignored in ModeRegex).
	OffsetBase OffsetBase

	Decoder    decode.Encoding
	TimeFormat string
	SeqnoBase  int

	InboundIndicators  string
	OutboundIndicators string

	// Pattern is used only when Mode is ModeRegex.
	Pattern string

	Sink header.Sink

	// Notify, when non-nil, receives a Started ProgressEvent when Run
	// begins and a Finished one when it completes without error; no
	// per-packet events are sent.
	Notify *notify.Server

	// Debug, when non-nil, receives the hexdump driver's trace lines
	// (ignored in ModeRegex).
	Debug hexdump.DebugFunc

	// Directive, when non-nil, is invoked for every '#'-introduced
	// control line seen in hexdump mode (ignored in ModeRegex).
	Directive hexdump.DirectiveFunc

	Now time.Time
}

// Session runs one configured import to completion.
type Session struct {
	cfg   Config
	runID string
}

// New validates cfg and returns a ready Session. cfg.Now (time.Now() when
// zero) seeds both the session's run id and its clock's "today, local"
// default.
func New(cfg Config) (*Session, error) {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	runID, err := flowid.RunID(cfg.Now)
	if err != nil {
		return nil, fmt.Errorf("session: generating run id: %w", err)
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("session: Config.Sink must be set")
	}
	return &Session{cfg: cfg, runID: runID}, nil
}

// RunID returns the identifier generated for this session at construction.
func (s *Session) RunID() string {
	return s.runID
}

// Result summarizes one completed Run.
type Result struct {
	PacketsEmitted int
	ErrorsSeen     int
}

// Run reads r to completion in the configured mode, synthesizing and
// emitting packets as it goes.
func (s *Session) Run(r io.Reader) (Result, error) {
	clock := clockfmt.NewContext(s.cfg.Now)
	synth := header.NewSynthesizer(s.cfg.Header)

	s.report(notify.ProgressEvent{Phase: notify.Started})

	var result Result
	switch s.cfg.Mode {
	case ModeRegex:
		driver, err := regexmode.New(regexmode.Config{
			Pattern:            s.cfg.Pattern,
			Decoder:            s.cfg.Decoder,
			TimeFormat:         s.cfg.TimeFormat,
			Clock:              clock,
			InboundIndicators:  s.cfg.InboundIndicators,
			OutboundIndicators: s.cfg.OutboundIndicators,
			SeqnoBase:          s.cfg.SeqnoBase,
			Synth:              synth,
			Sink:               s.cfg.Sink,
		})
		if err != nil {
			return result, err
		}
		stats, err := driver.Run(r)
		result = Result{PacketsEmitted: stats.PacketsEmitted, ErrorsSeen: stats.ErrorsSeen}
		s.recordStats(stats.PacketsEmitted, 0, stats.ErrorsSeen)
		if err != nil {
			return result, err
		}
	default:
		driver := hexdump.New(hexdump.Config{
			Synth:              synth,
			Sink:               s.cfg.Sink,
			OffsetBase:         s.cfg.OffsetBase,
			Decoder:            s.cfg.Decoder,
			TimeFormat:         s.cfg.TimeFormat,
			Clock:              clock,
			InboundIndicators:  s.cfg.InboundIndicators,
			OutboundIndicators: s.cfg.OutboundIndicators,
			Directive:          s.cfg.Directive,
			Debug:              s.cfg.Debug,
		})
		stats, err := driver.Run(scanner.New(r, s.cfg.OffsetBase))
		result = Result{PacketsEmitted: stats.PacketsEmitted, ErrorsSeen: stats.ErrorsSeen}
		s.recordStats(stats.PacketsEmitted, stats.BytesEmitted, stats.ErrorsSeen)
		if err != nil {
			return result, err
		}
	}

	s.report(notify.ProgressEvent{
		Phase:        notify.Finished,
		PacketsSoFar: result.PacketsEmitted,
	})
	return result, nil
}

func (s *Session) recordStats(packets, bytes, errs int) {
	mode := s.cfg.Mode.String()
	metrics.PacketsEmitted.WithLabelValues(mode).Add(float64(packets))
	metrics.BytesEmitted.WithLabelValues(mode).Add(float64(bytes))
	metrics.DecodeErrors.WithLabelValues(mode).Add(float64(errs))
}

func (s *Session) report(ev notify.ProgressEvent) {
	if s.cfg.Notify == nil {
		return
	}
	ev.RunID = s.runID
	ev.Timestamp = time.Now()
	s.cfg.Notify.Report(ev)
}
