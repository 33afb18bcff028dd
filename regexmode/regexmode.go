// Package regexmode drives packet reconstruction from a regular expression
// with named capture groups, rather than from hexdump-style offset
// bookkeeping: every line that matches produces exactly one packet, with
// fields routed out of whichever of the data/dir/time/seqno groups the
// caller's pattern defines.
package regexmode

import (
	"bufio"
	"errors"
	"io"

	"github.com/dlclark/regexp2"

	"github.com/m-lab/text2pcap/clockfmt"
	"github.com/m-lab/text2pcap/decode"
	"github.com/m-lab/text2pcap/header"
	"github.com/m-lab/text2pcap/packet"
)

// ErrNoDataGroup is returned by New when pattern has no "data" capture
// group; every other group is optional, but without packet bytes there is
// nothing to reconstruct.
var ErrNoDataGroup = errors.New("regexmode: pattern has no (?<data>...) group")

// Config parameterizes one Driver.
type Config struct {
	// Pattern is a .NET/PCRE-style regular expression using named
	// groups: (?<data>...) is required, (?<dir>...), (?<time>...) and
	// (?<seqno>...) are each optional.
	Pattern string
	Decoder decode.Encoding

	TimeFormat string
	Clock      *clockfmt.Context

	InboundIndicators  string
	OutboundIndicators string

	SeqnoBase int

	Synth *header.Synthesizer
	Sink  header.Sink
}

// Driver matches successive input lines against a compiled pattern and
// emits one packet per match.
type Driver struct {
	cfg  Config
	re   *regexp2.Regexp
	buf  *packet.Buffer
	flow header.FlowState

	prevSec  int64
	prevNsec int32

	packetsEmitted int
	linesMatched   int
	linesSkipped   int
	errorsSeen     int
}

// New compiles cfg.Pattern and returns a ready Driver.
func New(cfg Config) (*Driver, error) {
	re, err := regexp2.Compile(cfg.Pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	hasDataGroup := false
	for _, name := range re.GetGroupNames() {
		if name == "data" {
			hasDataGroup = true
			break
		}
	}
	if !hasDataGroup {
		return nil, ErrNoDataGroup
	}
	if cfg.Decoder.Name == "" {
		cfg.Decoder = decode.Hex
	}
	if cfg.Clock == nil {
		return nil, errors.New("regexmode: Config.Clock must be set")
	}
	if cfg.SeqnoBase == 0 {
		cfg.SeqnoBase = 10
	}
	return &Driver{cfg: cfg, re: re, buf: packet.NewBuffer(packet.HeaderPrefixMax, header.MaxStandardSnapLen)}, nil
}

// Stats summarizes one completed Run.
type Stats struct {
	PacketsEmitted int
	LinesMatched   int
	LinesSkipped   int
	ErrorsSeen     int
}

// Run matches every line read from r against the compiled pattern,
// synthesizing and emitting one packet per match. Lines with no match are
// counted and skipped rather than treated as fatal.
func (d *Driver) Run(r io.Reader) (Stats, error) {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scan.Scan() {
		line := scan.Text()
		m, err := d.re.FindStringMatch(line)
		if err != nil {
			return d.stats(), err
		}
		if m == nil {
			d.linesSkipped++
			continue
		}
		d.linesMatched++
		if err := d.handleMatch(m); err != nil && !errors.Is(err, header.ErrUnwritableRecData) {
			return d.stats(), err
		}
	}
	if err := scan.Err(); err != nil {
		return d.stats(), err
	}
	return d.stats(), nil
}

func (d *Driver) stats() Stats {
	return Stats{
		PacketsEmitted: d.packetsEmitted,
		LinesMatched:   d.linesMatched,
		LinesSkipped:   d.linesSkipped,
		ErrorsSeen:     d.errorsSeen,
	}
}

func groupString(m *regexp2.Match, name string) (string, bool) {
	g := m.GroupByName(name)
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return g.String(), true
}

func (d *Driver) handleMatch(m *regexp2.Match) error {
	data, ok := groupString(m, "data")
	if !ok {
		d.errorsSeen++
		return nil
	}

	d.buf.Reset()
	_, produced, err := decode.Decode([]byte(data), d.buf.PayloadDest(), d.cfg.Decoder)
	if err != nil && produced == 0 {
		d.errorsSeen++
		return nil
	}
	d.buf.Advance(produced)

	dir := header.DirectionUnknown
	if dirField, ok := groupString(m, "dir"); ok && len(dirField) > 0 {
		dir = header.ParseDir(dirField[0], true, d.cfg.InboundIndicators, d.cfg.OutboundIndicators)
	}

	sec, nsec := d.prevSec, d.prevNsec
	if timeField, ok := groupString(m, "time"); ok {
		sec, nsec = d.cfg.Clock.ParseTime(timeField, d.cfg.TimeFormat, d.prevSec, d.prevNsec)
	} else {
		sec, nsec = d.cfg.Clock.ParseTime("", "", d.prevSec, d.prevNsec)
	}

	var packetID uint64
	hasPacketID := false
	if seqField, ok := groupString(m, "seqno"); ok {
		if v, err := clockfmt.ParseNum(seqField, d.cfg.SeqnoBase); err == nil {
			packetID = uint64(v)
			hasPacketID = true
		}
	}

	err := d.cfg.Synth.Emit(d.buf, dir, sec, nsec, hasPacketID, packetID, &d.flow, d.cfg.Sink)
	d.packetsEmitted++
	d.prevSec, d.prevNsec = sec, nsec
	if errors.Is(err, header.ErrUnwritableRecData) {
		d.errorsSeen++
	}
	return err
}
