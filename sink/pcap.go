// Package sink provides header.Sink implementations: a live pcap writer, a
// self-rotating file writer for long-running imports, and a writer piped
// through an external zstd process for imports that want compressed
// capture files.
package sink

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"github.com/m-lab/text2pcap/header"
)

// PcapSink writes every record as a classic pcap packet record to an
// underlying pcapgo.Writer.
type PcapSink struct {
	w         *pcapgo.Writer
	snaplen   uint32
	wroteHdr  bool
	linkType  int
	prevWrite error
}

// NewPcapSink wraps w in a pcap file header sized for snaplen (clamped to
// header.MaxStandardSnapLen) and the given link-layer type.
func NewPcapSink(w *pcapgo.Writer, snaplen uint32, linkType int) (*PcapSink, error) {
	if snaplen == 0 || snaplen > header.MaxStandardSnapLen {
		snaplen = header.MaxStandardSnapLen
	}
	if err := w.WriteFileHeader(snaplen, gopacket.LinkType(linkType)); err != nil {
		return nil, fmt.Errorf("sink: writing pcap file header: %w", err)
	}
	return &PcapSink{w: w, snaplen: snaplen, wroteHdr: true, linkType: linkType}, nil
}

// WriteRecord implements header.Sink.
func (s *PcapSink) WriteRecord(rec header.Record, data []byte) error {
	capLen := len(data)
	if capLen > int(s.snaplen) {
		capLen = int(s.snaplen)
		data = data[:capLen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:      time.Unix(rec.TimestampSec, int64(rec.TimestampNsec)),
		CaptureLength:  capLen,
		Length:         rec.WireLen,
		InterfaceIndex: 0,
	}
	if err := s.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("%w: %v", header.ErrUnwritableRecData, err)
	}
	return nil
}
