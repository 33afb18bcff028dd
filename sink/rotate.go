package sink

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket/pcapgo"

	"github.com/m-lab/text2pcap/header"
)

// RotatingSink wraps a PcapSink and periodically swaps to a freshly created
// output file, the way a long-running saver.Connection swaps its zstd
// writer once FileAgeLimit has passed.
type RotatingSink struct {
	pathPrefix string
	ageLimit   time.Duration
	snaplen    uint32
	linkType   int

	f          *os.File
	inner      *PcapSink
	expiration time.Time
	sequence   int
}

// NewRotatingSink creates the first output file (pathPrefix plus a
// zero-padded sequence number and ".pcap") and arranges to open a new one
// every ageLimit, starting from now.
func NewRotatingSink(pathPrefix string, ageLimit time.Duration, snaplen uint32, linkType int, now time.Time) (*RotatingSink, error) {
	s := &RotatingSink{pathPrefix: pathPrefix, ageLimit: ageLimit, snaplen: snaplen, linkType: linkType}
	if err := s.rotate(now); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RotatingSink) rotate(now time.Time) error {
	if s.f != nil {
		s.f.Close()
	}
	name := fmt.Sprintf("%s_%05d.pcap", s.pathPrefix, s.sequence)
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("sink: creating %q: %w", name, err)
	}
	w := pcapgo.NewWriter(f)
	inner, err := NewPcapSink(w, s.snaplen, s.linkType)
	if err != nil {
		f.Close()
		return err
	}
	s.f = f
	s.inner = inner
	s.expiration = now.Add(s.ageLimit)
	s.sequence++
	return nil
}

// WriteRecord implements header.Sink, transparently rotating to a new file
// first if the record's timestamp has crossed the current file's
// expiration.
func (s *RotatingSink) WriteRecord(rec header.Record, data []byte) error {
	now := time.Unix(rec.TimestampSec, int64(rec.TimestampNsec))
	if s.ageLimit > 0 && !now.Before(s.expiration) {
		if err := s.rotate(now); err != nil {
			return err
		}
	}
	return s.inner.WriteRecord(rec, data)
}

// Close closes the currently open output file.
func (s *RotatingSink) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
