package header_test

import (
	"testing"

	"github.com/m-lab/text2pcap/header"
	"github.com/m-lab/text2pcap/packet"
)

func TestInternetChecksumKnownValue(t *testing.T) {
	// RFC 1071's own worked example: 0x0001 0xf203 0xf4f5 0xf6f7 sums to a
	// checksum of 0x220d.
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	got := header.InternetChecksum(data)
	if got != 0x220d {
		t.Errorf("InternetChecksum = %#04x, want 0x220d", got)
	}
}

func TestInternetChecksumSpanBoundaryMatchesContiguous(t *testing.T) {
	whole := []byte{0x45, 0x00, 0x00, 0x28, 0x00, 0x01, 0x00, 0x00, 0x40, 0x06}
	split := header.InternetChecksum(whole[:3], whole[3:7], whole[7:])
	contig := header.InternetChecksum(whole)
	if split != contig {
		t.Errorf("split checksum %#04x != contiguous checksum %#04x", split, contig)
	}
}

func TestInternetChecksumOddTotalLength(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	got := header.InternetChecksum(data)
	want := ^uint16(0x0102 + 0x0300)
	if got != want {
		t.Errorf("InternetChecksum = %#04x, want %#04x", got, want)
	}
}

func TestCRC32CChainMatchesSingleCall(t *testing.T) {
	whole := []byte("the quick brown fox jumps over the lazy dog")
	chained := header.CRC32CPreload
	chained = header.CRC32CChain(chained, whole[:10])
	chained = header.CRC32CChain(chained, whole[10:])
	single := header.CRC32CChain(header.CRC32CPreload, whole)
	if chained != single {
		t.Errorf("chained CRC32C %#08x != single-call CRC32C %#08x", chained, single)
	}
}

func TestParseDir(t *testing.T) {
	cases := []struct {
		b    byte
		ok   bool
		want header.Direction
	}{
		{'i', true, header.DirectionInbound},
		{'I', true, header.DirectionInbound},
		{'o', true, header.DirectionOutbound},
		{'O', true, header.DirectionOutbound},
		{'x', true, header.DirectionUnknown},
		{0, false, header.DirectionUnknown},
	}
	for _, c := range cases {
		if got := header.ParseDir(c.b, c.ok, "iI", "oO"); got != c.want {
			t.Errorf("ParseDir(%q, %v) = %v, want %v", c.b, c.ok, got, c.want)
		}
	}
}

type recordingSink struct {
	recs  []header.Record
	datas [][]byte
}

func (s *recordingSink) WriteRecord(rec header.Record, data []byte) error {
	s.recs = append(s.recs, rec)
	cp := make([]byte, len(data))
	copy(cp, data)
	s.datas = append(s.datas, cp)
	return nil
}

func TestEmitUDPFrameIsPaddedAndChecksummed(t *testing.T) {
	cfg := header.DefaultConfig()
	cfg.Stack = header.StackUDP
	cfg.SrcPort = 1234
	cfg.DstPort = 5678
	synth := header.NewSynthesizer(cfg)

	buf := packet.NewBuffer(packet.HeaderPrefixMax, 4)
	buf.WriteByte(0xde)
	buf.WriteByte(0xad)
	buf.WriteByte(0xbe)
	buf.WriteByte(0xef)

	sink := &recordingSink{}
	if err := synth.Emit(buf, header.DirectionInbound, 1000, 0, false, 0, nil, sink); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(sink.recs) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.recs))
	}
	frame := sink.datas[0]
	if len(frame) < 60 {
		t.Errorf("frame len = %d, want at least 60 (ethernet minimum)", len(frame))
	}
	if sink.recs[0].Direction != header.DirectionInbound {
		t.Errorf("Direction = %v, want Inbound", sink.recs[0].Direction)
	}
	// Both checksums verify to zero; the UDP one covers the pseudo-header,
	// the 8-byte UDP header and the 4 payload bytes, not the trailer.
	if sum := header.InternetChecksum(frame[14:34]); sum != 0 {
		t.Errorf("IPv4 header checksum does not verify: residual %#04x", sum)
	}
	ph := append(append([]byte{}, frame[26:34]...), 0, 17, 0, 12)
	if sum := header.InternetChecksum(ph, frame[34:46]); sum != 0 {
		t.Errorf("UDP checksum does not verify: residual %#04x", sum)
	}
}

func TestEmitTCPAdvancesFlowSequence(t *testing.T) {
	cfg := header.DefaultConfig()
	cfg.Stack = header.StackTCP
	cfg.SrcPort = 80
	cfg.DstPort = 9000
	synth := header.NewSynthesizer(cfg)
	flow := &header.FlowState{}
	sink := &recordingSink{}

	buf := packet.NewBuffer(packet.HeaderPrefixMax, 8)
	for i := 0; i < 5; i++ {
		buf.WriteByte(byte(i))
	}
	if err := synth.Emit(buf, header.DirectionOutbound, 1, 0, false, 0, flow, sink); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if flow.SeqOut != 5 {
		t.Errorf("SeqOut = %d, want 5", flow.SeqOut)
	}
	if flow.SeqIn != 0 {
		t.Errorf("SeqIn = %d, want 0 (untouched by outbound packet)", flow.SeqIn)
	}

	buf2 := packet.NewBuffer(packet.HeaderPrefixMax, 8)
	buf2.WriteByte(1)
	buf2.WriteByte(2)
	if err := synth.Emit(buf2, header.DirectionOutbound, 2, 0, false, 0, flow, sink); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if flow.SeqOut != 7 {
		t.Errorf("SeqOut after second segment = %d, want 7", flow.SeqOut)
	}
}

// tcpFlagsAndAck extracts the flags byte and ack number from a synthesized
// Ethernet+IPv4+TCP frame.
func tcpFlagsAndAck(frame []byte) (flags byte, ack uint32) {
	const tcpOff = 14 + 20
	ack = uint32(frame[tcpOff+8])<<24 | uint32(frame[tcpOff+9])<<16 | uint32(frame[tcpOff+10])<<8 | uint32(frame[tcpOff+11])
	flags = frame[tcpOff+13]
	return flags, ack
}

func TestEmitTCPAckReflectsOppositeDirectionCounter(t *testing.T) {
	cfg := header.DefaultConfig()
	cfg.Stack = header.StackTCP
	cfg.SrcPort = 80
	cfg.DstPort = 9000
	synth := header.NewSynthesizer(cfg)
	flow := &header.FlowState{}
	sink := &recordingSink{}

	// Inbound segment of 15 bytes establishes what the outbound ack
	// should reflect.
	buf := packet.NewBuffer(packet.HeaderPrefixMax, 15)
	for i := 0; i < 15; i++ {
		buf.WriteByte(byte(i))
	}
	if err := synth.Emit(buf, header.DirectionInbound, 1, 0, false, 0, flow, sink); err != nil {
		t.Fatalf("Emit inbound: %v", err)
	}
	if flow.SeqIn != 15 {
		t.Fatalf("SeqIn = %d, want 15", flow.SeqIn)
	}

	buf2 := packet.NewBuffer(packet.HeaderPrefixMax, 1)
	buf2.WriteByte(0xff)
	if err := synth.Emit(buf2, header.DirectionOutbound, 2, 0, false, 0, flow, sink); err != nil {
		t.Fatalf("Emit outbound: %v", err)
	}

	flags, ack := tcpFlagsAndAck(sink.datas[1])
	if flags != 0x10 {
		t.Errorf("flags = %#x, want 0x10 (ACK)", flags)
	}
	if ack != 15 {
		t.Errorf("ack = %d, want 15 (inbound's next-expected byte)", ack)
	}
}

func TestEmitTCPUnknownDirectionZerosAckAndFlags(t *testing.T) {
	cfg := header.DefaultConfig()
	cfg.Stack = header.StackTCP
	synth := header.NewSynthesizer(cfg)
	sink := &recordingSink{}

	buf := packet.NewBuffer(packet.HeaderPrefixMax, 1)
	buf.WriteByte(0x01)
	if err := synth.Emit(buf, header.DirectionUnknown, 1, 0, false, 0, &header.FlowState{}, sink); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	flags, ack := tcpFlagsAndAck(sink.datas[0])
	if flags != 0 {
		t.Errorf("flags = %#x, want 0", flags)
	}
	if ack != 0 {
		t.Errorf("ack = %d, want 0", ack)
	}
}
