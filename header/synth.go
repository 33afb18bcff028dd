package header

import (
	"encoding/binary"
	"errors"

	"github.com/m-lab/text2pcap/packet"
)

// ErrUnwritableRecData is returned by a Sink's WriteRecord when a record
// could not be written for a reason specific to that one record (the
// payload's checksum math overflowed a fixed field, the Sink's backing file
// rejected the write) rather than a reason that makes every subsequent
// write equally hopeless. Callers driving a Synthesizer treat it as
// recoverable: log it, count it, and move on to the next packet.
var ErrUnwritableRecData = errors.New("header: record data could not be written to sink")

// Sink is anything that can durably record one synthesized packet. Distinct
// Sink implementations (a live pcap writer, a rotating file, a compressing
// pipe) all satisfy this single contract.
type Sink interface {
	WriteRecord(rec Record, data []byte) error
}

var (
	dummyIPv4Src = [4]byte{10, 0, 0, 1}
	dummyIPv4Dst = [4]byte{10, 0, 0, 2}
)

const (
	ethHeaderLen      = 14
	ipv4HeaderLen     = 20
	udpHeaderLen      = 8
	tcpHeaderLen      = 20
	sctpCommonHdrLen  = 12
	sctpDataChunkHdr  = 16
	ethMinFrameLen    = 60
	exportPDUTagLen   = 4 // 2-byte tag + 2-byte length, repeated per TLV
	exportPDUEndOfOpt = 0
	exportPDUProtoTag = 12 // EXP_PDU_TAG_PROTO_NAME
)

// Synthesizer builds one layered dummy-header frame per call to Emit, using
// the ports/addresses/stack fixed at construction and the per-packet
// direction, timestamp and optional packet id passed to Emit.
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer returns a Synthesizer for cfg.
func NewSynthesizer(cfg Config) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

// sctpDataLen returns the space the optional SCTP DATA chunk header occupies
// in front of the payload: 16 bytes when the DATA chunk is enabled, else 0.
// Payload padding is written after the payload and is not counted here.
func (s *Synthesizer) sctpDataLen(e enabled) int {
	if !e.sctpData {
		return 0
	}
	return sctpDataChunkHdr
}

// sctpPad returns the number of zero padding bytes SCTP requires after the
// payload so the chunk's total length is a multiple of 4.
func sctpPad(payloadLen int) int {
	rem := (sctpDataChunkHdr + payloadLen) % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}

// exportPDUPrefixLen returns the length of the ExportPDU tag/length/value
// header this Synthesizer will write in front of the payload.
func (s *Synthesizer) exportPDUPrefixLen() int {
	if s.cfg.ExportPDUPayload == "" {
		return exportPDUTagLen // proto-name TLV absent, only end-of-opt
	}
	// proto-name TLV (tag+len+string, NUL terminated) + end-of-opt TLV.
	return exportPDUTagLen + len(s.cfg.ExportPDUPayload) + 1 + exportPDUTagLen
}

// prefixLen computes the total number of header-prefix bytes Emit will
// place in front of the current payload, given its length.
func (s *Synthesizer) prefixLen(e enabled, payloadLen int) int {
	if e.exportPDU {
		return s.exportPDUPrefixLen()
	}
	n := 0
	if e.eth {
		n += ethHeaderLen
	}
	if e.ip {
		n += ipv4HeaderLen
	}
	switch {
	case e.udp:
		n += udpHeaderLen
	case e.tcp:
		n += tcpHeaderLen
	case e.sctp:
		n += sctpCommonHdrLen + s.sctpDataLen(e)
	}
	return n
}

// padEthernetTrailer returns frame extended with zero bytes so that it is
// never shorter than the Ethernet minimum of 60 bytes. The trailer follows
// the payload and is not counted in the IP or transport length fields.
func padEthernetTrailer(frame []byte) []byte {
	if len(frame) >= ethMinFrameLen {
		return frame
	}
	return append(frame[:len(frame):len(frame)], make([]byte, ethMinFrameLen-len(frame))...)
}

// Emit synthesizes the configured header stack in front of buf's
// accumulated payload, writes the assembled frame to sink, and resets buf
// for the next packet. flow, if non-nil, is consulted and advanced for
// StackTCP frames; it is ignored for every other stack.
func (s *Synthesizer) Emit(buf *packet.Buffer, dir Direction, sec int64, nsec int32, hasPacketID bool, packetID uint64, flow *FlowState, sink Sink) error {
	e := s.cfg.enabledLayers()

	payloadLen := buf.CurrOffset
	sctpPadLen := 0
	if e.sctpData {
		sctpPadLen = sctpPad(payloadLen)
		for i := 0; i < sctpPadLen; i++ {
			if full := buf.WriteByte(0); full {
				break
			}
		}
		payloadLen = buf.CurrOffset
	}

	prefix := s.prefixLen(e, payloadLen)
	frame := buf.ShiftPayloadRight(prefix)
	payload := frame[prefix:]

	off := 0
	if e.eth {
		s.writeEthernet(frame[off:off+ethHeaderLen], dir)
		off += ethHeaderLen
	}

	var ipTotalLenField = len(frame) - off
	ipChecksumOff := -1
	if e.ip {
		ipChecksumOff = off + 10
		s.writeIPv4(frame[off:off+ipv4HeaderLen], dir, ipTotalLenField, e)
		off += ipv4HeaderLen
	}

	switch {
	case e.udp:
		s.writeUDP(frame[off:], payload, dir)
	case e.tcp:
		s.writeTCP(frame[off:off+tcpHeaderLen], payload, dir, flow)
	case e.sctp:
		dataHdr := 0
		if e.sctpData {
			dataHdr = sctpDataChunkHdr
		}
		s.writeSCTP(frame[off:off+sctpCommonHdrLen+dataHdr], payload, sctpPadLen, e)
	case e.exportPDU:
		s.writeExportPDU(frame[:prefix])
	}

	if ipChecksumOff >= 0 {
		binary.BigEndian.PutUint16(frame[ipChecksumOff:], 0)
		sum := InternetChecksum(frame[off-ipv4HeaderLen : off])
		binary.BigEndian.PutUint16(frame[ipChecksumOff:], sum)
	}

	if e.eth {
		frame = padEthernetTrailer(frame)
	}

	rec := Record{
		TimestampSec:  sec,
		TimestampNsec: nsec,
		CapLen:        len(frame),
		WireLen:       len(frame),
		LinkType:      s.cfg.linkType(),
		Direction:     dir,
		HasPacketID:   hasPacketID,
		PacketID:      packetID,
	}

	err := sink.WriteRecord(rec, frame)
	buf.Reset()
	return err
}

func (s *Synthesizer) writeEthernet(h []byte, dir Direction) {
	dst, src := s.cfg.EthDestAddr, s.cfg.EthSrcAddr
	if dir == DirectionOutbound {
		dst, src = src, dst
	}
	copy(h[0:6], dst[:])
	copy(h[6:12], src[:])
	et := s.cfg.EtherType
	if et == 0 {
		et = 0x0800 // IPv4
	}
	binary.BigEndian.PutUint16(h[12:14], et)
}

func (s *Synthesizer) writeIPv4(h []byte, dir Direction, totalLen int, e enabled) {
	srcIP, dstIP := dummyIPv4Src, dummyIPv4Dst
	if dir == DirectionOutbound {
		srcIP, dstIP = dstIP, srcIP
	}
	h[0] = 0x45 // version 4, IHL 5
	h[1] = 0    // DSCP/ECN
	binary.BigEndian.PutUint16(h[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(h[4:6], 0) // identification
	binary.BigEndian.PutUint16(h[6:8], 0) // flags/fragment offset
	h[8] = 255                            // TTL
	proto := s.cfg.IPProtocol
	switch {
	case e.udp:
		proto = 17
	case e.tcp:
		proto = 6
	case e.sctp:
		proto = 132
	}
	h[9] = proto
	binary.BigEndian.PutUint16(h[10:12], 0) // checksum, filled by caller
	copy(h[12:16], srcIP[:])
	copy(h[16:20], dstIP[:])
}

func (s *Synthesizer) pseudoHeader(dir Direction, protocol byte, segLen int) []byte {
	srcIP, dstIP := dummyIPv4Src, dummyIPv4Dst
	if dir == DirectionOutbound {
		srcIP, dstIP = dstIP, srcIP
	}
	ph := make([]byte, 12)
	copy(ph[0:4], srcIP[:])
	copy(ph[4:8], dstIP[:])
	ph[8] = 0
	ph[9] = protocol
	binary.BigEndian.PutUint16(ph[10:12], uint16(segLen))
	return ph
}

func (s *Synthesizer) writeUDP(h []byte, payload []byte, dir Direction) {
	srcPort, dstPort := s.cfg.SrcPort, s.cfg.DstPort
	if dir == DirectionOutbound {
		srcPort, dstPort = dstPort, srcPort
	}
	segLen := udpHeaderLen + len(payload)
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	binary.BigEndian.PutUint16(h[4:6], uint16(segLen))
	binary.BigEndian.PutUint16(h[6:8], 0)

	ph := s.pseudoHeader(dir, 17, segLen)
	sum := InternetChecksum(ph, h[0:8], payload)
	binary.BigEndian.PutUint16(h[6:8], sum)
}

func (s *Synthesizer) writeTCP(h []byte, payload []byte, dir Direction, flow *FlowState) {
	srcPort, dstPort := s.cfg.SrcPort, s.cfg.DstPort
	if dir == DirectionOutbound {
		srcPort, dstPort = dstPort, srcPort
	}
	var seq, ack uint32
	if flow != nil {
		if dir == DirectionOutbound {
			seq = flow.SeqOut
		} else {
			seq = flow.SeqIn
		}
	}
	// flags/ack are only meaningful once direction is known: a known
	// direction lets the ack number snapshot the opposite direction's
	// counter, acknowledging what that side has sent so far.
	var flags byte
	if dir != DirectionUnknown {
		flags = 0x10 // ACK
		if flow != nil {
			if dir == DirectionOutbound {
				ack = flow.SeqIn
			} else {
				ack = flow.SeqOut
			}
		}
	}
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	binary.BigEndian.PutUint32(h[4:8], seq)
	binary.BigEndian.PutUint32(h[8:12], ack)
	h[12] = 5 << 4 // data offset, no options
	h[13] = flags
	binary.BigEndian.PutUint16(h[14:16], 0xffff)
	binary.BigEndian.PutUint16(h[16:18], 0) // checksum placeholder
	binary.BigEndian.PutUint16(h[18:20], 0) // urgent pointer

	segLen := tcpHeaderLen + len(payload)
	ph := s.pseudoHeader(dir, 6, segLen)
	sum := InternetChecksum(ph, h[0:20], payload)
	binary.BigEndian.PutUint16(h[16:18], sum)

	if flow != nil {
		if dir == DirectionOutbound {
			flow.SeqOut += uint32(len(payload))
		} else {
			flow.SeqIn += uint32(len(payload))
		}
	}
}

func (s *Synthesizer) writeSCTP(h []byte, payload []byte, padLen int, e enabled) {
	binary.BigEndian.PutUint16(h[0:2], s.cfg.SrcPort)
	binary.BigEndian.PutUint16(h[2:4], s.cfg.DstPort)
	binary.BigEndian.PutUint32(h[4:8], s.cfg.SCTPVerificationTag)
	binary.BigEndian.PutUint32(h[8:12], 0) // checksum placeholder

	chunk := h[sctpCommonHdrLen:]
	if e.sctpData {
		chunkType := s.cfg.SCTPDataChunkType
		if chunkType == 0 {
			chunkType = 0 // DATA chunk type is 0
		}
		chunk[0] = chunkType
		chunk[1] = s.cfg.SCTPDataChunkFlags
		chunkLen := sctpDataChunkHdr + len(payload) - padLen
		binary.BigEndian.PutUint16(chunk[2:4], uint16(chunkLen))
		binary.BigEndian.PutUint32(chunk[4:8], s.cfg.SCTPDataTSN)
		binary.BigEndian.PutUint16(chunk[8:10], s.cfg.SCTPDataStreamID)
		binary.BigEndian.PutUint16(chunk[10:12], s.cfg.SCTPDataSeqNum)
		binary.BigEndian.PutUint32(chunk[12:16], s.cfg.SCTPDataPPID)
	}

	seed := CRC32CChain(CRC32CPreload, h[0:8])
	seed = CRC32CChain(seed, []byte{0, 0, 0, 0}) // checksum field as zero
	if e.sctpData {
		seed = CRC32CChain(seed, chunk)
	}
	seed = CRC32CChain(seed, payload)
	crc := ^seed
	binary.BigEndian.PutUint32(h[8:12], crc)
}

func (s *Synthesizer) writeExportPDU(h []byte) {
	off := 0
	if s.cfg.ExportPDUPayload != "" {
		val := s.cfg.ExportPDUPayload + "\x00"
		binary.BigEndian.PutUint16(h[off:off+2], exportPDUProtoTag)
		binary.BigEndian.PutUint16(h[off+2:off+4], uint16(len(val)))
		off += exportPDUTagLen
		copy(h[off:off+len(val)], val)
		off += len(val)
	}
	binary.BigEndian.PutUint16(h[off:off+2], exportPDUEndOfOpt)
	binary.BigEndian.PutUint16(h[off+2:off+4], 0)
}
