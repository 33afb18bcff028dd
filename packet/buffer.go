// Package packet holds the two pieces of per-import mutable state that sit
// beneath the header synthesizer and the hexdump/regex drivers: the packet
// buffer that accumulates payload bytes for the packet currently being
// built, and the bounded preamble buffer that collects free text seen before
// a packet's first byte.
package packet

// HeaderPrefixMax is the largest prefix any enabled header stack can add in
// front of a payload: Ethernet + IPv4 + SCTP + SCTP DATA chunk + ExportPDU
// (UDP/TCP never combine with SCTP or ExportPDU, so their sizes are not
// additive with SCTP's, but summing all of them is a safe, simple upper
// bound for buffer sizing).
const HeaderPrefixMax = 14 + 20 + 12 + 16 + 4 + 256

// Buffer is a fixed-capacity byte region holding one packet's payload,
// reserved headers-prefix space included. Invariant:
// 0 <= CurrOffset <= MaxOffset == len(data)-headerSpace.
type Buffer struct {
	data        []byte
	headerSpace int
	CurrOffset  int
	MaxOffset   int
	PacketStart uint32
}

// NewBuffer allocates a Buffer whose payload region can hold maxOffset bytes
// with up to headerSpace bytes reserved in front of it for header synthesis.
func NewBuffer(headerSpace, maxOffset int) *Buffer {
	return &Buffer{
		data:        make([]byte, headerSpace+maxOffset),
		headerSpace: headerSpace,
		MaxOffset:   maxOffset,
	}
}

// WriteByte stores b at the current offset and advances it. It reports
// whether the packet is now full (CurrOffset has reached MaxOffset), in
// which case the caller must flush the packet before writing again.
func (b *Buffer) WriteByte(v byte) (full bool) {
	b.data[b.headerSpace+b.CurrOffset] = v
	b.CurrOffset++
	return b.CurrOffset >= b.MaxOffset
}

// Unwrite retracts nbytes previously written bytes, used when a subsequent
// offset token proves they were actually part of trailing text that got
// mistakenly absorbed as hex bytes.
func (b *Buffer) Unwrite(nbytes int) {
	b.CurrOffset -= nbytes
	if b.CurrOffset < 0 {
		b.CurrOffset = 0
	}
}

// Payload returns the bytes written so far for the current packet.
func (b *Buffer) Payload() []byte {
	return b.data[b.headerSpace : b.headerSpace+b.CurrOffset]
}

// PayloadDest returns the writable remainder of the current packet's
// payload region, for use by a streaming decoder that fills it directly.
func (b *Buffer) PayloadDest() []byte {
	return b.data[b.headerSpace+b.CurrOffset : b.headerSpace+b.MaxOffset]
}

// Advance moves CurrOffset forward by n bytes that were written directly via
// PayloadDest (e.g. by decode.Decode), reporting whether the packet is full.
func (b *Buffer) Advance(n int) (full bool) {
	b.CurrOffset += n
	return b.CurrOffset >= b.MaxOffset
}

// HeaderRegion returns the n bytes immediately preceding the payload, for
// the header synthesizer to write into after shifting the payload right.
func (b *Buffer) HeaderRegion(n int) []byte {
	start := b.headerSpace - n
	return b.data[start : start+n]
}

// ShiftPayloadRight returns the n bytes of reserved header space directly in
// front of the payload together with the payload itself, as one slice of
// length n+CurrOffset. The payload stays where it is: it already sits
// headerSpace bytes into the backing array, so n must not exceed headerSpace.
func (b *Buffer) ShiftPayloadRight(n int) []byte {
	start := b.headerSpace - n
	copy(b.data[start+n:start+n+b.CurrOffset], b.data[b.headerSpace:b.headerSpace+b.CurrOffset])
	return b.data[start : start+n+b.CurrOffset]
}

// Reset clears the current packet (after it has been emitted) and advances
// PacketStart by the payload length that was just flushed.
func (b *Buffer) Reset() {
	b.PacketStart += uint32(b.CurrOffset)
	b.CurrOffset = 0
}
