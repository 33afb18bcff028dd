package packet_test

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/m-lab/text2pcap/packet"
)

func TestWriteByteAndPayload(t *testing.T) {
	b := packet.NewBuffer(20, 10)
	for _, v := range []byte{1, 2, 3} {
		if full := b.WriteByte(v); full {
			t.Fatal("unexpectedly full")
		}
	}
	if diff := deep.Equal(b.Payload(), []byte{1, 2, 3}); diff != nil {
		t.Errorf("payload differs: %v", diff)
	}
}

func TestWriteByteFillsPacket(t *testing.T) {
	b := packet.NewBuffer(20, 2)
	if full := b.WriteByte(1); full {
		t.Fatal("should not be full yet")
	}
	if full := b.WriteByte(2); !full {
		t.Fatal("should report full at MaxOffset")
	}
}

func TestUnwrite(t *testing.T) {
	b := packet.NewBuffer(20, 10)
	b.WriteByte(1)
	b.WriteByte(2)
	b.WriteByte(3)
	b.Unwrite(2)
	if diff := deep.Equal(b.Payload(), []byte{1}); diff != nil {
		t.Errorf("payload after unwrite: %v", diff)
	}
}

func TestUnwriteClampsAtZero(t *testing.T) {
	b := packet.NewBuffer(20, 10)
	b.WriteByte(1)
	b.Unwrite(5)
	if b.CurrOffset != 0 {
		t.Errorf("CurrOffset = %d, want 0", b.CurrOffset)
	}
}

func TestResetAdvancesPacketStart(t *testing.T) {
	b := packet.NewBuffer(20, 10)
	b.WriteByte(1)
	b.WriteByte(2)
	b.Reset()
	if b.PacketStart != 2 || b.CurrOffset != 0 {
		t.Errorf("PacketStart=%d CurrOffset=%d, want 2,0", b.PacketStart, b.CurrOffset)
	}
}

func TestShiftPayloadRightMakesRoomForHeader(t *testing.T) {
	b := packet.NewBuffer(20, 10)
	b.WriteByte(0xaa)
	b.WriteByte(0xbb)
	shifted := b.ShiftPayloadRight(4)
	if len(shifted) != 6 {
		t.Fatalf("shifted len = %d, want 6", len(shifted))
	}
	if diff := deep.Equal(shifted[4:], []byte{0xaa, 0xbb}); diff != nil {
		t.Errorf("payload after shift: %v", diff)
	}
}

func TestPreambleAppendAndClear(t *testing.T) {
	var p packet.Preamble
	p.Append("hello")
	p.Append("world")
	if p.String() != "hello world" {
		t.Errorf("preamble = %q, want %q", p.String(), "hello world")
	}
	p.Clear()
	if p.String() != "" {
		t.Errorf("preamble after clear = %q, want empty", p.String())
	}
}

func TestPreambleOverflowDropped(t *testing.T) {
	var p packet.Preamble
	big := make([]byte, packet.PreambleMaxLen)
	for i := range big {
		big[i] = 'x'
	}
	p.Append(string(big))
	if len(p.String()) != packet.PreambleMaxLen {
		t.Fatalf("preamble len = %d, want %d", len(p.String()), packet.PreambleMaxLen)
	}
	p.Append("more")
	if len(p.String()) != packet.PreambleMaxLen {
		t.Errorf("overflow token was not dropped: len = %d", len(p.String()))
	}
}
