package decode_test

import (
	"encoding/hex"
	"testing"

	"github.com/go-test/deep"
	"github.com/m-lab/text2pcap/decode"
)

func TestDecodeHexRoundTrip(t *testing.T) {
	src := []byte("ab:cd ef\n01")
	dest := make([]byte, 16)
	consumed, produced, err := decode.Decode(src, dest, decode.Hex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(src) {
		t.Errorf("consumed = %d, want %d", consumed, len(src))
	}
	want := []byte{0xab, 0xcd, 0xef, 0x01}
	if diff := deep.Equal(dest[:produced], want); diff != nil {
		t.Errorf("decoded bytes differ: %v", diff)
	}
}

func TestDecodeInvalidCharFlushesPartialUnit(t *testing.T) {
	// "ab" decodes to a full byte, "c" is a half unit, "z" is invalid.
	src := []byte("abcz")
	dest := make([]byte, 16)
	consumed, produced, err := decode.Decode(src, dest, decode.Hex)
	if err != decode.ErrInvalidChar {
		t.Fatalf("err = %v, want ErrInvalidChar", err)
	}
	if consumed != 3 {
		t.Errorf("consumed = %d, want 3 (stops at the invalid char)", consumed)
	}
	if produced != 1 || dest[0] != 0xab {
		t.Errorf("produced bytes = %v, want [0xab]", dest[:produced])
	}
}

func TestDecodeDestLimitIsResumable(t *testing.T) {
	src := []byte("aabbccdd")
	dest := make([]byte, 2)
	consumed, produced, err := decode.Decode(src, dest, decode.Hex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != 4 || produced != 2 {
		t.Fatalf("got (%d, %d), want (4, 2)", consumed, produced)
	}
	consumed2, produced2, err := decode.Decode(src[consumed:], dest, decode.Hex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed2 != 4 || produced2 != 2 {
		t.Fatalf("got (%d, %d), want (4, 2)", consumed2, produced2)
	}
}

func TestDecodeOctalAndBinaryAndBase64(t *testing.T) {
	cases := []struct {
		name string
		enc  decode.Encoding
		src  string
		want []byte
	}{
		{"octal", decode.Octal, "00000000", []byte{0, 0, 0}},
		{"binary", decode.Binary, "11111111", []byte{0xff}},
		{"base64", decode.Base64, "//8=", []byte{0xff, 0xff}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dest := make([]byte, 8)
			_, produced, err := decode.Decode([]byte(c.src), dest, c.enc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := deep.Equal(dest[:produced], c.want); diff != nil {
				t.Errorf("decoded bytes differ: %v", diff)
			}
		})
	}
}

func TestDecodeRoundTripsArbitraryBytes(t *testing.T) {
	original := []byte{0x00, 0x01, 0x02, 0xff, 0xab, 0xcd, 0x7f}
	encoded := hex.EncodeToString(original)
	dest := make([]byte, len(original))
	_, produced, err := decode.Decode([]byte(encoded), dest, decode.Hex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := deep.Equal(dest[:produced], original); diff != nil {
		t.Errorf("round trip differs: %v", diff)
	}
}
