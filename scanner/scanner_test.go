package scanner_test

import (
	"strings"
	"testing"

	"github.com/m-lab/text2pcap/scanner"
)

func collect(t *testing.T, input string) []scanner.Token {
	t.Helper()
	return collectBase(t, input, scanner.OffsetHex)
}

func collectBase(t *testing.T, input string, base scanner.OffsetBase) []scanner.Token {
	t.Helper()
	s := scanner.New(strings.NewReader(input), base)
	var toks []scanner.Token
	for {
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		toks = append(toks, tok)
		if tok.Kind == scanner.EOF {
			return toks
		}
		if len(toks) > 1000 {
			t.Fatal("token stream did not terminate")
		}
	}
}

func TestScannerOffsetAndBytes(t *testing.T) {
	toks := collect(t, "0000  de ad be ef\n")
	if toks[0].Kind != scanner.Offset || toks[0].Offset != 0 {
		t.Fatalf("first token = %+v, want Offset 0", toks[0])
	}
	var bytes []byte
	for _, tok := range toks {
		if tok.Kind == scanner.Byte {
			bytes = append(bytes, tok.Byte)
		}
	}
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	if len(bytes) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(bytes), len(want))
	}
	for i := range want {
		if bytes[i] != want[i] {
			t.Errorf("byte %d = %#02x, want %#02x", i, bytes[i], want[i])
		}
	}
}

func TestScannerColonOffset(t *testing.T) {
	toks := collect(t, "0010: 01 02\n")
	if toks[0].Kind != scanner.Offset || toks[0].Offset != 0x10 {
		t.Fatalf("first token = %+v, want Offset 0x10", toks[0])
	}
}

func TestScannerDirective(t *testing.T) {
	toks := collect(t, "#TEXT2PCAP seqno\n")
	if toks[0].Kind != scanner.Directive {
		t.Fatalf("first token = %+v, want Directive", toks[0])
	}
	if toks[0].Text != "#TEXT2PCAP seqno" {
		t.Errorf("directive text = %q", toks[0].Text)
	}
}

func TestScannerEOFIsSticky(t *testing.T) {
	s := scanner.New(strings.NewReader(""), scanner.OffsetHex)
	first, _ := s.Next()
	second, _ := s.Next()
	if first.Kind != scanner.EOF || second.Kind != scanner.EOF {
		t.Fatalf("expected EOF twice, got %+v then %+v", first, second)
	}
}

func TestScannerTextColumn(t *testing.T) {
	toks := collect(t, "0000  61 62  ab\n")
	var texts []string
	for _, tok := range toks {
		if tok.Kind == scanner.Text {
			texts = append(texts, tok.Text)
		}
	}
	if len(texts) != 1 || texts[0] != "ab" {
		t.Errorf("text tokens = %v, want [ab]", texts)
	}
}

func TestScannerOctalOffset(t *testing.T) {
	toks := collectBase(t, "0017  01 02\n", scanner.OffsetOctal)
	if toks[0].Kind != scanner.Offset || toks[0].Offset != 15 {
		t.Fatalf("first token = %+v, want Offset 15 (017 octal)", toks[0])
	}
}

func TestScannerDecimalOffset(t *testing.T) {
	toks := collectBase(t, "0016  01 02\n", scanner.OffsetDecimal)
	if toks[0].Kind != scanner.Offset || toks[0].Offset != 16 {
		t.Fatalf("first token = %+v, want Offset 16 (decimal)", toks[0])
	}
}

func TestScannerNoOffsetNeverEmitsOffsetTokens(t *testing.T) {
	toks := collectBase(t, "0000  de ad be ef\n", scanner.OffsetNone)
	for _, tok := range toks {
		if tok.Kind == scanner.Offset {
			t.Fatalf("got an Offset token with OffsetNone configured: %+v", tok)
		}
	}
	var bytes []byte
	for _, tok := range toks {
		if tok.Kind == scanner.Byte {
			bytes = append(bytes, tok.Byte)
		}
	}
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	if len(bytes) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(bytes), len(want))
	}
}
