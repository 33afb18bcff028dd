// Command pcap2csv converts a pcap capture file produced by text2pcap back
// into a CSV table of per-packet descriptors, for auditing an import run
// without a full packet-analysis tool.
package main

import (
	"encoding/hex"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/gopacket/pcapgo"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/text2pcap/sink"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// Row is one line of the CSV descriptor table pcap2csv emits: enough to
// audit an import run's packet boundaries and sizes without decoding the
// synthesized headers.
type Row struct {
	Index         int    `csv:"index"`
	Timestamp     string `csv:"timestamp"`
	CaptureLength int    `csv:"capture_length"`
	WireLength    int    `csv:"wire_length"`
	FirstBytes    string `csv:"first_bytes_hex"`
}

func readRows(r io.Reader) ([]*Row, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, err
	}
	var rows []*Row
	idx := 0
	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		preview := data
		if len(preview) > 16 {
			preview = preview[:16]
		}
		rows = append(rows, &Row{
			Index:         idx,
			Timestamp:     ci.Timestamp.UTC().Format(time.RFC3339Nano),
			CaptureLength: ci.CaptureLength,
			WireLength:    ci.Length,
			FirstBytes:    hex.EncodeToString(preview),
		})
		idx++
	}
	return rows, nil
}

func toCSV(rows []*Row, w io.Writer) error {
	return gocsv.Marshal(rows, w)
}

// openFile opens a plain pcap file, or a zstd-compressed one if fn ends
// with ".zst", via an external zstd process piping decompressed bytes back.
func openFile(fn string) (io.ReadCloser, error) {
	if strings.HasSuffix(fn, ".zst") {
		return sink.NewZstdReader(fn)
	}
	return os.Open(fn)
}

func main() {
	args := os.Args[1:]

	var source io.ReadCloser
	var err error
	source = os.Stdin
	if len(args) == 1 {
		source, err = openFile(args[0])
		rtx.Must(err, "Could not open file %q", args[0])
	} else if len(args) > 1 {
		log.Fatal("Too many command-line arguments.")
	}
	defer source.Close()

	rows, err := readRows(source)
	rtx.Must(err, "Could not read pcap records")
	rtx.Must(toCSV(rows, os.Stdout), "Could not convert input to CSV")
}
