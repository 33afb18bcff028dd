// Command text2pcap converts a hexdump or regex-matched text stream into a
// pcap capture file, synthesizing Ethernet/IPv4/UDP/TCP/SCTP/ExportPDU
// dummy headers in front of each reconstructed packet.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/text2pcap/decode"
	"github.com/m-lab/text2pcap/header"
	"github.com/m-lab/text2pcap/notify"
	"github.com/m-lab/text2pcap/session"
	"github.com/m-lab/text2pcap/sink"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	mode       = flag.String("mode", "hexdump", "Input format: \"hexdump\" or \"regex\"")
	pattern    = flag.String("regex", "", "Regular expression with named groups (data, dir, time, seqno); required when -mode=regex")
	stack      = flag.String("stack", "udp", "Dummy header stack: eth, ip, udp, tcp, sctp, sctp-data, or export-pdu")
	srcPort    = flag.Uint("src-port", 0, "Source port for udp/tcp/sctp stacks")
	dstPort    = flag.Uint("dst-port", 0, "Destination port for udp/tcp/sctp stacks")
	encoding   = flag.String("encoding", "hex", "Encoding of the regex data group: hex, octal, binary, or base64 (hexdump mode always reads hex)")
	offsetBase = flag.String("offset-base", "hex", "Hexdump offset column base: none, hex, octal, or decimal")
	timeFormat = flag.String("timefmt", "", "strftime-style timestamp format (with %f for fractional seconds); empty disables timestamp parsing")
	seqnoBase  = flag.Int("seqno-base", 10, "Base to parse the seqno capture group in, when -mode=regex")
	inbound    = flag.String("inbound", "iI", "Direction indicator characters treated as inbound")
	outbound   = flag.String("outbound", "oO", "Direction indicator characters treated as outbound")

	outputFile = flag.String("w", "", "Output pcap file; empty means standard output, or files named \"capture\" with -zstd or -rotate")
	zstdOut    = flag.Bool("zstd", false, "Pipe output through an external zstd process")
	rotateEach = flag.Duration("rotate", 0, "Rotate the output file on this interval; 0 disables rotation")
	snaplen    = flag.Uint("snaplen", header.MaxStandardSnapLen, "Maximum capture length per packet")

	notifySocket = flag.String("notify-socket", "", "Unix domain socket to broadcast import progress on; empty disables notification")
	promAddr     = flag.String("prom", ":9090", "Prometheus metrics export address and port")
)

func encodingByName(name string) decode.Encoding {
	switch name {
	case "octal":
		return decode.Octal
	case "binary":
		return decode.Binary
	case "base64":
		return decode.Base64
	default:
		return decode.Hex
	}
}

func offsetBaseByName(name string) session.OffsetBase {
	switch name {
	case "none":
		return session.OffsetNone
	case "octal":
		return session.OffsetOctal
	case "decimal":
		return session.OffsetDecimal
	default:
		return session.OffsetHex
	}
}

func stackByName(name string) header.Stack {
	switch name {
	case "eth":
		return header.StackEthernet
	case "ip":
		return header.StackIPv4
	case "udp":
		return header.StackUDP
	case "tcp":
		return header.StackTCP
	case "sctp":
		return header.StackSCTP
	case "sctp-data":
		return header.StackSCTPData
	case "export-pdu":
		return header.StackExportPDU
	default:
		return header.StackUDP
	}
}

func modeByName(name string) session.Mode {
	if name == "regex" {
		return session.ModeRegex
	}
	return session.ModeHexdump
}

func buildSink() (header.Sink, func() error, error) {
	closeFunc := func() error { return nil }
	if *zstdOut {
		zs, err := sink.NewZstdSink(outputFilename(), uint32(*snaplen), 1)
		if err != nil {
			return nil, closeFunc, err
		}
		return zs, zs.Close, nil
	}
	if *rotateEach > 0 {
		rs, err := sink.NewRotatingSink(outputFilename(), *rotateEach, uint32(*snaplen), 1, time.Now())
		if err != nil {
			return nil, closeFunc, err
		}
		return rs, rs.Close, nil
	}

	var w io.Writer = os.Stdout
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			return nil, closeFunc, err
		}
		w = f
		closeFunc = f.Close
	}
	ps, err := sink.NewPcapSink(pcapgo.NewWriter(w), uint32(*snaplen), 1)
	if err != nil {
		return nil, closeFunc, err
	}
	return ps, closeFunc, nil
}

func outputFilename() string {
	if *outputFile != "" {
		return *outputFile
	}
	return "capture"
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	if *mode == "regex" && *pattern == "" {
		log.Fatal("-regex is required when -mode=regex")
	}

	promSrv := prometheusx.MustStartPrometheus(*promAddr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer promSrv.Shutdown(ctx)

	var notifySrv *notify.Server
	if *notifySocket != "" {
		notifySrv = notify.New(*notifySocket)
		rtx.Must(notifySrv.Listen(), "Could not listen on %q", *notifySocket)
		go notifySrv.Serve(ctx)
	}

	s, closeSink, err := buildSink()
	rtx.Must(err, "Could not construct output sink")
	defer closeSink()

	hcfg := header.DefaultConfig()
	hcfg.Stack = stackByName(*stack)
	hcfg.SrcPort = uint16(*srcPort)
	hcfg.DstPort = uint16(*dstPort)
	hcfg.MaxFrameLength = int(*snaplen)

	sess, err := session.New(session.Config{
		Mode:               modeByName(*mode),
		Header:             hcfg,
		Decoder:            encodingByName(*encoding),
		OffsetBase:         offsetBaseByName(*offsetBase),
		TimeFormat:         *timeFormat,
		SeqnoBase:          *seqnoBase,
		InboundIndicators:  *inbound,
		OutboundIndicators: *outbound,
		Pattern:            *pattern,
		Sink:               s,
		Notify:             notifySrv,
	})
	rtx.Must(err, "Could not construct import session")

	result, err := sess.Run(os.Stdin)
	rtx.Must(err, "Import run failed")
	log.Printf("wrote %d packets (%d errors), run id %s", result.PacketsEmitted, result.ErrorsSeen, sess.RunID())
}
