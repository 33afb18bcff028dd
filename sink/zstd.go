package sink

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"

	"github.com/google/gopacket/pcapgo"
	"github.com/m-lab/go/rtx"
)

// zstdCommand and osCreate are overridable so tests can stub the external
// process and filesystem without actually shelling out.
var (
	zstdCommand = "zstd"
	osCreate    = os.Create
)

// waitingWriteCloser blocks Close until the zstd subprocess it feeds has
// finished flushing to disk, mirroring zstd.NewWriter's WaitGroup dance.
type waitingWriteCloser struct {
	*os.File
	wg *sync.WaitGroup
}

func (w waitingWriteCloser) Close() error {
	err := w.File.Close()
	w.wg.Wait()
	return err
}

// ZstdSink is a PcapSink whose output is piped through an external zstd
// process before it reaches disk.
type ZstdSink struct {
	*PcapSink
	pipe *waitingWriteCloser
}

// NewZstdSink creates filename (no suffix is added) and writes a pcap file
// header and records to it through an external zstd process.
func NewZstdSink(filename string, snaplen uint32, linkType int) (*ZstdSink, error) {
	var wg sync.WaitGroup
	wg.Add(1)

	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("sink: creating pipe for %q: %w", filename, err)
	}
	f, err := osCreate(filename)
	if err != nil {
		pipeR.Close()
		pipeW.Close()
		return nil, fmt.Errorf("sink: creating %q: %w", filename, err)
	}

	cmd := exec.Command(zstdCommand)
	cmd.Stdin = pipeR
	cmd.Stdout = f

	go func() {
		rtx.Must(cmd.Run(), "zstd compression failed for %q", filename)
		pipeR.Close()
		f.Close()
		wg.Done()
	}()

	w := pcapgo.NewWriter(pipeW)
	inner, err := NewPcapSink(w, snaplen, linkType)
	if err != nil {
		pipeW.Close()
		return nil, err
	}
	return &ZstdSink{PcapSink: inner, pipe: &waitingWriteCloser{pipeW, &wg}}, nil
}

// Close closes the pipe to the zstd process and waits for it to finish
// compressing and flushing the remainder to disk.
func (s *ZstdSink) Close() error {
	return s.pipe.Close()
}

// NewZstdReader opens filename through an external zstd decompression
// process, returning a pipe that yields the decompressed bytes. Errors
// opening filename are reported directly; errors from the zstd process
// itself surface only as an early EOF on the returned pipe, since they
// happen in a separate goroutine after this function has already returned.
func NewZstdReader(filename string) (io.ReadCloser, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("sink: opening %q: %w", filename, err)
	}
	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: creating pipe for %q: %w", filename, err)
	}

	cmd := exec.Command(zstdCommand, "-d", "-c")
	cmd.Stdin = f
	cmd.Stdout = pipeW

	go func() {
		if err := cmd.Run(); err != nil {
			log.Println("sink: zstd decompression failed for", filename, ":", err)
		}
		f.Close()
		pipeW.Close()
	}()

	return pipeR, nil
}
