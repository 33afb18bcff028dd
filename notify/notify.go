// Package notify broadcasts an import run's progress to any number of
// listeners connected over a Unix domain socket, in JSONL form, so an
// operator (or a test harness) can watch a long-running import without
// tailing its log output.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

//go:generate stringer -type=Phase

// Phase identifies what stage of an import run a ProgressEvent describes.
type Phase int

const (
	// Started is sent once, when a Server begins watching a run.
	Started = Phase(iota)
	// PacketEmitted describes a packet successfully handed to a sink.
	// package session does not send events of this phase.
	PacketEmitted
	// RecordError describes a record that could not be written while the
	// run continued. package session does not send events of this phase.
	RecordError
	// Finished is sent once, when the run completes.
	Finished
)

// ProgressEvent is the data broadcast to every connected client. RunID and
// Timestamp are always set; the rest are populated according to Phase.
type ProgressEvent struct {
	Phase      Phase
	Timestamp  time.Time
	RunID      string
	PacketsSoFar int `json:",omitempty"`
	BytesSoFar   int `json:",omitempty"`
	Err          string `json:",omitempty"`
}

// Server serves ProgressEvents to every client connected to its Unix domain
// socket, the way eventsocket.Server serves flow-open/flow-close events.
type Server struct {
	eventC       chan *ProgressEvent
	filename     string
	clients      map[net.Conn]struct{}
	unixListener net.Listener
	mutex        sync.Mutex
	servingWG    sync.WaitGroup
}

// New makes a new Server that will serve clients on filename once Listen and
// Serve have been called.
func New(filename string) *Server {
	return &Server{
		filename: filename,
		eventC:   make(chan *ProgressEvent, 100),
		clients:  make(map[net.Conn]struct{}),
	}
}

func (s *Server) addClient(c net.Conn) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c net.Conn) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
}

func (s *Server) sendToAllListeners(data string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for c := range s.clients {
		if _, err := fmt.Fprintln(c, data); err != nil {
			log.Println("notify: write to client", c, "failed:", err, "- removing it")
			go s.removeClient(c)
			go c.Close()
		}
	}
}

func (s *Server) notifyClients(ctx context.Context) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	for ctx.Err() == nil {
		event, ok := <-s.eventC
		if !ok {
			return
		}
		b, err := json.Marshal(event)
		if err != nil {
			log.Printf("notify: could not marshal event %+v: %v", event, err)
			continue
		}
		s.sendToAllListeners(string(b))
	}
}

// Listen opens the Unix domain socket. It must be called once, before
// Serve, and returns without blocking.
func (s *Server) Listen() error {
	s.servingWG.Add(1)
	var err error
	s.unixListener, err = net.Listen("unix", s.filename)
	return err
}

// Serve accepts and registers clients until ctx is canceled. It is meant to
// be called in a goroutine after Listen.
func (s *Server) Serve(ctx context.Context) error {
	defer s.servingWG.Done()
	derivedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.notifyClients(derivedCtx)

	s.servingWG.Add(1)
	go func() {
		<-derivedCtx.Done()
		s.unixListener.Close()
		close(s.eventC)
		s.servingWG.Done()
	}()

	var err error
	for derivedCtx.Err() == nil {
		var conn net.Conn
		conn, err = s.unixListener.Accept()
		if err != nil {
			break
		}
		s.addClient(conn)
	}
	return err
}

// Report broadcasts one ProgressEvent to every currently connected client.
// If no Server was configured for a run, Report is simply never called; it
// never blocks the caller on network I/O.
func (s *Server) Report(ev ProgressEvent) {
	select {
	case s.eventC <- &ev:
	default:
		log.Println("notify: event channel full, dropping progress event")
	}
}
