// example-notify-client is a minimal reference implementation of a
// text2pcap notify client: it connects to the Unix domain socket given by
// -socket and prints each broadcast ProgressEvent as it arrives.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/text2pcap/notify"
)

var socketFile = flag.String("socket", "", "Unix domain socket to connect to (the -notify-socket path given to text2pcap)")

func printEvents(conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var ev notify.ProgressEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			log.Println("could not unmarshal event:", err)
			continue
		}
		fmt.Printf("%s run=%s phase=%d packets=%d bytes=%d err=%q\n",
			ev.Timestamp.Format(time.RFC3339Nano), ev.RunID, ev.Phase, ev.PacketsSoFar, ev.BytesSoFar, ev.Err)
	}
	return scanner.Err()
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	if *socketFile == "" {
		log.Fatal("-socket is required")
	}

	conn, err := net.Dial("unix", *socketFile)
	rtx.Must(err, "Could not connect to %q", *socketFile)
	defer conn.Close()

	rtx.Must(printEvents(conn), "Connection to %q failed", *socketFile)
}
