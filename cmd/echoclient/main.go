// Command echoclient drives --clients concurrent Client connections against
// an echoserver, each sending --messages payloads of --size bytes (or
// running for --seconds when --messages is 0), and reports aggregate
// sent/received/failure counts.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swiftcore/netio/client"
	"github.com/swiftcore/netio/reactor"
)

func main() {
	address := flag.String("address", "127.0.0.1", "server address")
	port := flag.Int("port", 1111, "server port")
	threads := flag.Int("threads", runtime.NumCPU(), "reactor worker thread count")
	clients := flag.Int("clients", 1, "number of concurrent client connections")
	messages := flag.Int("messages", 0, "messages to send per client (0 = unbounded, use --seconds)")
	size := flag.Int("size", 32, "bytes per message")
	seconds := flag.Int("seconds", 5, "duration to run when --messages is 0")
	flag.Parse()

	svc := reactor.New(reactor.Config{Threads: *threads}, reactor.Hooks{})
	svc.Start(false)
	defer svc.Stop()

	var sent, received, failures atomic.Int64
	var wg sync.WaitGroup
	deadline := time.Now().Add(time.Duration(*seconds) * time.Second)
	payload := make([]byte, *size)

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(svc, fmt.Sprintf("%s:%d", *address, *port), payload, *messages, deadline, &sent, &received, &failures)
		}()
	}
	wg.Wait()

	fmt.Printf("sent=%d received=%d failures=%d\n", sent.Load(), received.Load(), failures.Load())
	if failures.Load() > 0 {
		os.Exit(1)
	}
}

func runWorker(svc *reactor.Service, addr string, payload []byte, messages int, deadline time.Time, sent, received, failures *atomic.Int64) {
	cl := client.New(svc, client.Config{Address: addr}, client.Hooks{
		OnReceive: func(_ *client.Client, _ []byte) {
			received.Add(1)
		},
		OnErr: func(_ *client.Client, err error) {
			failures.Add(1)
		},
	})

	if err := cl.Connect(); err != nil {
		failures.Add(1)
		return
	}
	defer cl.Disconnect()

	n := 0
	for {
		if messages > 0 && n >= messages {
			return
		}
		if messages == 0 && time.Now().After(deadline) {
			return
		}
		if err := cl.SendAsync(payload); err != nil {
			failures.Add(1)
			return
		}
		sent.Add(1)
		n++
		time.Sleep(time.Millisecond)
	}
}
