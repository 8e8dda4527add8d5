// Command julea-bench is a small illustrative load generator: it writes and
// reads back a fixed-size object against a running julead object server
// repeatedly, reporting throughput. It is not part of the core library —
// a demonstration of wiring the client package together as a standalone
// cmd/ entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/julea/internal/client"
	"github.com/dreamware/julea/internal/pool"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "object server address")
	namespace := flag.String("namespace", "bench", "object namespace")
	name := flag.String("object", "bench-object", "object name")
	size := flag.Int("size", 1<<20, "bytes written per iteration")
	iterations := flag.Int("iterations", 10, "number of write+read round trips")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pool.New(pool.Config{
		ObjectServers:  []string{*addr},
		MaxConnections: 4,
	}, &client.TCPFactory{DialTimeout: 5 * time.Second})
	if err != nil {
		log.Fatalf("julea-bench: %v", err)
	}
	defer p.Shutdown()

	obj := client.NewObjectClient(p, nil, nil)
	if err := obj.Create(ctx, 0, *namespace, *name); err != nil {
		log.Fatalf("julea-bench: create: %v", err)
	}

	buf := make([]byte, *size)
	for i := range buf {
		buf[i] = byte(i)
	}
	readBuf := make([]byte, *size)

	var totalBytes uint64
	start := time.Now()
	for i := 0; i < *iterations; i++ {
		n, err := obj.Write(ctx, 0, *namespace, *name, buf, 0)
		if err != nil {
			log.Fatalf("julea-bench: write %d: %v", i, err)
		}
		totalBytes += n

		n, err = obj.Read(ctx, 0, *namespace, *name, readBuf, uint64(*size), 0)
		if err != nil {
			log.Fatalf("julea-bench: read %d: %v", i, err)
		}
		totalBytes += n
	}
	elapsed := time.Since(start)

	fmt.Printf("%d iterations, %d bytes total, %s elapsed, %.2f MB/s\n",
		*iterations, totalBytes, elapsed, float64(totalBytes)/1024/1024/elapsed.Seconds())
}
