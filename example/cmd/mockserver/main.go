// Standalone mock target for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/burstgate run -c example/job.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	failEvery := flag.Int("fail-every", 8, "answer roughly one request in N with 503 (0 never fails)")
	flag.Parse()

	fmt.Printf("Mock target listening on %s\n", *addr)
	fmt.Println("GET /health answers after 20-200ms")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(20+rand.Intn(180)) * time.Millisecond)

		if *failEvery > 0 && rand.Intn(*failEvery) == 0 {
			slog.Info("failing request", "remote", r.RemoteAddr)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := http.ListenAndServe(*addr, nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
