// cmd/tickserver is a demo WebSocket tick server. It broadcasts simulated
// ticks for running the signal engine without a broker connection.
//
// Tick JSON shape is model.Tick:
//
//	{"instrument":"26009","ts":"...","last_price":48123.5,"last_qty":15,"ohlc":{...}}
//
// A client may send {"action":"subscribe","instruments":["26009"]} to
// receive only those instruments.
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address (default ":9001")
//	TICK_INSTRUMENTS  comma-separated ID[:START_PRICE] entries (default "26009:48000,26000:22500")
//	TICK_INTERVAL_MS  broadcast interval in milliseconds (default 100)
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo tick server...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	spec := envOrDefault("TICK_INSTRUMENTS", "26009:48000,26000:22500")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 100)

	instruments, err := parseInstruments(spec)
	if err != nil {
		log.Fatalf("[tickserver] TICK_INSTRUMENTS: %v", err)
	}
	log.Printf("[tickserver] instruments: %d, interval: %dms", len(instruments), intervalMs)

	h := newHub()
	go runGenerator(h, newSimulator(instruments, 0), intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
