// esp-matter-bridge runs the bridge example: an aggregator exposing
// bridged on/off lights that are added and removed from the console.
//
// Usage:
//
//	esp-matter-bridge [--storage bridge.cbor] [--console-addr 127.0.0.1:5541] [-i]
//
// Then, in the console:
//
//	bridge add kitchen
//	bridge list
//	bridge remove kitchen
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/espressif/esp-matter-sub221/examples/bridge"
	"github.com/espressif/esp-matter-sub221/examples/common"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return common.Execute(ctx, bridge.Name, bridge.DefaultOptions(), os.Args[1:], bridge.Build)
}
