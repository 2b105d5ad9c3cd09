// esp-matter-light runs the extended color light example on the host or
// on a board with GPIO LEDs.
//
// Usage:
//
//	esp-matter-light [--config node.toml] [--board rpi-rgb] [--storage light.cbor] [-i]
//
// An uncommissioned light prints its QR code and manual pairing code and
// opens the commissioning window. Run with --help for all flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/espressif/esp-matter-sub221/examples/common"
	"github.com/espressif/esp-matter-sub221/examples/light"
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
	return common.Execute(ctx, light.Name, light.DefaultOptions(), os.Args[1:], light.Build)
}
