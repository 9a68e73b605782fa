// Package main starts the robopoint HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdna/robopoint/config"
)

func main() {
	path := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to an ini config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "robopoint: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "robopoint: %v\n", err)
		os.Exit(1)
	}
}
