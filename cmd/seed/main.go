// Package main provides a CLI for seeding the local development database
// with demo conference data.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/openconf/openconf/internal/platform/config"
	"github.com/openconf/openconf/internal/tools/seed"
)

func main() {
	var cfg seed.Config

	flag.StringVar(&cfg.DBPath, "db-path", defaultDBPath(), "path to sqlite database (default: OPENCONF_DB_PATH or data/conference.db)")
	flag.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seed.Run(ctx, os.Stdout, cfg); err != nil {
		config.Exitf("seed: %v", err)
	}
}

func defaultDBPath() string {
	if path := os.Getenv("OPENCONF_DB_PATH"); path != "" {
		return path
	}
	return filepath.Join("data", "conference.db")
}
