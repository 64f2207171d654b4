package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joshp123/catgenie/internal/archive"
	"github.com/joshp123/catgenie/plugins/catgenie"
)

// archiveCmd prints the last snapshot the daemon archived for a device.
func archiveCmd(args []string) {
	if len(args) < 1 {
		fatal("archive", fmt.Errorf("missing device id"))
	}
	cfg := loadConfig()
	if cfg == nil || cfg.Archive == nil {
		fatal("archive", fmt.Errorf("no archive section in %s", configPath()))
	}

	store, err := archive.NewS3Store(cfg.Archive)
	if err != nil {
		fatal("archive", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var snapshot catgenie.Snapshot
	if err := archive.New(store, cfg.Archive.Prefix).LoadLatest(ctx, args[0], &snapshot); err != nil {
		fatal("load snapshot", err)
	}
	newOutput(true).printJSON(snapshot)
}
