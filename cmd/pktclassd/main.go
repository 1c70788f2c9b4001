// pktclassd is the packet classification daemon.
//
// It loads a rule set from a YAML configuration file, serves a REST API
// for rule management and classification, and exposes Prometheus
// metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/psaab/pktclass/pkg/api"
	"github.com/psaab/pktclass/pkg/classifier"
	"github.com/psaab/pktclass/pkg/config"
	"github.com/psaab/pktclass/pkg/logging"
)

func main() {
	configFile := flag.String("config", "/etc/pktclass/pktclass.yaml", "configuration file path")
	apiAddr := flag.String("api-addr", "127.0.0.1:8080", "HTTP API listen address")
	debug := flag.Bool("debug", false, "enable debug logging")
	trace := flag.Bool("trace", false, "enable per-packet trace logging")
	flag.Parse()

	var cfg *config.Config
	if _, err := os.Stat(*configFile); err == nil {
		c, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pktclassd: %v\n", err)
			os.Exit(1)
		}
		cfg = c
	} else {
		cfg = &config.Config{}
	}

	level := logging.ParseLevel(cfg.Log.Level)
	if *debug {
		level = slog.LevelDebug
	}
	if *trace {
		level = logging.LevelTrace
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:   level,
		Console: true,
		File: logging.FileOptions{
			Path:     cfg.Log.File,
			MaxSize:  cfg.Log.MaxSize,
			MaxFiles: cfg.Log.MaxFiles,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pktclassd: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	engine := classifier.New(classifier.Options{
		EnableBloomPreFilter:      cfg.Engine.EnableBloomPreFilter,
		BloomExpectedItems:        cfg.Engine.BloomExpectedItems,
		BloomFPRate:               cfg.Engine.BloomFPRate,
		MemoryPoolInitialCapacity: cfg.Engine.PoolInitialCapacity,
		NUMANode:                  cfg.Engine.NUMANode,
		RejectDuplicates:          cfg.Engine.RejectDuplicates,
		Logger:                    logger,
	})

	initial, err := cfg.BuildRules()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pktclassd: %v\n", err)
		os.Exit(1)
	}
	for _, r := range initial {
		if err := engine.Add(r); err != nil {
			slog.Warn("skipping configured rule", "rule_id", r.ID, "err", err)
		}
	}
	slog.Info("rule set loaded", "rules", engine.Len(), "config", *configFile)

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	srv := api.NewServer(api.Config{Addr: *apiAddr, Engine: engine})
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pktclassd: %v\n", err)
		os.Exit(1)
	}
	slog.Info("pktclassd stopped")
}
