package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/visiona/stemd/internal/config"
	"github.com/visiona/stemd/internal/core"
	"github.com/visiona/stemd/internal/emitter"
	"github.com/visiona/stemd/internal/stream"
)

const defaultConfigPath = "stemd.yaml"

// version is stamped at build time
var version = "dev"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	probe := flag.Bool("probe", false, "Probe the stream geometry and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting stemd",
		"version", version,
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"stream_id", cfg.Stream.ID,
		"files", len(cfg.Stream.Files),
		"sink", cfg.Sink.Type,
	)

	if *probe {
		runProbe(cfg)
		return
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Files win over a synthetic stream when both are configured
	var source core.BlockSource
	if len(cfg.Stream.Files) > 0 {
		r, err := stream.Open(cfg.Stream.Files, cfg.Stream.Compression)
		if err != nil {
			slog.Error("failed to open stream", "error", err)
			os.Exit(1)
		}
		source = r
	} else {
		source = stream.NewSynthetic(stream.SyntheticConfig{
			Blocks:  cfg.Stream.Synthetic.Blocks,
			Images:  cfg.Stream.Synthetic.Images,
			Rows:    cfg.Stream.Synthetic.Rows,
			Columns: cfg.Stream.Synthetic.Columns,
			Seed:    cfg.Stream.Synthetic.Seed,
		})
		slog.Info("using synthetic stream (no input files configured)",
			"blocks", cfg.Stream.Synthetic.Blocks,
			"grid", fmt.Sprintf("%dx%d", cfg.Stream.Synthetic.Columns, cfg.Stream.Synthetic.Rows),
		)
	}
	defer source.Close()

	sink, err := emitter.New(cfg)
	if err != nil {
		slog.Error("failed to build sink", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	proc := core.New(cfg, source, sink)

	// Run the pipeline in a goroutine so a signal can cancel it
	errChan := make(chan error, 1)
	go func() {
		_, err := proc.Run(ctx)
		errChan <- err
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
		<-errChan // wait for the pipeline to unwind
		slog.Warn("run interrupted before completion")
		os.Exit(1)
	case err := <-errChan:
		if err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
	}

	st := proc.Stats()
	if r, ok := source.(*stream.Reader); ok {
		slog.Info("stemd finished",
			"blocks", st.Blocks,
			"images", st.Images,
			"bytes_read", r.Stats().Bytes,
		)
	} else {
		slog.Info("stemd finished",
			"blocks", st.Blocks,
			"images", st.Images,
		)
	}
}

// runProbe reads the first header of the configured stream and reports
// its geometry, warning when the configured output grid disagrees.
func runProbe(cfg *config.Config) {
	if len(cfg.Stream.Files) == 0 {
		slog.Error("probe requires stream.files")
		os.Exit(1)
	}

	info, err := stream.Probe(cfg.Stream.Files, cfg.Stream.Compression)
	if err != nil {
		slog.Error("probe failed", "error", err)
		os.Exit(1)
	}

	slog.Info("stream probed",
		"grid", fmt.Sprintf("%dx%d", info.Columns, info.Rows),
		"images_per_block", info.ImagesInBlock,
		"version", info.Version,
		"first_image", info.FirstNumber,
		"end_of_stream", info.EndOfStream,
	)

	if !info.EndOfStream && (cfg.Output.Width != info.Columns || cfg.Output.Height != info.Rows) {
		slog.Warn("output dimensions do not match stream grid",
			"output", fmt.Sprintf("%dx%d", cfg.Output.Width, cfg.Output.Height),
			"stream", fmt.Sprintf("%dx%d", info.Columns, info.Rows),
		)
	}
}
