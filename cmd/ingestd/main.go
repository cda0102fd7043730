// Command ingestd runs the adaptive ingest pipeline as a standalone
// daemon: parse flags, validate configuration, open both backends and
// the WAL, replay any unflushed records, then read newline-delimited
// JSON records from stdin until EOF or an interrupt. Fetching from
// Config.SourceURL is explicitly out of scope for the core (spec section
// 1's non-goals single out "the upstream HTTP source of records" and
// "the CLI surface"); stdin is this binary's own minimal stand-in.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/rajmodi8905/adaptive-sink/internal/document"
	"github.com/rajmodi8905/adaptive-sink/internal/orchestrator"
	"github.com/rajmodi8905/adaptive-sink/internal/relational"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("ingestd exiting")
	}
}

func run() error {
	var cfg orchestrator.Config
	flags := pflag.NewFlagSet("ingestd", pflag.ExitOnError)
	cfg.Bind(flags)
	logLevel := flags.String("log.level", "info", "logrus level: trace, debug, info, warn, error")
	walPath := flags.String("wal.path", "", "path to the write-ahead log file (default metadata_dir/pending.jsonl)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&log.JSONFormatter{})

	if err := cfg.Preflight(); err != nil {
		return err
	}
	if *walPath == "" {
		*walPath = cfg.MetadataDir + "/pending.jsonl"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	relClient, err := relational.Open(ctx, cfg.Relational)
	if err != nil {
		return err
	}
	docClient, err := document.Open(ctx, cfg.Document)
	if err != nil {
		return err
	}

	pipeline := orchestrator.New(cfg, relClient, docClient)
	if err := pipeline.Open(*walPath); err != nil {
		return err
	}
	if err := pipeline.Recover(ctx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- readStdin(ctx, pipeline) }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-done:
		if err != nil {
			log.WithError(err).Warn("stdin reader stopped")
		}
	}

	return pipeline.Close(context.Background())
}

// readStdin decodes one JSON object per line and ingests it, batching
// reads so a burst of lines triggers at most one buffer-size check per
// batch rather than per line. A line that does not decode as a JSON
// object is logged and skipped, so it never reaches the WAL append (spec
// section 7). It stops on EOF, an ingest error, or ctx cancellation.
func readStdin(ctx context.Context, pipeline *orchestrator.Pipeline) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	const batchSize = 100
	batch := make([]map[string]any, 0, batchSize)

	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := pipeline.IngestBatch(ctx, batch)
		batch = batch[:0]
		return err
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return flushBatch()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			log.WithError(err).Warn("rejecting non-object top-level input line")
			continue
		}
		batch = append(batch, raw)
		if len(batch) >= batchSize {
			if err := flushBatch(); err != nil {
				return err
			}
		}
	}
	if err := flushBatch(); err != nil {
		return err
	}
	return scanner.Err()
}
