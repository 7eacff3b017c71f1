package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grnrelay/grnrelay/pkg/config"
	"github.com/grnrelay/grnrelay/pkg/logger"
	"github.com/grnrelay/grnrelay/pkg/output"
	"github.com/grnrelay/grnrelay/pkg/record"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "grnrelay",
		Short: "grnrelay - relay structured log records into a Groonga engine",
		Long: `grnrelay relays a stream of structured log-like records into a Groonga
engine, either over HTTP or by driving a locally spawned engine process
through dedicated pipes. Records tagged with the reserved command prefix
are executed as explicit engine commands in arrival order.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("grnrelay %s\n", version)
		},
	})

	root.AddCommand(newRelayCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRelayCommand() *cobra.Command {
	var (
		configPath string
		protocol   string
		table      string
		database   string
		host       string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay tab-separated records from stdin into the engine",
		Long: `Reads lines of the form

	tag<TAB>unix-timestamp<TAB>json-object

from standard input, batches them, and relays them into the engine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if protocol != "" {
				cfg.Protocol = protocol
			}
			if table != "" {
				cfg.Table = table
			}
			if database != "" {
				cfg.Subprocess.Database = database
			}
			if host != "" {
				cfg.Connection.Host = host
			}
			if port != 0 {
				cfg.Connection.Port = port
			}

			if err := logger.Init(logger.Config{
				Level:    cfg.Logging.Level,
				Encoding: cfg.Logging.Encoding,
			}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return runRelay(cfg, os.Stdin)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&protocol, "protocol", "", "Client protocol (http or command)")
	cmd.Flags().StringVar(&table, "table", "", "Target table for data records")
	cmd.Flags().StringVar(&database, "database", "", "Engine database path (command protocol)")
	cmd.Flags().StringVar(&host, "host", "", "Engine host (http protocol)")
	cmd.Flags().IntVar(&port, "port", 0, "Engine port (http protocol)")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.Load(path)
}

func runRelay(cfg *config.Config, in *os.File) error {
	out := output.New()
	if err := out.Configure(cfg); err != nil {
		return err
	}
	if err := out.Start(); err != nil {
		return err
	}

	log := logger.With(zap.String("component", "relay"))

	stop := make(chan struct{})
	entries := make(chan record.Entry, cfg.Buffer.BatchSize)
	readErr := make(chan error, 1)
	go readEntries(in, entries, stop, readErr, log)

	ticker := time.NewTicker(cfg.Buffer.FlushInterval)
	defer ticker.Stop()

	batch := make(record.Batch, 0, cfg.Buffer.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		rejected, err := out.Write(batch)
		if rejected > 0 {
			log.Warn("records rejected", zap.Int("count", rejected))
		}
		if err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	var loopErr error
loop:
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				loopErr = flush()
				break loop
			}
			batch = append(batch, entry)
			if len(batch) >= cfg.Buffer.BatchSize {
				if loopErr = flush(); loopErr != nil {
					break loop
				}
			}
		case <-ticker.C:
			if loopErr = flush(); loopErr != nil {
				break loop
			}
		}
	}

	close(stop)
	if loopErr != nil {
		// The reader may be blocked sending on a full channel. Drain it
		// in the background so it can observe the stop signal, and do
		// not wait for input that may never arrive.
		go func() {
			for range entries {
			}
		}()
	} else if err := <-readErr; err != nil {
		loopErr = err
	}

	if err := out.Shutdown(); err != nil && loopErr == nil {
		loopErr = err
	}
	return loopErr
}

// readEntries parses tab-separated input lines into entries. Malformed
// lines are logged and skipped so one bad line cannot end the stream.
// Closing stop releases the reader even when the entries channel is full.
func readEntries(f *os.File, entries chan<- record.Entry, stop <-chan struct{}, result chan<- error, log *zap.Logger) {
	defer close(entries)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		entry, err := parseLine(line)
		if err != nil {
			log.Warn("skipping malformed input line", zap.Error(err))
			continue
		}
		select {
		case entries <- entry:
		case <-stop:
			result <- nil
			return
		}
	}

	result <- scanner.Err()
}

func parseLine(line string) (record.Entry, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return record.Entry{}, fmt.Errorf("expected tag<TAB>timestamp<TAB>json, got %q", line)
	}

	epoch, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return record.Entry{}, fmt.Errorf("bad timestamp %q: %w", parts[1], err)
	}

	r, err := record.UnmarshalRecord([]byte(parts[2]))
	if err != nil {
		return record.Entry{}, err
	}

	return record.Entry{
		Tag:    parts[0],
		Time:   time.Unix(epoch, 0),
		Record: r,
	}, nil
}
