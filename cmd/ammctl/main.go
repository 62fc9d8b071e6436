package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cpamm/internal/service"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ammctl",
		Short:         "Constant-product pool host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("store", "file", "storage backend (file, pebble, postgres)")
	flags.String("data-dir", "./data", "data directory for file and pebble stores")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("journal", "./data/journal.jsonl", "operation journal JSONL path (empty disables)")
	flags.String("metrics-file", "", "write a Prometheus textfile snapshot on exit")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Int("max-retries", 5, "maximum connection retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")

	root.AddCommand(
		newInitCmd(),
		newFundCmd(),
		newProvideCmd(),
		newWithdrawCmd(),
		newSwapCmd(),
		newQuoteCmd(),
		newLockCmd("lock", true),
		newLockCmd("unlock", false),
		newShowCmd(),
		newBalanceCmd(),
		newStatsCmd(),
		newMigrateCmd(),
	)
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type errorOutput struct {
	Error     string `json:"error"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// reportError prints err as JSON, tagged with its registered kind when it
// has one.
func reportError(w io.Writer, err error) {
	out := errorOutput{Error: err.Error()}
	if kind := service.KindOf(err); kind != nil {
		out.Codespace = kind.Codespace()
		out.Code = kind.ABCICode()
		out.Kind = kind.Error()
	}
	if perr := printJSON(w, out); perr != nil {
		fmt.Fprintln(w, err)
	}
}
