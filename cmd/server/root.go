package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Chat and WebRTC call signaling gateway",
	Long: `Synapse relays room chat, typing and presence events between websocket
clients, persists chat messages, and brokers WebRTC offer/answer/candidate
exchange between peers.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", envOr("SYNAPSE_LOG_LEVEL", "info"), "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", envOr("SYNAPSE_LOG_FORMAT", "console"), "log format (console, json)")
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(flagLogLevel))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	var logger zerolog.Logger
	switch flagLogFormat {
	case "json":
		logger = zerolog.New(os.Stderr)
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", flagLogFormat)
	}

	return logger.Level(level).With().Timestamp().Str("service", "synapse").Logger(), nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
