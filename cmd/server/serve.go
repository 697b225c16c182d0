package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/synapse/internal/api"
	"github.com/npezzotti/synapse/internal/config"
	"github.com/npezzotti/synapse/internal/database"
	"github.com/npezzotti/synapse/internal/server"
	"github.com/npezzotti/synapse/internal/stats"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	// development only, override with --signing-key or SYNAPSE_SIGNING_KEY
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	shutdownTimeout   = 10 * time.Second
	pingTimeout       = 5 * time.Second
)

var (
	flagAddr           string
	flagStore          string
	flagDSN            string
	flagSigningKey     string
	flagAllowedOrigins []string
	flagRequireAuth    bool
	flagICEServers     []string
	flagTURNUser       string
	flagTURNPass       string
	flagPersistTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling gateway",
	Long: `Run the HTTP server and the signaling gateway.

Examples:
  synapse serve --store memory
  synapse serve --store postgres --dsn "host=localhost user=postgres password=postgres dbname=synapse sslmode=disable"
  synapse serve --store sqlite --dsn synapse.db --ice-servers stun:stun.l.google.com:19302`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&flagAddr, "addr", envOr("SYNAPSE_ADDR", "localhost:8000"), "server address")
	f.StringVar(&flagStore, "store", envOr("SYNAPSE_STORE", database.DriverMemory), "message store (postgres, mongo, sqlite, memory)")
	f.StringVar(&flagDSN, "dsn", envOr("SYNAPSE_DSN", ""), "message store connection string")
	f.StringVar(&flagSigningKey, "signing-key", envOr("SYNAPSE_SIGNING_KEY", defaultSigningKey), "base64 encoded HS256 signing key")
	f.StringSliceVar(&flagAllowedOrigins, "allowed-origins", envList("SYNAPSE_ALLOWED_ORIGINS"), "comma-separated list of allowed origins")
	f.BoolVar(&flagRequireAuth, "require-auth", envBool("SYNAPSE_REQUIRE_AUTH"), "reject connections without a token")
	f.StringSliceVar(&flagICEServers, "ice-servers", envList("SYNAPSE_ICE_SERVERS"), "comma-separated STUN/TURN urls handed to clients")
	f.StringVar(&flagTURNUser, "turn-username", envOr("SYNAPSE_TURN_USERNAME", ""), "TURN username")
	f.StringVar(&flagTURNPass, "turn-credential", envOr("SYNAPSE_TURN_CREDENTIAL", ""), "TURN credential")
	f.DurationVar(&flagPersistTimeout, "persist-timeout", envDuration("SYNAPSE_PERSIST_TIMEOUT", config.DefaultPersistTimeout), "timeout for persisting one chat message")

	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:     flagAddr,
		StoreDriver:    flagStore,
		DatabaseDSN:    flagDSN,
		SigningKey:     flagSigningKey,
		AllowedOrigins: flagAllowedOrigins,
		RequireAuth:    flagRequireAuth,
		ICEServerURLs:  flagICEServers,
		TURNUsername:   flagTURNUser,
		TURNCredential: flagTURNPass,
		PersistTimeout: flagPersistTimeout,
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if flagSigningKey == defaultSigningKey {
		logger.Warn().Msg("using the development signing key")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.StoreDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("store close")
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	logger.Info().Str("store", cfg.StoreDriver).Msg("message store ready")

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	chatServer, err := server.NewChatServer(logger, store, statsUpdater, cfg.PersistTimeout)
	if err != nil {
		return fmt.Errorf("new chat server: %w", err)
	}

	app := api.NewSynapseApp(mux, logger, chatServer, store, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		chatServer.Run()
		return nil
	})
	g.Go(app.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := app.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := chatServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("chat server shutdown: %w", err))
		}

		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}
