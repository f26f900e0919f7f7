// Package cli provides the command-line interface for brocoli.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/config"
	"github.com/rescale/brocoli/internal/constants"
	"github.com/rescale/brocoli/internal/events"
	"github.com/rescale/brocoli/internal/http"
	"github.com/rescale/brocoli/internal/logging"
	"github.com/rescale/brocoli/internal/version"
)

const defaultLogFile = "default"

var (
	// Global flags
	cfgFile    string
	connection string
	verbose    bool
	quiet      bool
	logFile    string

	// Global logger
	logger  *logging.Logger
	logSink io.WriteCloser

	// bus carries operation and profile events of the running command.
	bus        *events.EventBus
	stopEvents func()

	// registry resolves catalog types; tests swap it.
	registry = catalog.Default
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "brocoli",
		Short: "Browse and synchronize file catalogs",
		Long: `brocoli ` + version.Version + ` - Built: ` + version.BuildTime + `
Browse, download, upload and delete files in local directories, object stores
(S3, Azure Blob, MinIO) and WebDAV servers through named connections.

Connections live in the profile file (see 'brocoli connections').`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logSink = nil
			if logFile != "" {
				path := logFile
				if path == defaultLogFile {
					if err := config.EnsureLogDirectory(); err != nil {
						return fmt.Errorf("failed to create log directory: %w", err)
					}
					path = logging.DefaultLogFile(config.LogDirectory())
				}
				logSink = logging.NewFileSink(path)
			}
			logger = logging.NewLogger("cli", logSink)
			logger.SetOutput(cmd.ErrOrStderr())
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logging.NewContext(ctx, logger))

			bus = events.NewEventBus(constants.EventBusDefaultBuffer)
			stopEvents = startEventLog(bus, logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			finish()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Profile file (default "+config.DefaultPath()+")")
	flags.StringVar(&connection, "connection", "", "Connection to use (default: the profile's default connection)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Do not draw progress bars")
	flags.StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (bare flag: rotating file in the log directory)")
	flags.Lookup("log-file").NoOptDefVal = defaultLogFile

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping after the current item...\n", sig)
				cancel()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(ctx)
	finish()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newStatCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newPutCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newTypesCmd())
	rootCmd.AddCommand(newConnectionsCmd())
}

// finish flushes the event log and closes the log file. PersistentPostRun is
// skipped when a command fails, so Execute calls it as well.
func finish() {
	if stopEvents != nil {
		stopEvents()
		stopEvents = nil
	}
	if logSink != nil {
		_ = logSink.Close()
		logSink = nil
	}
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// loadConfig reads the profile named by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(profilePath())
}

func profilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// openCatalog opens the connection selected by --connection. The returned
// context carries the proxy settings of the profile.
func openCatalog(cmd *cobra.Command) (context.Context, catalog.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	conn, err := cfg.Connection(connection)
	if err != nil {
		return nil, nil, err
	}

	proxy := cfg.Proxy
	if proxy.NeedsPassword() && isTerminal(cmd.InOrStdin()) {
		pw, err := promptSecret(cmd, fmt.Sprintf("Proxy password for %s", proxy.User))
		if err != nil {
			return nil, nil, err
		}
		proxy.Password = pw
	}
	ctx := http.WithProxy(cmd.Context(), proxy)

	openCtx, cancel := context.WithTimeout(ctx, constants.OpenTimeout)
	defer cancel()
	cat, err := config.Open(openCtx, registry, conn, secretPrompt(cmd))
	if err != nil {
		return nil, nil, err
	}
	GetLogger().Debug().Str("connection", conn.Name).Msg("Catalog ready")
	return ctx, cat, nil
}
