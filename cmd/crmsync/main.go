// Command crmsync runs the connector flows from the command line. Platform
// writes are emitted as JSON lines on stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/homemade/crmsync/s3loader"
	"github.com/homemade/crmsync/sqlite"
	"github.com/homemade/crmsync/sync"
)

var (
	settingsPath string
	settingsDir  string
	envVar       string
	dbPath       string
	logFile      string
	verbose      bool
	connector    string
	bucket       string
	prefix       string
	baseURL      string
)

var rootCmd = &cobra.Command{
	Use:           "crmsync",
	Short:         "Synchronize platform accounts and users with the CRM",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&settingsPath, "settings", "s", "crmsync.yaml", "connector settings file")
	flags.StringVar(&settingsDir, "settings-dir", "", "directory holding defaults.yaml and connectors/<connector>.yaml, used instead of --settings")
	flags.StringVar(&envVar, "env-var", "", "environment variable holding a JSON object used to expand the settings file")
	flags.StringVar(&dbPath, "db", "crmsync.db", "SQLite database holding the remote id cache and state")
	flags.StringVar(&logFile, "log-file", "", "write logs to a rotated file instead of stderr")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&connector, "connector", "default", "connector instance name")
	flags.StringVar(&bucket, "bucket", "", "S3 bucket receiving bulk imports")
	flags.StringVar(&prefix, "prefix", "crmsync", "S3 key prefix for bulk imports")
	flags.StringVar(&baseURL, "base-url", "", "override the service API base URL")

	rootCmd.AddCommand(fetchCmd, sendCmd, exportCmd, statusCmd, fieldsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var w io.Writer = os.Stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadSettings() (sync.ConnectorSettings, error) {
	var opts []sync.ConfigOption
	if envVar != "" {
		opts = append(opts, sync.ConfigWithEnvVar(envVar))
	}
	if settingsDir != "" {
		return sync.LoadConnectorSettings(sync.SettingsDir{Root: ".", Files: os.DirFS(settingsDir)}, connector, opts...)
	}
	return sync.LoadSettings(settingsPath, opts...)
}

// app bundles an agent with the resources it holds open.
type app struct {
	agent *sync.SyncAgent
	store *sqlite.Store
}

func (a *app) Close() error {
	return a.store.Close()
}

func newApp(ctx context.Context, withLoader bool) (*app, error) {
	logger := newLogger()
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}

	sc := sync.SyncContext{Settings: settings, Connector: connector, BaseURL: baseURL}
	opts := []sync.AgentOption{
		sync.WithAgentLogger(logger),
		sync.WithCache(store.Cache(connector)),
		sync.WithStateStore(store.State(connector)),
	}
	if withLoader {
		if bucket == "" {
			store.Close()
			return nil, fmt.Errorf("--bucket is required")
		}
		loader, err := s3loader.New(ctx, bucket, prefix, s3loader.WithLogger(logger))
		if err != nil {
			store.Close()
			return nil, err
		}
		opts = append(opts, sync.WithBulkLoader(loader))
	}

	clientOpts := append(sc.ClientOptions(),
		sync.WithLogger(logger),
		sync.WithMetrics(sync.LogMetrics{Logger: logger}),
	)
	opts = append(opts, sync.WithServiceClient(sync.NewServiceClient(settings.APIKey, clientOpts...)))

	agent := sync.NewSyncAgent(sc, newNDJSONPlatform(os.Stdout), opts...)
	return &app{agent: agent, store: store}, nil
}
