/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pharmacy credit ledger server (creditd).
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  creditd [serve]   Run the HTTP API and the background audit (default)
  creditd audit     Audit balances against the ledger once and exit
                    (exit status 1 when any store has discrepancies)
  creditd migrate   Create or upgrade the database schema and exit

STARTUP SEQUENCE (serve):
  1. Load config (defaults, TOML file, environment, flags)
  2. Initialize SQLite store
  3. Create ledger with metrics observer and localized descriptions
  4. Configure HTTP router
  5. Start audit scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  --config     TOML config file (default: creditd.toml, optional)
  --port       HTTP server port
  --db         SQLite database path
  --log-level  debug, info, warn or error

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the audit scheduler
  4. Close database connection

SEE ALSO:
  - config/config.go: Settings and precedence
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pharmly/credit-ledger/api"
	"github.com/pharmly/credit-ledger/config"
	"github.com/pharmly/credit-ledger/credit"
	"github.com/pharmly/credit-ledger/observability"
	"github.com/pharmly/credit-ledger/store/sqlite"
	"github.com/spf13/cobra"
)

var errDiscrepancies = errors.New("ledger discrepancies found")

type flags struct {
	configPath string
	port       int
	dbPath     string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "creditd:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "creditd",
		Short:         "Pharmacy customer credit ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "creditd.toml", "TOML config file")
	pf.IntVar(&f.port, "port", 0, "HTTP server port")
	pf.StringVar(&f.dbPath, "db", "", "SQLite database path")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and background audit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd, f)
			},
		},
		&cobra.Command{
			Use:   "audit",
			Short: "Compare stored balances with the ledger and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAudit(cmd, f)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or upgrade the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd, f)
			},
		},
	)
	return root
}

// loadConfig applies explicitly set flags over the file and environment.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	fs := cmd.Flags()
	if fs.Changed("port") {
		cfg.Server.Port = f.port
	}
	if fs.Changed("db") {
		cfg.Database.Path = f.dbPath
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}

func openLedger(cfg config.Config, logger *slog.Logger, observer credit.Observer) (*sqlite.Store, *credit.Ledger, error) {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	opts := []credit.Option{
		credit.WithLogger(logger),
		credit.WithDescriber(credit.NewDescriber(cfg.Locale)),
	}
	if observer != nil {
		opts = append(opts, credit.WithObserver(observer))
	}
	return store, credit.NewLedger(store, opts...), nil
}

func auditStores(cfg config.Config) []credit.StoreID {
	stores := make([]credit.StoreID, 0, len(cfg.Audit.Stores))
	for _, s := range cfg.Audit.Stores {
		stores = append(stores, credit.StoreID(s))
	}
	return stores
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(cmd *cobra.Command, f *flags) error {
	cfg, logger, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(nil)
	store, ledger, err := openLedger(cfg, logger, metrics)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer store.Close()

	scheduler := api.NewAuditScheduler(ledger, logger)
	scheduler.Enabled = cfg.Audit.Enabled
	scheduler.Interval = cfg.Audit.Interval.Duration
	scheduler.Stores = auditStores(cfg)

	handler := api.NewHandler(ledger, logger)
	handler.Scheduler = scheduler
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metrics.Handler(),
		Logger:         logger,
	})

	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-serverErr:
		if ok {
			logger.Error("server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// =============================================================================
// AUDIT
// =============================================================================

func runAudit(cmd *cobra.Command, f *flags) error {
	cfg, logger, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	store, ledger, err := openLedger(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	scheduler := api.NewAuditScheduler(ledger, logger)
	scheduler.Stores = auditStores(cfg)
	runs := scheduler.RunNow(cmd.Context())

	return printAudit(cmd.OutOrStdout(), ledger.Describer(), runs)
}

// printAudit writes one line per store and one per discrepancy.
func printAudit(w io.Writer, describer *credit.Describer, runs []api.AuditRun) error {
	var failed, drifted bool
	for _, run := range runs {
		switch {
		case run.Err != nil:
			failed = true
			fmt.Fprintf(w, "%s\tERROR\t%v\n", run.StoreID, run.Err)
		case run.Report.Consistent():
			fmt.Fprintf(w, "%s\tOK\t%d customers\n", run.StoreID, run.Report.CustomersChecked)
		default:
			drifted = true
			fmt.Fprintf(w, "%s\tDRIFT\t%d of %d customers\n",
				run.StoreID, len(run.Report.Discrepancies), run.Report.CustomersChecked)
			for _, d := range run.Report.Discrepancies {
				fmt.Fprintf(w, "  %s (%s)\tstored %s\tledger %s\tdiff %s\n",
					d.CustomerName, d.CustomerID,
					describer.FormatAmount(d.StoredBalance),
					describer.FormatAmount(d.LedgerBalance),
					describer.FormatAmount(d.Difference))
			}
		}
	}

	switch {
	case failed:
		return errors.New("audit failed for one or more stores")
	case drifted:
		return errDiscrepancies
	}
	return nil
}

// =============================================================================
// MIGRATE
// =============================================================================

func runMigrate(cmd *cobra.Command, f *flags) error {
	cfg, logger, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Error("migration failed", "db", cfg.Database.Path, "error", err)
		return err
	}
	logger.Info("schema up to date", "db", cfg.Database.Path)
	return store.Close()
}
