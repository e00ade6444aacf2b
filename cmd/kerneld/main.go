// Command kerneld is the modular application kernel's process entrypoint.
// It replaces the teacher's cmd/goblin.go, which referenced an undefined
// core.NewApp() and imported a cobra dependency the teacher's go.mod never
// declared — broken and unwired. This is the same run/version subcommand
// shape, wired for real.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"kerneld/admin"
	"kerneld/kernel"
	"kerneld/metrics"
	_ "kerneld/modules/auth"
	"kerneld/persistence"
)

var (
	modulesPath string
	configPath  string
	adminAddr   string
	metricsDB   string
	debug       bool

	version = "0.1.0"
)

func main() {
	root := &cobra.Command{
		Use:   "kerneld",
		Short: "Modular application kernel",
	}
	root.PersistentFlags().StringVar(&modulesPath, "modules-path", envOr("MODULES_PATH", "./modules"), "root to discover modules")
	root.PersistentFlags().StringVar(&configPath, "config-path", envOr("CONFIG_PATH", "./config"), "root of per-module config documents")
	root.PersistentFlags().StringVar(&adminAddr, "admin-addr", envOr("ADMIN_ADDR", ""), "address for the optional admin HTTP surface; empty disables it")
	root.PersistentFlags().StringVar(&metricsDB, "metrics-db", envOr("METRICS_DB", ""), "sqlite DSN for the optional metrics ledger; empty disables it")
	root.PersistentFlags().BoolVar(&debug, "debug", os.Getenv("LOG_LEVEL") == "debug", "enable debug-tier health warnings and verbose logs")

	root.AddCommand(runCmd(), versionCmd(), checkUpdateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the kernel: discover, load, order, initialize, start, supervise",
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runKernel())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print kerneld's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func checkUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-update",
		Short: "Print each loaded module's package.json version; no release source is wired, so latest stays empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)
			defer logger.Sync()

			opts := kernel.DefaultManagerOptions(modulesPath, configPath)
			opts.Debug = debug
			opts.AutoStart = false
			mgr, err := kernel.NewManager(opts, kernel.DefaultRegistry, logger)
			if err != nil {
				return err
			}
			if _, err := mgr.LoadModules(); err != nil {
				return err
			}
			checker := kernel.NewUpdateChecker(nil)
			for _, status := range mgr.StatusSnapshot() {
				result, err := checker.Check(cmd.Context(), status.Name, modulesPath+"/"+status.Name)
				if err != nil {
					logger.Warn("update check failed", zap.String("module", status.Name), zap.Error(err))
					continue
				}
				if result == nil {
					continue
				}
				fmt.Printf("%s: current=%s latest=%s hasUpdate=%v\n", result.ModuleName, result.CurrentVersion, result.LatestVersion, result.HasUpdate)
			}
			return nil
		},
	}
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

// kernelFxParams is the fixed object graph fx wires for one Manager: the
// kernel's own sub-components, not a generic app container. Modules
// themselves remain singletons resolved by name through the Registry, never
// through fx — per the explicit Non-goal recorded in DESIGN.md.
type kernelFxParams struct {
	fx.In

	Manager *kernel.Manager
	Logger  *zap.Logger
}

func runKernel() int {
	logger := newLogger(debug)
	defer logger.Sync()

	exitCode := 1
	app := fx.New(
		fx.Supply(kernel.DefaultManagerOptions(modulesPath, configPath)),
		fx.Provide(
			func() *zap.Logger { return logger },
			func(opts kernel.ManagerOptions, l *zap.Logger) (*kernel.Manager, error) {
				opts.Debug = debug
				return kernel.NewManager(opts, kernel.DefaultRegistry, l)
			},
		),
		fx.Invoke(func(p kernelFxParams) {
			exitCode = bootstrap(p.Manager, p.Logger)
		}),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Error("fx start failed", zap.Error(err))
		return 1
	}
	defer app.Stop(context.Background())

	return exitCode
}

// metricsExportInterval is how often bootstrap fans ExportMetrics out to
// every registered MetricsExporter (currently just the Prometheus gauges).
const metricsExportInterval = 15 * time.Second

func bootstrap(mgr *kernel.Manager, logger *zap.Logger) int {
	var ledger *persistence.MetricsLedger
	if metricsDB != "" {
		var err error
		ledger, err = persistence.Open(metricsDB)
		if err != nil {
			logger.Error("failed to open metrics ledger", zap.Error(err))
			return 1
		}
		defer ledger.Close()
		mgr.HealthTracker().SetLedger(ledger)
		mgr.MemoryInspector().SetLedger(ledger)
	}

	exporter := metrics.NewPrometheusExporter()
	mgr.RegisterMetricsExporter(exporter)

	exportStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(metricsExportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mgr.ExportMetrics()
			case <-exportStop:
				return
			}
		}
	}()
	defer close(exportStop)

	var adminSrv *admin.Server
	if adminAddr != "" {
		adminSrv = admin.New(mgr, exporter, logger)
		adminSrv.Start(adminAddr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			adminSrv.Stop(ctx)
		}()
	}

	host := kernel.NewHostAdapter(mgr, 30*time.Second, logger)
	return host.Run(context.Background())
}
