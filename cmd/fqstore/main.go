package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/filequeue/pkg/config"
	"github.com/cuemby/filequeue/pkg/log"
	"github.com/cuemby/filequeue/pkg/metrics"
	"github.com/cuemby/filequeue/pkg/pool"
	"github.com/cuemby/filequeue/pkg/queue"
	"github.com/cuemby/filequeue/pkg/reconciler"
	"github.com/cuemby/filequeue/pkg/recovery"
	"github.com/cuemby/filequeue/pkg/scheduler"
	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/tenant"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/spf13/cobra"
)

// fqstore is a thin reference host around the file queue store core:
// it loads a config.Config, wires the pool/tenant/scheduler/recovery/
// reconciler stack, and exposes a metrics endpoint. Nothing here is
// part of the core's tested surface; a production integration is
// expected to embed pkg/queue directly instead.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fqstore",
	Short:   "fqstore - multi-tenant durable file queue store",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fqstore version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	serveCmd.Flags().String("config", "fqstore.yaml", "Path to the YAML config file")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics HTTP endpoint")
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load a config file and run the store until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		storeCfg := storage.Config{
			Timeout:        time.Duration(cfg.StoreEngine.LockTimeoutSec) * time.Second,
			JournalOn:      cfg.StoreEngine.JournalOn,
			CheckpointNTx:  cfg.StoreEngine.CheckpointNTx,
			ConnectionMode: cfg.StoreEngine.ConnectionMode,
		}

		p := pool.New()
		for _, v := range cfg.Volumes {
			if err := p.AddVolume(types.VolumeConfig{
				VolumeID:      v.ID,
				MountPath:     v.MountPath,
				ShardingDepth: v.ShardingDepth,
			}, 2, time.Second); err != nil {
				return fmt.Errorf("add volume %s: %w", v.ID, err)
			}
		}

		registryPath := cfg.MetadataRoot + "/tenants.db"
		registry, err := tenant.OpenRegistry(registryPath, storeCfg, cfg.AutoCreateTenants)
		if err != nil {
			return fmt.Errorf("open tenant registry: %w", err)
		}
		defer registry.Close()

		for _, seed := range cfg.Tenants {
			if _, err := registry.Get(seed.ID); err != nil {
				if _, err := registry.Create(seed.ID, ""); err != nil {
					return fmt.Errorf("seed tenant %s: %w", seed.ID, err)
				}
			}
		}

		tenants := tenant.NewManager(cfg.MetadataRoot, cfg.QuotaRoot, storeCfg)
		defer tenants.Close()

		retry := scheduler.RetryConfig{
			MaxRetries:   cfg.Retry.Max,
			InitialDelay: cfg.Retry.InitialDelay,
			Exponential:  cfg.Retry.Exponential,
			MaxDelay:     cfg.Retry.MaxDelay,
		}
		sched := scheduler.New(retry)

		if cfg.HealthCheckEnabled {
			recovCfg := recovery.DefaultConfig()
			recovCfg.AutoRecover = cfg.AutoRecover
			recovCfg.FailFast = cfg.FailFast
			recov := recovery.New(recovCfg, tenants, p)

			tenantIDs := make([]string, 0, len(cfg.Tenants))
			for _, seed := range cfg.Tenants {
				tenantIDs = append(tenantIDs, seed.ID)
			}
			if rebuilt, err := recov.Sweep(tenantIDs); err != nil {
				if cfg.FailFast {
					return fmt.Errorf("startup recovery sweep: %w", err)
				}
				fmt.Fprintf(os.Stderr, "recovery sweep reported errors: %v\n", err)
			} else if len(rebuilt) > 0 {
				fmt.Printf("rebuilt corrupted tenant stores: %v\n", rebuilt)
			}
		}

		store := queue.New(registry, tenants, p, sched)

		recon := reconciler.New(reconciler.Config{
			CleanupInterval:     cfg.CleanupInterval,
			CleanupInitialDelay: cfg.CleanupInitialDelay,
			ProcessingTimeout:   cfg.ProcessingTimeout,
			FailedRetention:     cfg.FailedRetention,
			CompactionEnabled:   cfg.CompactionEnabled,
			CompactionInterval:  cfg.CompactionInterval,
		}, registry, tenants, p, sched)
		recon.Start()
		fmt.Println("reconciler started")

		metricsSource := queue.NewMetricsSource(p, tenants)
		collector := metrics.NewCollector(metricsSource)
		collector.Start()

		metrics.SetVersion(Version)
		metrics.SetSource(metricsSource)
		metrics.SetReady(true)

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Printf("metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("metrics endpoint: http://%s/metrics\n", metricsAddr)
		fmt.Printf("health endpoints: http://%s/health, /ready, /live\n", metricsAddr)
		fmt.Printf("store ready: %d volume(s), capacity %d bytes\n", len(cfg.Volumes), store.CapacityTotal())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("shutting down...")
		recon.Stop()
		collector.Stop()
		return nil
	},
}
