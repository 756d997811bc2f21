package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sitemonitor/internal/adapters"
	"sitemonitor/internal/config"
	"sitemonitor/internal/database"
	"sitemonitor/internal/metrics"
	"sitemonitor/internal/monitoring"
	"sitemonitor/internal/web"
)

var (
	probePort       int
	probeFailOnDown bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the seed catalog from the config into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := monitoring.Seed(cmd.Context(), store, cfg.Seed)
		if err != nil {
			return err
		}
		fmt.Printf("monitors: %d created, %d updated\n", report.MonitorsCreated, report.MonitorsUpdated)
		fmt.Printf("hosts:    %d created, %d updated\n", report.HostsCreated, report.HostsUpdated)
		fmt.Printf("sites:    %d created, %d updated\n", report.SitesCreated, report.SitesUpdated)
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [COUNTRY/endpoint ...]",
	Short: "Health-check the hosts of one or more sites",
	Long: `Probe every host of the named sites, or of all sites when none are named,
and print one line per host.

Examples:
  sitemonitor probe US/publisher
  sitemonitor probe --port 8080 US/publisher GB/publisher`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return probe(cmd.Context(), cfg, args, probeOptions{port: probePort, failOnDown: probeFailOnDown}, cmd.OutOrStdout())
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact the database file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.CompactDatabase(cmd.Context()); err != nil {
			return err
		}
		stats, err := store.GetDatabaseStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s database compacted, %d bytes\n", stats.Backend, stats.DatabaseSize)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := web.CurrentBuildInfo()
		fmt.Printf("sitemonitor %s (commit %s, built %s, %s %s/%s)\n",
			info.Version, info.GitCommit, info.BuildTime, info.GoVersion, info.GoOS, info.GoArch)
	},
}

func init() {
	probeCmd.Flags().IntVar(&probePort, "port", 0, "probe port override, same as ?port= on the dashboard")
	probeCmd.Flags().BoolVar(&probeFailOnDown, "fail-on-down", false, "exit non-zero when any host is down")
}

func serve(cfg *config.Config) error {
	logrus.WithFields(logrus.Fields{
		"port":     cfg.Server.Port,
		"database": cfg.Database.Type,
		"secrets":  fmt.Sprintf("%+v", cfg.Secrets.Masked()),
	}).Info("Starting site monitor")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Seed.OnStart {
		report, err := monitoring.Seed(ctx, store, cfg.Seed)
		if err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"monitors_created": report.MonitorsCreated,
			"hosts_created":    report.HostsCreated,
			"sites_created":    report.SitesCreated,
		}).Info("Seed catalog applied")
	}

	registry, err := adapters.FromConfig(&cfg.Adapters, cfg.Secrets, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize adapters: %w", err)
	}

	metricsCollector := metrics.NewCollector(store)
	assembler := monitoring.NewAssembler(cfg, store, monitoring.NewProber(nil), registry, metricsCollector)
	janitor := monitoring.NewJanitor(store)
	if cfg.Database.CleanupInterval > 0 {
		janitor.SchedulePeriodicPurge(ctx, cfg.Database.CleanupInterval)
	}

	webServer, err := web.NewServer(cfg, store, assembler, janitor, metricsCollector)
	if err != nil {
		return fmt.Errorf("failed to initialize web server: %w", err)
	}
	if err := webServer.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logrus.WithField("signal", sig).Info("Received shutdown signal")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Web server did not shut down cleanly")
	}

	logrus.Info("Shutdown complete")
	return nil
}

type probeOptions struct {
	port       int
	failOnDown bool
}

func probe(ctx context.Context, cfg *config.Config, args []string, opts probeOptions, out io.Writer) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	paths := args
	if len(paths) == 0 {
		sites, err := store.GetSites(ctx)
		if err != nil {
			return err
		}
		for _, site := range sites {
			paths = append(paths, site.Path())
		}
	}

	assembler := monitoring.NewAssembler(cfg, store, monitoring.NewProber(nil), nil, nil)
	dashboards := make([]*monitoring.Dashboard, len(paths))

	for _, path := range paths {
		if _, _, ok := strings.Cut(path, "/"); !ok {
			return fmt.Errorf("site %q must be COUNTRY/endpoint", path)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		country, endPoint, _ := strings.Cut(path, "/")
		g.Go(func() error {
			dash, err := assembler.Assemble(gctx, monitoring.PageHealthCheck, strings.ToUpper(country), endPoint,
				monitoring.Options{PortOverride: opts.port})
			if err != nil {
				return fmt.Errorf("failed to probe %s: %w", path, err)
			}
			dashboards[i] = dash
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	down := 0
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tHOST\tURL\tSTATUS\tDURATION")
	for i, dash := range dashboards {
		if !dash.Found {
			fmt.Fprintf(tw, "%s\t-\t-\tunknown site\t-\n", paths[i])
			continue
		}
		for _, hs := range dash.Hosts {
			status := "DOWN"
			if hs.Host.Status == database.HostUp {
				status = "UP"
			} else {
				down++
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", dash.Site.Path(), hs.Host.Name, hs.Result.URL, status,
				hs.Result.Duration.Round(time.Millisecond))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.failOnDown && down > 0 {
		return fmt.Errorf("%d host(s) down", down)
	}
	return nil
}
