package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ritzau/dfgraph/pkg/config"
	"github.com/ritzau/dfgraph/pkg/logging"
	"github.com/ritzau/dfgraph/pkg/manager"
	"github.com/ritzau/dfgraph/pkg/metrics"
	"github.com/ritzau/dfgraph/pkg/output"
	"github.com/ritzau/dfgraph/pkg/pubsub"
	"github.com/ritzau/dfgraph/pkg/watcher"
	"github.com/ritzau/dfgraph/pkg/web"
)

// errMalformedReports makes inspect exit non-zero without a usage dump
var errMalformedReports = errors.New("spool contains malformed reports")

var (
	openBrowserFlag bool

	rootCmd = &cobra.Command{
		Use:           "dfgraph",
		Short:         "Dependency graphs for dataflow notebooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the graph service for notebook frontends and viewers",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect <spool-dir>",
		Short: "Replay spooled execution reports and print each session's graph",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
)

func init() {
	config.RegisterFlags(serveCmd.Flags())
	serveCmd.Flags().BoolVar(&openBrowserFlag, "open", false, "Open the dependency view in a browser")

	inspectCmd.Flags().String("verbosity", "", "Log level: trace, debug, info, warn, error")
	inspectCmd.Flags().CountP("verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(serveCmd, inspectCmd)
}

func configureLogging(cfg *config.Config) error {
	level, err := logging.ResolveLevel(cfg.Verbosity, cfg.VerboseCnt)
	if err != nil {
		return err
	}
	logging.Configure(logging.Options{Level: level, JSON: cfg.JSONLogs, Writer: os.Stderr})
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := configureLogging(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	publisher := pubsub.NewSSEPublisher()
	defer publisher.Close()

	mgr := manager.New(publisher, manager.WithMetrics(met))
	server, err := web.NewServer(mgr, publisher, web.Options{
		RenderCache:  cfg.RenderCache,
		ReplayBuffer: cfg.ReplayBuffer,
		Metrics:      met,
	})
	if err != nil {
		return err
	}

	if cfg.Spool != "" {
		ingester := watcher.NewIngester(mgr, met)
		if cfg.Watch {
			err = watcher.Watch(ctx, cfg.Spool, ingester, watcher.WatchOptions{
				QuietPeriod: cfg.QuietPeriod,
				MaxWait:     cfg.MaxWait,
			})
		} else {
			_, err = ingester.Replay(ctx, cfg.Spool)
		}
		if err != nil {
			return fmt.Errorf("spool: %w", err)
		}
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start(cfg.ListenAddr())
	}()

	if openBrowserFlag {
		// Give the listener a moment before the browser connects
		time.Sleep(500 * time.Millisecond)
		openBrowser(fmt.Sprintf("http://%s/api/sessions", cfg.ListenAddr()))
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile("", cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := configureLogging(cfg); err != nil {
		return err
	}

	publisher := pubsub.NewSSEPublisher()
	defer publisher.Close()
	mgr := manager.New(publisher)

	res, err := watcher.NewIngester(mgr, nil).Replay(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, session := range mgr.Sessions() {
		g, ok := mgr.Graph(session)
		if !ok {
			continue
		}
		output.PrintGraphReport(out, session, g.Snapshot())
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Reports: %d applied, %d discarded, %d failed, %d malformed\n",
		res.Applied, res.Discarded, res.Failed, res.Malformed)

	if res.Malformed > 0 {
		return errMalformedReports
	}
	return nil
}
