// Command appmgrd is the appmgr host daemon: it owns the database, the
// container runtime connection, and the reconciler loops that keep every
// installed package converged on its desired status. cmd/appmgrctl is the
// CLI that drives it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/start9labs/appmgr/internal/daemon"
	"github.com/start9labs/appmgr/internal/daemonconfig"
	"github.com/start9labs/appmgr/internal/metrics"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "appmgrd",
	Short:   "appmgrd runs the appmgr package lifecycle daemon for this host",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"appmgrd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("config", "", "path to a daemonconfig YAML file (defaults omit this)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daemon and block until terminated",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg := daemonconfig.Default()
		if configPath != "" {
			loaded, err := daemonconfig.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		d, err := daemon.New(cfg)
		if err != nil {
			return fmt.Errorf("starting daemon: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		d.Start(ctx)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		errCh := make(chan error, 1)
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		fmt.Printf("appmgrd running; metrics at http://%s/metrics\n", cfg.MetricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			fmt.Println("\nshutting down...")
		case err := <-errCh:
			fmt.Fprintln(os.Stderr, err)
		}

		cancel()
		d.Stop()
		if err := d.Close(); err != nil {
			return err
		}
		fmt.Println("shutdown complete")
		return nil
	},
}
