// Package app is the command tree of the relay: the HTTP server and its
// maintenance commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/webmail-relay/internal/mailbox"
	"github.com/iliyamo/webmail-relay/internal/queue"
)

const shutdownGrace = 10 * time.Second

var envFile string

var rootCmd = &cobra.Command{
	Use:           "webmail-relay",
	Short:         "Webmail credential relay and mailbox provisioning",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic vault sweep",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := Setup(ctx, envFile)
		if err != nil {
			return err
		}
		defer rt.Close()

		if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
			if err := rt.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}

		go rt.Mail.RunSweeper(ctx, rt.Cfg.Vault.SweepInterval)

		e := rt.Echo()
		errCh := make(chan error, 1)
		go func() {
			addr := ":" + rt.Cfg.Port
			rt.Log.Info(ctx, "listening", "addr", addr)
			errCh <- e.Start(addr)
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		rt.Log.Info(context.Background(), "shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return e.Shutdown(sctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := Setup(cmd.Context(), envFile)
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := rt.Migrate(cmd.Context()); err != nil {
			return err
		}
		rt.Log.Info(cmd.Context(), "migrations applied")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired vault entries once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := Setup(cmd.Context(), envFile)
		if err != nil {
			return err
		}
		defer rt.Close()
		n := rt.Mail.SweepVault(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired vault entries\n", n)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-apply mailbox ownership for queued provisioning events",
	Long: "Consumes mailbox.ownership.pending events and hands each maildir tree to " +
		"the configured system account. Run it with the privileges chown needs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := Setup(ctx, envFile)
		if err != nil {
			return err
		}
		defer rt.Close()

		priv := mailbox.NewChownAdapter(rt.Cfg.Mail.SystemAccount)
		r := queue.NewReconciler(rt.Cfg.AMQPURL, rt.Cfg.Mail.BaseDir, priv, rt.Log)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	serveCmd.Flags().Bool("migrate", false, "apply migrations before serving")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, reconcileCmd)
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
