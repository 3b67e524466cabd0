package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/SessionHost/internal/domain/catalog"
	"github.com/GriffinCanCode/SessionHost/internal/domain/session"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/config"
	"github.com/GriffinCanCode/SessionHost/internal/infrastructure/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port        string
		catalogPath string
	)

	root := &cobra.Command{
		Use:   "sessionhost",
		Short: "Coordinates game sessions with their in-game window",
		Long: `sessionhost watches for configured games starting and stopping, opens and
closes the in-game window in step with them, makes sure the window always
sees the "game launched" notification and archives the host logs when a
session ends.

Configuration comes from the environment (PORT, CATALOG_PATH, LOG_DIR, ...);
flags override it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			if catalogPath != "" {
				cfg.Catalog.Path = catalogPath
			}
			return serve(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVarP(&port, "port", "p", "", "server port (overrides PORT)")
	root.Flags().StringVar(&catalogPath, "catalog", "", "game catalog file, .yaml or .toml (overrides CATALOG_PATH)")

	root.AddCommand(newCatalogCmd(), newArchiveKeyCmd())
	return root
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	return srv.Run(ctx)
}

func newCatalogCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the configured games",
		RunE: func(cmd *cobra.Command, args []string) error {
			games := catalog.Default()
			if path != "" {
				loaded, err := catalog.Load(path)
				if err != nil {
					return err
				}
				games = loaded
			}
			return printCatalog(cmd.OutOrStdout(), games)
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "catalog file to read instead of the embedded default")
	return cmd
}

func printCatalog(out io.Writer, games *catalog.Catalog) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFEATURES")
	for _, e := range games.Entries() {
		fmt.Fprintf(w, "%d\t%s\t%d\n", e.ID, e.Name, len(e.Features))
	}
	return w.Flush()
}

func newArchiveKeyCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "archive-key <game name>",
		Short: "Print the archive key a session closing now would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				when = parsed
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), session.ArchiveKey(args[0], when))
			return err
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "close time in RFC 3339 (default now)")
	return cmd
}
