// Command mcs is the Messaging and Coordination Server: a single
// executable exposing spec §4's RPC surface over stdio or a
// streaming-HTTP/WebSocket transport, plus an archive subcommand for
// spec §6's store-file export/import.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentmesh/mcs/internal/archive"
	"github.com/agentmesh/mcs/internal/config"
	"github.com/agentmesh/mcs/internal/contracts"
	"github.com/agentmesh/mcs/internal/handshake"
	"github.com/agentmesh/mcs/internal/logging"
	"github.com/agentmesh/mcs/internal/mcp"
	"github.com/agentmesh/mcs/internal/messaging"
	"github.com/agentmesh/mcs/internal/notify"
	"github.com/agentmesh/mcs/internal/rpcsurface"
	"github.com/agentmesh/mcs/internal/session"
	"github.com/agentmesh/mcs/internal/spawnpolicy"
	"github.com/agentmesh/mcs/internal/store"
	"github.com/agentmesh/mcs/internal/tasks"
	"github.com/agentmesh/mcs/internal/transport"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "mcs",
		Short:         "Messaging and Coordination Server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	rootCmd.AddCommand(serveCmd(), archiveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var flagHTTP bool
	var flagHost string
	var flagPort int
	var flagMCP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		Long: `Runs the Messaging and Coordination Server.

By default, serves the native JSON-RPC surface over stdio — one
session per process, suited to a single agent sidecar. --http instead
binds a streaming-HTTP/WebSocket listener serving many concurrent
agent sessions plus a Prometheus /metrics endpoint. --mcp runs the
secondary Model Context Protocol stdio surface instead of either,
for MCP-native clients.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Flags{HTTP: flagHTTP, Host: flagHost, Port: flagPort})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := logging.New(slog.LevelInfo)

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			registry := session.NewRegistry()
			notifier := notify.New(registry, st, logger)

			msg := messaging.New(st, registry, notifier, cfg.RoomToken, cfg.RuntimeDir)
			tm := tasks.New(st, notifier)
			hc := handshake.New(st, notifier)
			cr := contracts.New(st, notifier)
			sp := spawnpolicy.New(st)

			surface := rpcsurface.New(msg, tm, hc, cr, sp, registry, logger)

			ctx, cancel := signalContext()
			defer cancel()

			if flagMCP {
				server := mcp.NewServer(surface, mcp.WithVersion(Version))
				return server.Run(ctx)
			}

			if cfg.HTTP {
				addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
				srv := transport.NewServer(addr, surface, registry, logger)
				logger.Info("serving", "transport", "http", "addr", addr)

				if err := srv.Start(); err != nil {
					return fmt.Errorf("start http server: %w", err)
				}
				<-ctx.Done()
				return srv.Stop(context.Background())
			}

			logger.Info("serving", "transport", "stdio")
			transport.ServeStdio(ctx, os.Stdin, os.Stdout, surface, registry, logger)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagHTTP, "http", false, "Bind a streaming-HTTP/WebSocket listener instead of stdio")
	cmd.Flags().StringVar(&flagHost, "host", "", "Bind host override (default from HOST env / built-in default)")
	cmd.Flags().IntVar(&flagPort, "port", 0, "Bind port override (default from PORT env / built-in default)")
	cmd.Flags().BoolVar(&flagMCP, "mcp", false, "Serve the Model Context Protocol stdio surface instead of stdio/--http")

	return cmd
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, for
// graceful shutdown (spec §5: in-flight mutations complete before the
// process exits).
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export or import a room's store file (spec §6 archive format)",
	}
	cmd.AddCommand(archiveExportCmd(), archiveImportCmd())
	return cmd
}

func archiveExportCmd() *cobra.Command {
	var flagDB string
	var flagOut string
	var flagRoom string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write <room>.db.gz and <room>.index.json to a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagDB == "" {
				return fmt.Errorf("--db is required")
			}
			if flagRoom == "" {
				return fmt.Errorf("--room is required")
			}

			logger := logging.New(slog.LevelWarn)
			st, err := store.Open(flagDB, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			ctx := context.Background()
			if err := archive.WriteArchive(ctx, st, flagDB, flagOut, flagRoom); err != nil {
				return fmt.Errorf("export archive: %w", err)
			}

			fmt.Printf("Wrote %s.db.gz and %s.index.json to %s\n", flagRoom, flagRoom, flagOut)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagDB, "db", "", "Path to the store file to export")
	cmd.Flags().StringVar(&flagOut, "out", ".", "Destination directory for the archive pair")
	cmd.Flags().StringVar(&flagRoom, "room", "", "Room name, used as the archive's base filename")

	return cmd
}

func archiveImportCmd() *cobra.Command {
	var flagDB string
	var flagIn string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Restore a store file from a <room>.db.gz archive",
		Long: `Restores a store file from a .db.gz archive written by
"mcs archive export". The destination must not have a server attached
to it — importing replaces the file outright.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagDB == "" {
				return fmt.Errorf("--db is required")
			}
			if flagIn == "" {
				return fmt.Errorf("--in is required")
			}

			f, err := os.Open(flagIn) //nolint:gosec // operator-supplied archive path
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer func() { _ = f.Close() }()

			if err := archive.Import(flagDB, f); err != nil {
				return fmt.Errorf("import archive: %w", err)
			}

			fmt.Printf("Restored %s from %s\n", flagDB, flagIn)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagDB, "db", "", "Destination path for the restored store file")
	cmd.Flags().StringVar(&flagIn, "in", "", "Path to the .db.gz archive to import")

	return cmd
}
