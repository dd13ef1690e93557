package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/emconsole/internal/api"
	"github.com/kalambet/emconsole/internal/backend"
	"github.com/kalambet/emconsole/internal/board"
	"github.com/kalambet/emconsole/internal/config"
	"github.com/kalambet/emconsole/internal/metrics"
	"github.com/kalambet/emconsole/internal/session"
	"github.com/kalambet/emconsole/internal/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync the emergency board and serve it locally (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		quiet, _ := cmd.Flags().GetBool("quiet")
		return runWatch(withMCP, quiet)
	},
}

func init() {
	watchCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
	watchCmd.Flags().Bool("quiet", false, "do not print board changes")
}

func runWatch(withMCP, quiet bool) error {
	fmt.Fprintf(os.Stderr, "emconsole version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	if cfg.Sync.PruneMissing {
		printWarning("sync.prune_missing is on: records absent from a snapshot will be removed")
	}

	durations := cfg.Durations()
	m := metrics.New()
	client := backend.New(cfg.Backend.BaseURL, durations.BackendTimeout)
	sess := session.New(client, session.Options{
		StreamPath:       cfg.Backend.StreamPath,
		PollInterval:     durations.PollInterval,
		ReconnectDelay:   durations.ReconnectDelay,
		PruneMissing:     cfg.Sync.PruneMissing,
		Archive:          store,
		JournalRetention: durations.JournalRetention,
		Metrics:          m,
	})
	if !quiet {
		unsubscribe := sess.Subscribe(func(c board.Change) {
			printStep("%s", describeChange(c))
		})
		defer unsubscribe()
	}

	handler := api.NewAppHandler(api.AppDeps{
		Board:    sess,
		History:  store,
		Registry: m.Registry,
	})

	g, gctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return gctx
		},
	}

	g.Go(func() error {
		return sess.Run(gctx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Board: sess, History: store})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "emconsole syncing %s, listening on %s\n", cfg.Backend.BaseURL, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "shutting down...")
		}
		sess.Close()

		// Graceful shutdown with timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
