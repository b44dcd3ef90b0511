package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/prefs/internal/api"
	"github.com/kalambet/prefs/internal/config"
	"github.com/kalambet/prefs/internal/storage"
	"github.com/kalambet/prefs/internal/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP tools (foreground)",
		RunE: func(cmd *cobra.Command, args []string) error {
			withMCP, _ := cmd.Flags().GetBool("mcp")
			return a.runServer(cmd.Context(), withMCP, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().Bool("mcp", true, "serve MCP over stdio alongside HTTP")
	return cmd
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running prefs server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stopServer(cmd.ErrOrStderr())
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show prefs server and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func pidFilePath(cfg config.Config) string {
	dir := cfg.Storage.DataDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "prefs.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func (a *app) runServer(parent context.Context, withMCP bool, stdin io.Reader, stdout io.Writer) error {
	cfg := a.cfg
	logger := a.logger
	logger.Info("starting prefs", "version", version, "app", cfg.App.ID, "backend", cfg.Storage.Backend)

	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "prefs", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	// Refuse to start twice on the same port.
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	pidPath := pidFilePath(cfg)
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	p, err := a.instance(ctx)
	if err != nil {
		return err
	}
	backend, err := a.holder.Backend()
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{
		Backend: backend,
		Secret:  cfg.Auth.JWTSecret,
		Issuer:  cfg.Auth.Issuer,
		Logger:  logger,
		Shared:  p,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("prefs listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Prefs: p, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			logger.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, stdin, stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *app) stopServer(w io.Writer) error {
	pidPath := pidFilePath(a.cfg)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError(w, "prefs is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError(w, "could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError(w, "could not stop prefs (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess(w, "Sent stop signal to prefs (PID %d)", pid)
	return nil
}

func (a *app) showStatus(ctx context.Context, w io.Writer) error {
	cfg := a.cfg

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	running := false
	var health map[string]string
	if resp, err := client.get(ctx, "/healthz"); err != nil {
		printStatus(w, "Server", "stopped")
	} else if err := decodeJSON(resp, &health); err != nil {
		printStatus(w, "Server", "error (%v)", err)
	} else {
		running = true
		printStatus(w, "Server", "running on port %d", cfg.Server.Port)
	}

	if running && client.token != "" {
		resp, err := client.get(ctx, "/prefs")
		if err == nil {
			var list struct {
				Preferences map[string]api.Entry `json:"preferences"`
			}
			if decodeJSON(resp, &list) == nil {
				printStatus(w, "Preferences", "%d", len(list.Preferences))
			}
		}
	}

	printStatus(w, "App", "%s", cfg.App.ID)
	printStatus(w, "Backend", "%s", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		printStatus(w, "Data dir", "%s", cfg.Storage.DataDir)
		if !running {
			if _, err := a.instance(ctx); err == nil {
				if b, err := a.holder.Backend(); err == nil {
					if s, ok := b.(*storage.Store); ok {
						if versions, err := s.AppliedMigrations(); err == nil && len(versions) > 0 {
							printStatus(w, "Schema", "v%d", versions[len(versions)-1])
						}
					}
				}
			}
		}
	case config.BackendDynamoDB:
		printStatus(w, "Table", "%s (%s)", cfg.Dynamo.Table, cfg.Dynamo.Region)
	}
	return nil
}
