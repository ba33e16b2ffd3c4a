package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fengailin/qwen-ocr/internal/config"
	"github.com/fengailin/qwen-ocr/internal/home"
	"github.com/fengailin/qwen-ocr/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the qwen-ocr server",
	Long: `Start the qwen-ocr HTTP server.

The server loads accounts from the accounts file in the home directory
and serves the recognition and batch APIs until interrupted.

The server provides:
  - /health            - Basic server health check
  - /ready             - Readiness check (includes account availability)
  - /api/recognize/*   - Single-image recognition
  - /api/zip/ocr       - Batch recognition of ZIP archives
  - /api/auth/*        - Account management

Examples:
  qwen-ocr serve                    # Start on default port 8080
  qwen-ocr serve --port 3000        # Start on custom port
  qwen-ocr serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Seed a default config on first run so operators have a file
		// to edit.
		if cfgFile == "" && !h.ConfigExists() {
			if err := config.WriteDefault(h.ConfigPath()); err != nil {
				return err
			}
			logger.Info("wrote default config", "path", h.ConfigPath())
		}

		configMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		configMgr.WatchConfig()

		appCfg := configMgr.Get()
		host := serveHost
		if !cmd.Flags().Changed("host") && appCfg.Server.Host != "" {
			host = appCfg.Server.Host
		}
		port := servePort
		if !cmd.Flags().Changed("port") && appCfg.Server.Port != "" {
			port = appCfg.Server.Port
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: configMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
