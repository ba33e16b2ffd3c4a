package main

import (
	"github.com/spf13/cobra"

	"github.com/fengailin/qwen-ocr/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running qwen-ocr server via HTTP.

These commands require a running server (qwen-ocr serve).
Use --server to specify a custom server URL.

Examples:
  qwen-ocr api health                    # Check server health
  qwen-ocr api recognize url <url>       # Recognize an image by URL
  qwen-ocr api zip submit scans.zip      # Submit a batch archive
  qwen-ocr api auth accounts             # List configured accounts`,
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Single-image recognition commands",
}

var zipCmd = &cobra.Command{
	Use:   "zip",
	Short: "Batch archive recognition commands",
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Account management commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.UploadProxyEndpoint{}).Command(getServerURL))

	// Recognition as subcommand group
	for _, ep := range endpoints.RecognizeCommands() {
		recognizeCmd.AddCommand(ep.Command(getServerURL))
	}

	// Batch as subcommand group
	for _, ep := range endpoints.ZipCommands() {
		zipCmd.AddCommand(ep.Command(getServerURL))
	}

	// Accounts as subcommand group
	for _, ep := range endpoints.AuthCommands() {
		authCmd.AddCommand(ep.Command(getServerURL))
	}

	apiCmd.AddCommand(recognizeCmd)
	apiCmd.AddCommand(zipCmd)
	apiCmd.AddCommand(authCmd)
	rootCmd.AddCommand(apiCmd)
}
