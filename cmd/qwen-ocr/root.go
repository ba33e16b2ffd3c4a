package main

import (
	"github.com/spf13/cobra"

	"github.com/fengailin/qwen-ocr/internal/api"
	"github.com/fengailin/qwen-ocr/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "qwen-ocr",
	Short: "OCR proxy service backed by the Qwen chat provider",
	Long: `qwen-ocr exposes the Qwen chat service's vision capabilities as a
plain OCR API, with account management on top.

It provides:
  - Image recognition from URLs, base64 payloads, and uploaded files
  - Batch recognition of ZIP archives with natural page ordering
  - Multi-account credential storage with automatic token refresh`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ~/.qwen-ocr/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "qwen-ocr home directory (default: ~/.qwen-ocr)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
