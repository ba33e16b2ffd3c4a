package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fengailin/qwen-ocr/internal/config"
	"github.com/fengailin/qwen-ocr/internal/home"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the qwen-ocr configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Long: `Write the commented default configuration to the home directory.

The server also seeds this file on first run; config init lets you
create and edit it before starting the server.

Examples:
  qwen-ocr config init              # Write ~/.qwen-ocr/config.yaml
  qwen-ocr config init --force      # Overwrite an existing config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		if h.ConfigExists() && !configInitForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", h.ConfigPath())
		}

		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		cmd.Printf("Wrote default config to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
