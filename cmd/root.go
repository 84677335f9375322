// Package cmd holds the CLI entrypoints.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "ump-display",
	Short: "Render declarative elements onto a BLE LED matrix",
	Long: `ump-display drives a small LED matrix over Bluetooth Low Energy.

The serve command runs the render daemon; draw, clear and synctime are
one-shot clients that talk to a running daemon over its HTTP API.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the daemon configuration file")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8081", "Address of a running daemon (client commands)")
}
