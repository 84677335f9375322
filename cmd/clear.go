package cmd

import (
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Blank the display of a running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return post("/api/clear", nil)
	},
}

var syncTimeCmd = &cobra.Command{
	Use:   "synctime",
	Short: "Push the host clock to the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return post("/api/time-sync", nil)
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(syncTimeCmd)
}
