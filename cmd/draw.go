package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/umpdisplay/ump-matrix-display/internal/render"
)

var drawCmd = &cobra.Command{
	Use:   "draw [request.json]",
	Short: "Send a draw request to a running daemon",
	Long: `Send a draw request to a running daemon. The request is read from the
given file, or from stdin when no file is named. It is validated locally
before anything goes over the network.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return err
		}

		if _, err := render.ParseRequest(data); err != nil {
			return err
		}
		return post("/api/draw", data)
	},
}

func init() {
	rootCmd.AddCommand(drawCmd)
}

func post(path string, body []byte) error {
	resp, err := http.Post(serverAddr+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	fmt.Println(string(bytes.TrimSpace(msg)))
	return nil
}
