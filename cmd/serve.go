package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/umpdisplay/ump-matrix-display/internal/config"
	"github.com/umpdisplay/ump-matrix-display/internal/icon"
	"github.com/umpdisplay/ump-matrix-display/internal/imaging"
	"github.com/umpdisplay/ump-matrix-display/internal/pipeline"
	"github.com/umpdisplay/ump-matrix-display/internal/protocol"
	"github.com/umpdisplay/ump-matrix-display/internal/render"
	"github.com/umpdisplay/ump-matrix-display/internal/server"
	"github.com/umpdisplay/ump-matrix-display/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the render daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg config.Config) error {
	adapter, err := protocol.New(cfg.Device.Family)
	if err != nil {
		return err
	}

	var tr transport.Transport
	if cfg.Device.Family == "opc" {
		tr = transport.NewTCP(cfg.Device.Address)
	} else {
		tr = transport.NewBLE(cfg.Device.Address, cfg.Device.MTU)
	}

	// The icon webfont is optional; icon elements degrade to render
	// errors (skipped per frame) when it is missing.
	var icons render.IconSource
	if r, err := icon.NewResolver(cfg.AssetsDir); err != nil {
		log.Printf("icons unavailable: %v", err)
	} else {
		icons = r
	}

	pipe := pipeline.New(cfg.Display.Width, cfg.Display.Height,
		adapter, tr, cfg.DiffThreshold, icons, imaging.NewLoader())

	// Establish the link early so the first draw request does not pay
	// the scan cost; failure is non-fatal, sends retry on demand.
	if err := tr.Connect(context.Background()); err != nil {
		log.Printf("initial connect failed: %v", err)
	}

	app := server.New(pipe, cfg.AssetsDir).App()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("shutting down")
		pipe.Stop()
		app.Shutdown()
	}()

	log.Printf("serving %dx%d display at %s on %s",
		cfg.Display.Width, cfg.Display.Height, cfg.Device.Address, cfg.Server.Listen)
	return app.Listen(cfg.Server.Listen)
}
