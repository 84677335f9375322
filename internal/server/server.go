// Package server exposes the draw API and the live frame preview over
// HTTP.
package server

import (
	"bytes"
	"errors"
	"image/png"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/umpdisplay/ump-matrix-display/internal/pipeline"
	"github.com/umpdisplay/ump-matrix-display/internal/render"
)

// Server wires the HTTP routes to one display pipeline.
type Server struct {
	pipe      *pipeline.Pipeline
	assetsDir string
}

func New(pipe *pipeline.Pipeline, assetsDir string) *Server {
	return &Server{pipe: pipe, assetsDir: assetsDir}
}

// App builds the fiber application with all routes registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/", s.index)
	app.Get("/frame", s.serveFrame)
	app.Get("/api/status", s.status)
	app.Post("/api/draw", s.draw)
	app.Post("/api/clear", s.clear)
	app.Post("/api/time-sync", s.timeSync)
	app.Post("/api/state", s.state)

	return app
}

func (s *Server) index(c *fiber.Ctx) error {
	return c.SendFile(filepath.Join(s.assetsDir, "html", "index.html"))
}

// serveFrame returns the most recent composed frame as a PNG snapshot.
// Reading the preview never disturbs the running pipeline.
func (s *Server) serveFrame(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.pipe.Preview()); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("failed to encode frame")
	}
	c.Set("Content-Type", "image/png")
	c.Set("Content-Length", strconv.Itoa(buf.Len()))
	return c.Send(buf.Bytes())
}

func (s *Server) status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"link": s.pipe.LinkState().String(),
	})
}

// draw accepts a draw request. Validation failures come back as 400
// before any device contact; an unreachable device does not fail the
// request, the pipeline keeps retrying.
func (s *Server) draw(c *fiber.Ctx) error {
	req, err := render.ParseRequest(c.Body())
	if err != nil {
		var verr *render.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).SendString(verr.Error())
		}
		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	}
	s.pipe.Submit(req)
	return c.Status(fiber.StatusAccepted).SendString("accepted")
}

func (s *Server) clear(c *fiber.Ctx) error {
	if err := s.pipe.Clear(c.Context()); err != nil {
		return c.Status(fiber.StatusBadGateway).SendString(err.Error())
	}
	return c.SendString("cleared")
}

func (s *Server) timeSync(c *fiber.Ctx) error {
	if err := s.pipe.SyncTime(c.Context(), time.Now()); err != nil {
		return c.Status(fiber.StatusBadGateway).SendString(err.Error())
	}
	return c.SendString("time synced")
}

type stateRequest struct {
	On         *bool `json:"on"`
	Brightness *int  `json:"brightness"`
}

func (s *Server) state(c *fiber.Ctx) error {
	var req stateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid JSON")
	}
	if req.Brightness != nil {
		if *req.Brightness < 0 || *req.Brightness > 255 {
			return c.Status(fiber.StatusBadRequest).SendString("brightness out of [0,255]")
		}
		s.pipe.SetBrightness(uint8(*req.Brightness))
	}
	if req.On != nil {
		if err := s.pipe.SetPower(c.Context(), *req.On); err != nil {
			return c.Status(fiber.StatusBadGateway).SendString(err.Error())
		}
	}
	return c.SendString("ok")
}
