// Package render turns declarative visual elements into pixel writes
// against a frame, and composes full frames for the pipeline.
package render

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/umpdisplay/ump-matrix-display/internal/font"
	"github.com/umpdisplay/ump-matrix-display/internal/frame"
)

// ValidationError marks a malformed draw request. It is reported to the
// caller before any device contact happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid draw request: " + e.Reason }

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// State is the per-element animation bookkeeping returned by each render
// call. It is purely derived from elapsed time; the pipeline keeps it
// only for introspection.
type State struct {
	Offset        float64 // marquee scroll offset in pixels
	Page          int     // current page for paginated text
	Transitioning bool    // paginated text mid-slide
	Progress      float64 // slide progress 0..1
}

// Element is one visual primitive of a draw request.
type Element interface {
	Type() string
	Validate() error
	// Render writes the element's pixels into dst for the given elapsed
	// time since the draw request was accepted.
	Render(dst *frame.Frame, env *Env, elapsed time.Duration) (State, error)
}

const (
	TypeText          = "text"
	TypeScrollingText = "scrolling_text"
	TypePaginatedText = "textlong"
	TypeIcon          = "icon"
	TypeImage         = "image"
	TypePixels        = "pixels"
)

// FPS bounds accepted for a draw request.
const (
	MinFPS = 1
	MaxFPS = 30
)

// Request is one accepted draw invocation: the full element set plus
// background and pacing. A new request always replaces the previous one
// wholesale.
type Request struct {
	Elements   []Element
	Background frame.RGB
	FPS        int
	Transition *Transition
}

// Transition describes the optional whole-canvas animation played when a
// new request replaces the current content.
type Transition struct {
	Kind     string  `json:"type"`
	Duration float64 `json:"duration"`
}

const (
	TransitionSlideUp    = "slide_up"
	TransitionSlideDown  = "slide_down"
	TransitionSlideLeft  = "slide_left"
	TransitionSlideRight = "slide_right"
	TransitionDissolve   = "dissolve"
)

type rawRequest struct {
	Elements   []json.RawMessage `json:"elements"`
	Background []int             `json:"background"`
	FPS        int               `json:"fps"`
	Transition *rawTransition    `json:"transition"`
}

type rawTransition struct {
	Kind     string   `json:"type"`
	Duration *float64 `json:"duration"`
}

// ParseRequest decodes and validates a draw request payload. Any defect
// is returned as a *ValidationError without touching the device.
func ParseRequest(data []byte) (*Request, error) {
	var raw rawRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalidf("malformed JSON: %v", err)
	}
	if len(raw.Elements) == 0 {
		return nil, invalidf("elements is required")
	}

	req := &Request{FPS: 20}
	if raw.FPS != 0 {
		req.FPS = raw.FPS
	}
	if req.FPS < MinFPS || req.FPS > MaxFPS {
		return nil, invalidf("fps %d out of range [%d,%d]", req.FPS, MinFPS, MaxFPS)
	}

	bg, err := parseColor(raw.Background, frame.RGB{})
	if err != nil {
		return nil, invalidf("background: %v", err)
	}
	req.Background = bg

	if raw.Transition != nil {
		t := &Transition{Kind: raw.Transition.Kind, Duration: 1.0}
		if t.Kind == "" {
			t.Kind = TransitionSlideUp
		}
		if raw.Transition.Duration != nil {
			t.Duration = *raw.Transition.Duration
		}
		switch t.Kind {
		case TransitionSlideUp, TransitionSlideDown, TransitionSlideLeft,
			TransitionSlideRight, TransitionDissolve:
		default:
			return nil, invalidf("unknown transition type %q", t.Kind)
		}
		if t.Duration <= 0 || t.Duration > 30 {
			return nil, invalidf("transition duration %v out of range", t.Duration)
		}
		req.Transition = t
	}

	for i, rawEl := range raw.Elements {
		el, err := decodeElement(rawEl)
		if err != nil {
			return nil, invalidf("element %d: %v", i, err)
		}
		if err := el.Validate(); err != nil {
			return nil, invalidf("element %d (%s): %v", i, el.Type(), err)
		}
		req.Elements = append(req.Elements, el)
	}
	return req, nil
}

func decodeElement(data []byte) (Element, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	var el Element
	switch probe.Type {
	case TypeText:
		el = &Text{}
	case TypeScrollingText:
		el = &ScrollingText{}
	case TypePaginatedText:
		el = &PaginatedText{}
	case TypeIcon, "mdi":
		el = &Icon{}
	case TypeImage:
		el = &Image{}
	case TypePixels:
		el = &PixelSet{}
	case "":
		return nil, fmt.Errorf("missing type")
	default:
		return nil, fmt.Errorf("unknown type %q", probe.Type)
	}
	if err := json.Unmarshal(data, el); err != nil {
		return nil, err
	}
	return el, nil
}

// parseColor converts a JSON [r,g,b] triple, applying def when absent.
func parseColor(c []int, def frame.RGB) (frame.RGB, error) {
	if c == nil {
		return def, nil
	}
	if len(c) < 3 {
		return frame.RGB{}, fmt.Errorf("color needs 3 channels, got %d", len(c))
	}
	for _, ch := range c[:3] {
		if ch < 0 || ch > 255 {
			return frame.RGB{}, fmt.Errorf("channel %d out of [0,255]", ch)
		}
	}
	return frame.RGB{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2])}, nil
}

// textDefaults fills the shared font/spacing/color defaults used by all
// three text-bearing variants.
type textCommon struct {
	Content string `json:"content"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Color   []int  `json:"color"`
	Font    string `json:"font"`
	Spacing *int   `json:"spacing"`
}

func (t *textCommon) family() font.Family {
	if t.Font == "" {
		return font.DefaultFamily
	}
	return font.Family(t.Font)
}

func (t *textCommon) spacing() int {
	if t.Spacing == nil {
		return 1
	}
	return *t.Spacing
}

func (t *textCommon) color() frame.RGB {
	c, err := parseColor(t.Color, frame.RGB{R: 255, G: 255, B: 255})
	if err != nil {
		return frame.RGB{R: 255, G: 255, B: 255}
	}
	return c
}

func (t *textCommon) validate() error {
	if t.Content == "" {
		return fmt.Errorf("content is required")
	}
	if t.Font != "" && !font.Known(t.Font) {
		return fmt.Errorf("unknown font %q", t.Font)
	}
	if _, err := parseColor(t.Color, frame.RGB{}); err != nil {
		return err
	}
	return nil
}
