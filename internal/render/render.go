package render

import (
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/umpdisplay/ump-matrix-display/internal/font"
	"github.com/umpdisplay/ump-matrix-display/internal/frame"
	"github.com/umpdisplay/ump-matrix-display/internal/imaging"
)

// IconSource resolves icon names to alpha bitmaps. Implemented by
// icon.Resolver; faked in tests.
type IconSource interface {
	Resolve(name string, size int) (*image.Alpha, error)
}

// ImageSource loads raster images by path or URL. Implemented by
// imaging.Loader; faked in tests.
type ImageSource interface {
	Load(source string) (*image.RGBA, error)
}

// Env is everything a renderer needs besides the element itself: the
// display geometry, brightness, and the external resource collaborators.
type Env struct {
	W, H       int
	Brightness uint8
	Icons      IconSource
	Images     ImageSource
}

// scale applies the display brightness to a color.
func (e *Env) scale(c frame.RGB) frame.RGB {
	if e.Brightness == 255 {
		return c
	}
	b := uint16(e.Brightness)
	return frame.RGB{
		R: uint8(uint16(c.R) * b / 255),
		G: uint8(uint16(c.G) * b / 255),
		B: uint8(uint16(c.B) * b / 255),
	}
}

// drawString renders text at (x, y) and returns the x cursor after the
// final glyph. Glyphs falling outside the frame clip silently.
func drawString(dst *frame.Frame, text string, x, y int, fam font.Family, spacing int, c frame.RGB) int {
	cursor := x
	extra := font.ExtraSpacing(fam, spacing)
	for _, r := range font.Sanitize(text) {
		g, err := font.Rasterize(fam, r)
		if err != nil {
			cursor += 4 + extra
			continue
		}
		for gy := 0; gy < g.Height; gy++ {
			for gx := 0; gx < g.Width; gx++ {
				if g.Set(gx, gy) {
					dst.Set(cursor+gx, y+gy, c)
				}
			}
		}
		cursor += g.Advance + extra
	}
	return cursor
}

//---------------- text ----------------

// Text is a static string at a fixed position.
type Text struct {
	textCommon
}

func (t *Text) Type() string    { return TypeText }
func (t *Text) Validate() error { return t.validate() }

func (t *Text) Render(dst *frame.Frame, env *Env, _ time.Duration) (State, error) {
	drawString(dst, t.Content, t.X, t.Y, t.family(), t.spacing(), env.scale(t.color()))
	return State{}, nil
}

//---------------- scrolling text ----------------

// ScrollingText is a looping horizontal marquee. The offset is a pure
// function of elapsed time, so the animation needs no retained state.
type ScrollingText struct {
	textCommon
	Speed float64 `json:"speed"`
	Gap   *int    `json:"gap"`
}

func (s *ScrollingText) Type() string { return TypeScrollingText }

func (s *ScrollingText) Validate() error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.Speed < 0 {
		return fmt.Errorf("speed must be positive")
	}
	if s.Gap != nil && *s.Gap < 1 {
		return fmt.Errorf("gap must be at least 1")
	}
	return nil
}

func (s *ScrollingText) speed() float64 {
	if s.Speed == 0 {
		return 10
	}
	return s.Speed
}

func (s *ScrollingText) gap() int {
	if s.Gap == nil {
		return 8
	}
	return *s.Gap
}

// Offset returns the marquee shift in pixels for the given elapsed time.
func (s *ScrollingText) Offset(elapsed time.Duration) float64 {
	period := float64(font.Measure(s.family(), font.Sanitize(s.Content), s.spacing()) + s.gap())
	if period <= 0 {
		return 0
	}
	return math.Mod(elapsed.Seconds()*s.speed(), period)
}

func (s *ScrollingText) Render(dst *frame.Frame, env *Env, elapsed time.Duration) (State, error) {
	fam := s.family()
	text := font.Sanitize(s.Content)
	textW := font.Measure(fam, text, s.spacing())
	period := textW + s.gap()
	off := s.Offset(elapsed)
	clr := env.scale(s.color())

	// Tile copies across the visible row so the text reappears from the
	// right as it scrolls off the left edge.
	for start := -int(off); start < dst.W; start += period {
		drawString(dst, text, start, s.Y, fam, s.spacing(), clr)
	}
	return State{Offset: off}, nil
}

//---------------- paginated text ----------------

// PaginatedText cycles long content through display-width pages, holding
// each page then sliding to the next. Page index and phase are derived
// purely from elapsed time modulo the cycle length.
type PaginatedText struct {
	textCommon
	Speed          float64 `json:"speed"`           // hold seconds per page
	ScrollDuration float64 `json:"scroll_duration"` // slide seconds between pages
	Direction      string  `json:"direction"`

	pages []string // layout cache, derived from content
}

func (p *PaginatedText) Type() string { return TypePaginatedText }

func (p *PaginatedText) Validate() error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Speed < 0 || p.ScrollDuration < 0 {
		return fmt.Errorf("speed and scroll_duration must be positive")
	}
	switch p.Direction {
	case "", "up", "down", "left", "right":
	default:
		return fmt.Errorf("direction %q not one of up/down/left/right", p.Direction)
	}
	return nil
}

func (p *PaginatedText) hold() float64 {
	if p.Speed == 0 {
		return 2.0
	}
	return p.Speed
}

func (p *PaginatedText) slide() float64 {
	if p.ScrollDuration == 0 {
		return 0.5
	}
	return p.ScrollDuration
}

func (p *PaginatedText) direction() string {
	if p.Direction == "" {
		return "up"
	}
	return p.Direction
}

// Paginate splits the content into pages that fit within width pixels,
// breaking at word boundaries where possible.
func (p *PaginatedText) Paginate(width int) []string {
	if p.pages != nil {
		return p.pages
	}
	fam := p.family()
	sp := p.spacing()
	avail := width - p.X

	var pages []string
	var cur string
	flush := func() {
		if cur != "" {
			pages = append(pages, cur)
			cur = ""
		}
	}

	for _, word := range strings.Fields(font.Sanitize(p.Content)) {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if font.Measure(fam, candidate, sp) <= avail {
			cur = candidate
			continue
		}
		flush()
		// A single word wider than the display splits across pages.
		for font.Measure(fam, word, sp) > avail && len(word) > 1 {
			cut := len(word)
			for cut > 1 && font.Measure(fam, word[:cut], sp) > avail {
				cut--
			}
			pages = append(pages, word[:cut])
			word = word[cut:]
		}
		cur = word
	}
	flush()
	if len(pages) == 0 {
		pages = []string{""}
	}
	p.pages = pages
	return pages
}

// Phase computes which page is showing at the given elapsed time and
// whether a slide to the next page is in progress.
func (p *PaginatedText) Phase(elapsed time.Duration, pageCount int) (page int, transitioning bool, progress float64) {
	if pageCount <= 1 {
		return 0, false, 0
	}
	per := p.hold() + p.slide()
	cycle := per * float64(pageCount)
	t := math.Mod(elapsed.Seconds(), cycle)
	page = int(t / per)
	within := t - float64(page)*per
	if within < p.hold() {
		return page, false, 0
	}
	return page, true, (within - p.hold()) / p.slide()
}

func (p *PaginatedText) Render(dst *frame.Frame, env *Env, elapsed time.Duration) (State, error) {
	pages := p.Paginate(env.W)
	page, transitioning, progress := p.Phase(elapsed, len(pages))
	clr := env.scale(p.color())
	fam := p.family()
	sp := p.spacing()

	if !transitioning {
		drawString(dst, pages[page], p.X, p.Y, fam, sp, clr)
		return State{Page: page}, nil
	}

	next := (page + 1) % len(pages)
	ease := easeOutQuad(progress)
	var dx, dy int
	switch p.direction() {
	case "up":
		dy = -int(ease * float64(env.H))
		drawString(dst, pages[page], p.X, p.Y+dy, fam, sp, clr)
		drawString(dst, pages[next], p.X, p.Y+dy+env.H, fam, sp, clr)
	case "down":
		dy = int(ease * float64(env.H))
		drawString(dst, pages[page], p.X, p.Y+dy, fam, sp, clr)
		drawString(dst, pages[next], p.X, p.Y+dy-env.H, fam, sp, clr)
	case "left":
		dx = -int(ease * float64(env.W))
		drawString(dst, pages[page], p.X+dx, p.Y, fam, sp, clr)
		drawString(dst, pages[next], p.X+dx+env.W, p.Y, fam, sp, clr)
	case "right":
		dx = int(ease * float64(env.W))
		drawString(dst, pages[page], p.X+dx, p.Y, fam, sp, clr)
		drawString(dst, pages[next], p.X+dx-env.W, p.Y, fam, sp, clr)
	}
	return State{Page: page, Transitioning: true, Progress: progress}, nil
}

func easeOutQuad(t float64) float64 { return 1 - (1-t)*(1-t) }

//---------------- icon ----------------

// Icon rasterizes a named MDI glyph and alpha-blends it over the frame.
type Icon struct {
	Name  string `json:"name"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Size  int    `json:"size"`
	Color []int  `json:"color"`
}

func (i *Icon) Type() string { return TypeIcon }

func (i *Icon) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("name is required")
	}
	if i.Size < 0 || i.Size > 256 {
		return fmt.Errorf("size %d out of range", i.Size)
	}
	if _, err := parseColor(i.Color, frame.RGB{}); err != nil {
		return err
	}
	return nil
}

func (i *Icon) size() int {
	if i.Size == 0 {
		return 16
	}
	return i.Size
}

func (i *Icon) Render(dst *frame.Frame, env *Env, _ time.Duration) (State, error) {
	if env.Icons == nil {
		return State{}, fmt.Errorf("icon resolver unavailable")
	}
	mask, err := env.Icons.Resolve(i.Name, i.size())
	if err != nil {
		return State{}, err
	}
	clr, _ := parseColor(i.Color, frame.RGB{R: 255, G: 255, B: 255})
	clr = env.scale(clr)

	b := mask.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			a := mask.AlphaAt(b.Min.X+x, b.Min.Y+y).A
			dst.Blend(i.X+x, i.Y+y, clr, a)
		}
	}
	return State{}, nil
}

//---------------- image ----------------

// Image blits a decoded raster at the given origin, optionally resized.
// Pixels carry their own alpha; fully transparent ones leave the frame
// untouched.
type Image struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (im *Image) Type() string { return TypeImage }

func (im *Image) Validate() error {
	if (im.Path == "") == (im.URL == "") {
		return fmt.Errorf("exactly one of path or url is required")
	}
	if im.Width < 0 || im.Height < 0 {
		return fmt.Errorf("width and height must be positive")
	}
	if (im.Width == 0) != (im.Height == 0) {
		return fmt.Errorf("width and height must be given together")
	}
	return nil
}

func (im *Image) source() string {
	if im.Path != "" {
		return im.Path
	}
	return im.URL
}

func (im *Image) Render(dst *frame.Frame, env *Env, _ time.Duration) (State, error) {
	if env.Images == nil {
		return State{}, fmt.Errorf("image loader unavailable")
	}
	src, err := env.Images.Load(im.source())
	if err != nil {
		return State{}, err
	}
	if im.Width > 0 && im.Height > 0 {
		src = imaging.Resize(src, im.Width, im.Height)
	}

	b := src.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := src.RGBAAt(b.Min.X+x, b.Min.Y+y)
			dst.Blend(im.X+x, im.Y+y, env.scale(frame.RGB{R: c.R, G: c.G, B: c.B}), c.A)
		}
	}
	return State{}, nil
}

//---------------- raw pixels ----------------

// PixelSet writes individual pixels as [x, y, r, g, b] or
// [x, y, r, g, b, a] tuples. Out-of-bounds entries are skipped.
type PixelSet struct {
	Pixels [][]int `json:"pixels"`
}

func (p *PixelSet) Type() string { return TypePixels }

func (p *PixelSet) Validate() error {
	if len(p.Pixels) == 0 {
		return fmt.Errorf("pixels is required")
	}
	for i, px := range p.Pixels {
		if len(px) < 5 {
			return fmt.Errorf("pixel %d needs at least [x,y,r,g,b]", i)
		}
		for _, ch := range px[2:] {
			if ch < 0 || ch > 255 {
				return fmt.Errorf("pixel %d: channel %d out of [0,255]", i, ch)
			}
		}
	}
	return nil
}

func (p *PixelSet) Render(dst *frame.Frame, env *Env, _ time.Duration) (State, error) {
	for _, px := range p.Pixels {
		c := env.scale(frame.RGB{R: uint8(px[2]), G: uint8(px[3]), B: uint8(px[4])})
		alpha := uint8(255)
		if len(px) > 5 {
			alpha = uint8(px[5])
		}
		dst.Blend(px[0], px[1], c, alpha)
	}
	return State{}, nil
}
