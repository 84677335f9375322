// Package icon resolves Material Design Icon names to alpha bitmaps by
// rasterizing the MDI webfont at the requested pixel size.
package icon

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	fontFile = "materialdesignicons-webfont.ttf"
	metaFile = "materialdesignicons-webfont_meta.json"
)

// Resolver maps icon names to codepoints and rasterizes them. Faces are
// cached per pixel size.
type Resolver struct {
	font  *opentype.Font
	names map[string]rune

	mu    sync.Mutex
	faces map[int]font.Face
}

type metaEntry struct {
	Name      string `json:"name"`
	Codepoint string `json:"codepoint"`
}

// NewResolver loads the MDI webfont and its metadata from assetsDir.
func NewResolver(assetsDir string) (*Resolver, error) {
	fontBytes, err := os.ReadFile(filepath.Join(assetsDir, fontFile))
	if err != nil {
		return nil, fmt.Errorf("icon: reading webfont: %w", err)
	}
	parsed, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("icon: parsing webfont: %w", err)
	}

	metaBytes, err := os.ReadFile(filepath.Join(assetsDir, metaFile))
	if err != nil {
		return nil, fmt.Errorf("icon: reading metadata: %w", err)
	}
	var entries []metaEntry
	if err := json.Unmarshal(metaBytes, &entries); err != nil {
		return nil, fmt.Errorf("icon: parsing metadata: %w", err)
	}

	names := make(map[string]rune, len(entries))
	for _, e := range entries {
		cp, err := strconv.ParseUint(e.Codepoint, 16, 32)
		if err != nil {
			continue
		}
		names[e.Name] = rune(cp)
	}

	return &Resolver{font: parsed, names: names, faces: make(map[int]font.Face)}, nil
}

// Resolve rasterizes the named icon at the given pixel size and returns
// its coverage as an alpha bitmap. The "mdi:" prefix is optional.
func (r *Resolver) Resolve(name string, size int) (*image.Alpha, error) {
	cp, ok := r.names[strings.TrimPrefix(name, "mdi:")]
	if !ok {
		return nil, fmt.Errorf("icon: unknown icon %q", name)
	}
	face, err := r.face(size)
	if err != nil {
		return nil, err
	}

	mask := image.NewAlpha(image.Rect(0, 0, size, size))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(opaque{}),
		Face: face,
	}
	d.Dot = fixed.P(0, face.Metrics().Ascent.Round())
	d.DrawString(string(cp))
	return mask, nil
}

func (r *Resolver) face(size int) (font.Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("icon: face at %dpx: %w", size, err)
	}
	r.faces[size] = f
	return f, nil
}

// opaque is a fully opaque color source for mask rendering.
type opaque struct{}

func (opaque) RGBA() (r, g, b, a uint32) { return 0xffff, 0xffff, 0xffff, 0xffff }
