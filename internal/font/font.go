// Package font rasterizes codepoints into fixed-cell monochrome bitmaps
// for the small set of pixel font families the matrix understands.
package font

import (
	"fmt"
	"strings"
	"sync"
)

// Family names a supported pixel font.
type Family string

const (
	Family3x5    Family = "3x5"
	Family5x7    Family = "5x7"
	FamilyAwtrix Family = "awtrix"

	// DefaultFamily is used when an element omits its font.
	DefaultFamily = Family5x7
)

// ErrUnsupportedGlyph is returned when a codepoint has no bitmap in the
// requested family.
var ErrUnsupportedGlyph = fmt.Errorf("font: unsupported glyph")

// Glyph is one rasterized character cell. Rows holds one bitmask per pixel
// row, bit 0 being the leftmost column.
type Glyph struct {
	Width   int
	Height  int
	Advance int
	Rows    []uint16
}

// Set reports whether the pixel at (x, y) inside the glyph cell is lit.
func (g Glyph) Set(x, y int) bool {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return false
	}
	return g.Rows[y]&(1<<uint(x)) != 0
}

// Known reports whether name maps to a supported family.
func Known(name string) bool {
	switch Family(name) {
	case Family3x5, Family5x7, FamilyAwtrix:
		return true
	}
	return false
}

type cacheKey struct {
	family Family
	r      rune
}

var (
	glyphMu    sync.RWMutex
	glyphCache = make(map[cacheKey]Glyph)
)

// Rasterize returns the bitmap for one codepoint in the given family.
// Results are cached; the call is safe for concurrent use.
func Rasterize(family Family, r rune) (Glyph, error) {
	key := cacheKey{family, r}
	glyphMu.RLock()
	g, ok := glyphCache[key]
	glyphMu.RUnlock()
	if ok {
		return g, nil
	}

	var err error
	switch family {
	case Family3x5:
		g, err = columnGlyph(r, font3x5[:], 3, 5)
	case Family5x7:
		g, err = columnGlyph(r, font5x7[:], 5, 7)
	case FamilyAwtrix:
		g, err = awtrixGlyph(r)
	default:
		return Glyph{}, fmt.Errorf("font: unknown family %q", family)
	}
	if err != nil {
		return Glyph{}, err
	}

	glyphMu.Lock()
	glyphCache[key] = g
	glyphMu.Unlock()
	return g, nil
}

// columnGlyph decodes the packed column-major tables: one byte per pixel
// column, bit 0 at the top row.
func columnGlyph(r rune, table []byte, w, h int) (Glyph, error) {
	if r < firstChar || r > lastChar {
		return Glyph{}, fmt.Errorf("%w: %q", ErrUnsupportedGlyph, r)
	}
	off := int(r-firstChar) * w
	rows := make([]uint16, h)
	for col := 0; col < w; col++ {
		b := table[off+col]
		for row := 0; row < h; row++ {
			if b&(1<<uint(row)) != 0 {
				rows[row] |= 1 << uint(col)
			}
		}
	}
	return Glyph{Width: w, Height: h, Advance: w, Rows: rows}, nil
}

// awtrixGlyph builds the proportional family by trimming the empty side
// columns off the 5x7 cell. Advance includes a one pixel gap so the
// family packs tighter than the fixed-cell ones.
func awtrixGlyph(r rune) (Glyph, error) {
	base, err := columnGlyph(r, font5x7[:], 5, 7)
	if err != nil {
		return Glyph{}, err
	}
	if r == ' ' {
		return Glyph{Width: 0, Height: 7, Advance: 3, Rows: make([]uint16, 7)}, nil
	}

	minCol, maxCol := base.Width, -1
	for y := 0; y < base.Height; y++ {
		for x := 0; x < base.Width; x++ {
			if base.Set(x, y) {
				if x < minCol {
					minCol = x
				}
				if x > maxCol {
					maxCol = x
				}
			}
		}
	}
	if maxCol < minCol {
		// Blank glyph that is not a space, e.g. combining leftovers.
		return Glyph{Width: 0, Height: 7, Advance: 3, Rows: make([]uint16, 7)}, nil
	}

	w := maxCol - minCol + 1
	rows := make([]uint16, base.Height)
	for y := 0; y < base.Height; y++ {
		rows[y] = (base.Rows[y] >> uint(minCol)) & (1<<uint(w) - 1)
	}
	return Glyph{Width: w, Height: 7, Advance: w + 1, Rows: rows}, nil
}

// Height returns the pixel cell height of a family.
func Height(family Family) int {
	if family == Family3x5 {
		return 5
	}
	return 7
}

// Measure returns the pixel width of text in the given family with the
// given inter-character spacing. Unsupported glyphs count as a default
// advance so layout stays stable even when rendering will skip them.
func Measure(family Family, text string, spacing int) int {
	w := 0
	first := true
	for _, r := range text {
		if !first {
			w += extraSpacing(family, spacing)
		}
		first = false

		g, err := Rasterize(family, r)
		adv := fallbackAdvance
		if err == nil {
			adv = g.Advance
		}
		w += adv
	}
	return w
}

// extraSpacing mirrors the device firmware: the proportional family's
// advance already carries a one pixel gap.
func extraSpacing(family Family, spacing int) int {
	if family == FamilyAwtrix {
		return spacing - 1
	}
	return spacing
}

const fallbackAdvance = 4

// ExtraSpacing exposes the per-family spacing correction to the renderer.
func ExtraSpacing(family Family, spacing int) int {
	return extraSpacing(family, spacing)
}

// charMap normalizes Polish diacritics to ASCII so the bitmap tables,
// which only cover the printable ASCII range, can render them.
var charMap = map[rune]rune{
	'ą': 'a', 'ć': 'c', 'ę': 'e', 'ł': 'l', 'ń': 'n',
	'ó': 'o', 'ś': 's', 'ź': 'z', 'ż': 'z',
	'Ą': 'A', 'Ć': 'C', 'Ę': 'E', 'Ł': 'L', 'Ń': 'N',
	'Ó': 'O', 'Ś': 'S', 'Ź': 'Z', 'Ż': 'Z',
}

// Sanitize maps known diacritics to their ASCII shapes.
func Sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		if m, ok := charMap[r]; ok {
			return m
		}
		return r
	}, text)
}
